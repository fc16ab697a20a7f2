package release

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseBuildType covers accepted spellings and rejection of unknown types.
func TestParseBuildType(t *testing.T) {
	t.Parallel()

	bt, err := ParseBuildType("development")
	require.NoError(t, err)
	require.Equal(t, Development, bt)

	bt, err = ParseBuildType("dev")
	require.NoError(t, err)
	require.Equal(t, Development, bt)

	bt, err = ParseBuildType(" Release ")
	require.NoError(t, err)
	require.Equal(t, Release, bt)

	_, err = ParseBuildType("nightly")
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "build type", cfgErr.Field)
}

// TestSanitizeVersion mirrors the naming rules used for bundle filenames.
func TestSanitizeVersion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"v0.0.1", "v0.0.1"},
		{"v0.0.1-dirty", "v0.0.1"},
		{"v1.2.3-12-gdeadbee-dirty", "v1.2.3"},
		{"1.4", "1.4"},
		{"deadbeef", "deadbeef"},
		{"feature branch!", "feature-branch-"},
		{"", "latest"},
		{"-dirty", "latest"},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, SanitizeVersion(tc.in), "input %q", tc.in)
	}
}

// TestArchiveName checks the deterministic bundle filename derivation.
func TestArchiveName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "thermostat_v0.0.1.zip", ArchiveName("thermostat", "v0.0.1-dirty"))
	require.Equal(t, "firmware_latest.zip", ArchiveName("", ""))
}
