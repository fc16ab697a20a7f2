package flash

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRewriteSecureBoot checks force-flag injection and auto-detect removal.
func TestRewriteSecureBoot(t *testing.T) {
	t.Parallel()

	m, err := Load(writeSample(t, sampleManifest))
	require.NoError(t, err)

	m.Settings.Size = "detect"

	Rewrite(m, Posture{SecureBoot: true})

	require.Equal(t, ForceFlag, m.WriteFlashArgs[0])
	require.True(t, bool(m.BootloaderSection().Force))
	require.Equal(t, "keep", m.Settings.Size)
	require.False(t, m.Esptool.Stub)
	require.NotNil(t, m.Security)
	require.True(t, m.Security.SecureBoot)
}

// TestRewriteEncryption checks the marker and read-protection marking.
func TestRewriteEncryption(t *testing.T) {
	t.Parallel()

	m, err := Load(writeSample(t, sampleManifest))
	require.NoError(t, err)

	Rewrite(m, Posture{Encryption: true})

	require.True(t, m.HasWriteFlashArg(EncryptMarker))

	// Every image except the bootloader is read-protected.
	require.True(t, bool(m.Sections["app"].Encrypted))
	require.False(t, bool(m.BootloaderSection().Encrypted))

	require.True(t, m.Security.Encryption)
	require.False(t, m.Security.SecureBoot)
}

// TestRewriteIdempotent verifies rewrite(rewrite(m)) == rewrite(m).
func TestRewriteIdempotent(t *testing.T) {
	t.Parallel()

	postures := []Posture{
		{},
		{SecureBoot: true},
		{Encryption: true},
		{SecureBoot: true, Encryption: true},
	}

	for _, posture := range postures {
		m, err := Load(writeSample(t, sampleManifest))
		require.NoError(t, err)

		Rewrite(m, posture)

		once, err := json.Marshal(m)
		require.NoError(t, err)

		Rewrite(m, posture)

		twice, err := json.Marshal(m)
		require.NoError(t, err)

		require.Equal(t, string(once), string(twice), "posture %+v", posture)
	}
}
