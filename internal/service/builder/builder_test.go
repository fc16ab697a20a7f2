package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/esp-release/internal/domain/release"
)

// chdir changes the working directory for the test duration and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

// TestFindProjectRoot walks up to the repository marker.
func TestFindProjectRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	nested := filepath.Join(root, "components", "driver")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	require.Equal(t, root, findProjectRoot(nested))

	// No marker anywhere: the starting directory wins.
	bare := t.TempDir()
	require.Equal(t, bare, findProjectRoot(bare))
}

// TestResolvePath covers override priority and root anchoring.
func TestResolvePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/abs/key.pem", resolvePath("/root", "/abs/key.pem", "keys/key.pem"))
	require.Equal(t, filepath.Join("/root", "keys/key.pem"), resolvePath("/root", "", "keys/key.pem"))
	require.Equal(t, filepath.Join("/root", "other.pem"), resolvePath("/root", "other.pem", "keys/key.pem"))
	require.Equal(t, "", resolvePath("/root", "", ""))
}

// TestRunInvalidBuildType aborts in the identity stage with a typed error.
func TestRunInvalidBuildType(t *testing.T) {
	chdir(t, t.TempDir())

	err := Run(context.Background(), &Options{BuildType: "nightly", ReleaseName: "v1"})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, StageResolveIdentity, stageErr.Stage)

	var cfgErr *release.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

// TestRunReleaseWithoutKeyFailsBeforeBuild: validation aborts the
// pipeline before the build tool runs and before any artifacts appear.
func TestRunReleaseWithoutKeyFailsBeforeBuild(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	chdir(t, root)

	buildDir := filepath.Join(root, "build")

	err := Run(context.Background(), &Options{
		BuildType:   "release",
		ReleaseName: "v1.0.0",
		BuildDir:    buildDir,
		SigningKey:  filepath.Join(root, "missing_key.pem"),
	})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, StageValidateInputs, stageErr.Stage)

	var cfgErr *release.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "signing key", cfgErr.Field)

	// Fail-fast: nothing was built.
	_, err = os.Stat(buildDir)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRunPackageOnlyMissingBuildDir rejects packaging without a build.
func TestRunPackageOnlyMissingBuildDir(t *testing.T) {
	root := t.TempDir()
	chdir(t, root)

	err := Run(context.Background(), &Options{
		BuildType:   "development",
		ReleaseName: "v1",
		BuildDir:    filepath.Join(root, "build"),
		PackageOnly: true,
	})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, StageValidateInputs, stageErr.Stage)
}

// TestRunBuildToolFailure surfaces the tool's exit code in the build stage.
func TestRunBuildToolFailure(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	chdir(t, root)

	failing := filepath.Join(root, "failing-build.sh")
	require.NoError(t, os.WriteFile(failing, []byte("#!/bin/sh\nexit 3\n"), 0o755))

	cfgPath := filepath.Join(root, "esp-release.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("build_command: "+failing+"\n"), 0o600))

	err := Run(context.Background(), &Options{
		BuildType:   "development",
		ReleaseName: "v1",
		ConfigPath:  cfgPath,
	})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, StageBuild, stageErr.Stage)

	var toolErr *BuildToolError
	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, 3, toolErr.ExitCode)
}
