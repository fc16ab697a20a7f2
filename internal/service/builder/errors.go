package builder

import "fmt"

// Stage names one step of the build pipeline. Every failure is wrapped
// with its stage so operators can tell where the pipeline stopped.
type Stage string

const (
	// StageLoadSettings reads the optional pipeline settings file.
	StageLoadSettings Stage = "load-settings"
	// StageResolveRoot locates the project root directory.
	StageResolveRoot Stage = "resolve-root"
	// StageResolveIdentity resolves the build type and release name.
	StageResolveIdentity Stage = "resolve-identity"
	// StageValidateInputs checks signing requirements before building.
	StageValidateInputs Stage = "validate-inputs"
	// StageClean removes stale outputs of a previous build.
	StageClean Stage = "clean-previous-build"
	// StageBuild invokes the external build tool.
	StageBuild Stage = "invoke-build-tool"
	// StagePackage invokes the release packager.
	StagePackage Stage = "invoke-packager"
)

// StageError wraps a failure with the pipeline stage it occurred in.
type StageError struct {
	// Stage is where the pipeline stopped.
	Stage Stage
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying failure.
func (e *StageError) Unwrap() error {
	return e.Err
}

// BuildToolError reports a failed external build invocation.
type BuildToolError struct {
	// Command is the build tool that was invoked.
	Command string
	// ExitCode is the tool's exit code, or -1 when it did not run.
	ExitCode int
	// Err is the underlying execution error, when there is one.
	Err error
}

// Error implements the error interface.
func (e *BuildToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("build tool %s: %v", e.Command, e.Err)
	}

	return fmt.Sprintf("build tool %s exited with code %d", e.Command, e.ExitCode)
}

// Unwrap returns the underlying execution error.
func (e *BuildToolError) Unwrap() error {
	return e.Err
}
