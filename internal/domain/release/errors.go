package release

import "fmt"

// ConfigurationError reports invalid or missing pipeline configuration:
// an unknown build type, a release build without its signing key, or an
// unresolvable release identity. It always names the offending field so
// operators can act without reading internals.
type ConfigurationError struct {
	// Field is the configuration input at fault.
	Field string
	// Path is the filesystem path involved, when there is one.
	Path string
	// Reason explains what is wrong with the input.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("configuration error: %s (%s): %s", e.Field, e.Path, e.Reason)
	}

	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
