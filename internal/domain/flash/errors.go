package flash

import "fmt"

// ManifestError reports flashing metadata that is missing, unreadable,
// or missing expected fields. It names the file and field involved.
type ManifestError struct {
	// Path is the flashing metadata file involved.
	Path string
	// Field is the missing or malformed field, when one is identifiable.
	Field string
	// Reason explains the failure.
	Reason string
}

// Error implements the error interface.
func (e *ManifestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest error: %s: field %q: %s", e.Path, e.Field, e.Reason)
	}

	return fmt.Sprintf("manifest error: %s: %s", e.Path, e.Reason)
}
