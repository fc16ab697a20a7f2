package flash

import (
	"os"

	"github.com/oshokin/esp-release/internal/domain/release"
)

// Posture is the derived security classification for one build.
// It exists only between the classifier and the rewriter.
type Posture struct {
	// SecureBoot is true when the manifest carries a bootloader image
	// and a signing key was supplied to the pipeline.
	SecureBoot bool
	// Encryption is true when the manifest already carries the
	// encryption marker, or the build is a signed release.
	Encryption bool
}

// Classify derives the security posture from the manifest, the optional
// signing key path and the build type. The manifest is read-only here.
//
// A release build whose manifest expects a bootloader must be signed:
// classification fails rather than silently degrading to an unsigned
// bootloader. Development builds ignore any supplied key so their output
// stays deterministic and key-independent.
func Classify(m *Manifest, keyPath string, buildType release.BuildType) (Posture, error) {
	hasBootloader := m.HasBootloader()
	keyAvailable := keyPath != "" && fileExists(keyPath)

	if buildType == release.Release && hasBootloader && !keyAvailable {
		return Posture{}, &release.ConfigurationError{
			Field:  "signing key",
			Path:   keyPath,
			Reason: "release build with a bootloader requires a signing key",
		}
	}

	// Development builds treat the key as absent.
	keyAvailable = keyAvailable && buildType == release.Release
	secureBoot := hasBootloader && keyAvailable

	return Posture{
		SecureBoot: secureBoot,
		Encryption: m.HasWriteFlashArg(EncryptMarker) || (buildType == release.Release && secureBoot),
	}, nil
}

// fileExists reports whether path names an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
