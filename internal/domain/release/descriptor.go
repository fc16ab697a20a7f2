package release

import (
	"fmt"
	"regexp"
	"strings"
)

// BuildType distinguishes development builds from signed release builds.
type BuildType string

const (
	// Development builds are unsigned, key-independent and reproducible
	// without any secret material.
	Development BuildType = "development"
	// Release builds must be signed when the firmware carries a bootloader.
	Release BuildType = "release"
)

// ParseBuildType converts user input to a BuildType.
func ParseBuildType(s string) (BuildType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Development), "dev":
		return Development, nil
	case string(Release):
		return Release, nil
	default:
		return "", &ConfigurationError{
			Field:  "build type",
			Reason: fmt.Sprintf("must be %q or %q, got %q", Development, Release, s),
		}
	}
}

// Descriptor identifies one build: its type, resolved release name and
// build directory. It is created by the orchestrator and treated as
// immutable by every downstream stage.
type Descriptor struct {
	// Type selects the sdkconfig overlay and the signing requirements.
	Type BuildType
	// Name is the resolved release identity (explicit name, exact tag,
	// or short commit hash, in that priority order).
	Name string
	// BuildDir is where the build tool placed its outputs.
	BuildDir string
}

var (
	// dirtySuffix strips the git-describe dirty marker from versions.
	dirtySuffix = regexp.MustCompile(`-dirty$`)
	// semverPattern extracts a plain semantic version like v0.1.2 or 1.2.
	semverPattern = regexp.MustCompile(`v?\d+\.\d+(\.\d+)?`)
	// unsafeChars are replaced when versions end up in filenames.
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// SanitizeVersion normalizes a git-derived version string for use in a
// bundle filename: the dirty suffix is dropped and a plain semantic
// version is extracted when one is embedded. Falls back to the cleaned
// input, or "latest" when nothing is left.
func SanitizeVersion(version string) string {
	cleaned := dirtySuffix.ReplaceAllString(strings.TrimSpace(version), "")

	if match := semverPattern.FindString(cleaned); match != "" {
		return match
	}

	cleaned = unsafeChars.ReplaceAllString(cleaned, "-")
	if cleaned == "" {
		return "latest"
	}

	return cleaned
}

// ArchiveName derives the deterministic bundle filename for a project
// and resolved release name.
func ArchiveName(project, name string) string {
	if project == "" {
		project = "firmware"
	}

	return fmt.Sprintf("%s_%s.zip", project, SanitizeVersion(name))
}
