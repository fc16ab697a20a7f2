package release

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ProjectDescriptionFilename is emitted by the build tool next to the
// flashing metadata and carries the project's name and version.
const ProjectDescriptionFilename = "project_description.json"

// ProjectDescription is the subset of the build tool's project metadata
// the packager cares about.
type ProjectDescription struct {
	// Name is the project name configured in the build system.
	Name string `json:"project_name"`
	// Version is the project version, typically derived from git describe.
	Version string `json:"project_version"`
}

// LoadProjectDescription reads the project description from the build
// directory. A missing file yields zero values rather than an error,
// since older build tool versions do not always emit it.
func LoadProjectDescription(buildDir string) (*ProjectDescription, error) {
	path := filepath.Join(buildDir, ProjectDescriptionFilename)

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return &ProjectDescription{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("read project description: %w", err)
	}

	var desc ProjectDescription
	if err = json.Unmarshal(contents, &desc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ProjectDescriptionFilename, err)
	}

	return &desc, nil
}
