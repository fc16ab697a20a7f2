package packager

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oshokin/esp-release/internal/domain/flash"
	"github.com/oshokin/esp-release/internal/domain/release"
	"github.com/oshokin/esp-release/internal/logger"
	"github.com/oshokin/esp-release/internal/secureboot"
)

// Options contains inputs for the release packager.
type Options struct {
	// Descriptor identifies the build being packaged.
	Descriptor *release.Descriptor
	// SigningKey is the path to the Secure Boot V2 signing key; may be
	// empty for development builds.
	SigningKey string
	// OutputDir is the directory receiving the bundle.
	OutputDir string
	// Project is the project name used in the bundle filename.
	Project string
	// Port and Baud are serial defaults baked into the flash script.
	Port string
	Baud int
}

// Run packages a finished build into a release bundle and returns the
// bundle path. Stages run in order: classify posture, rewrite the
// manifest, derive the key digest when secure boot is active, generate
// the flash script, assemble the archive.
func Run(ctx context.Context, opts *Options) (string, error) {
	ctx = logger.WithName(ctx, "packager")
	desc := opts.Descriptor

	m, err := flash.Load(desc.BuildDir)
	if err != nil {
		return "", err
	}

	posture, err := flash.Classify(m, opts.SigningKey, desc.Type)
	if err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Security posture classified",
		"secure_boot", posture.SecureBoot,
		"encryption", posture.Encryption)

	flash.Rewrite(m, posture)

	var digest []byte

	if posture.SecureBoot {
		digest, err = secureboot.DeriveDigest(opts.SigningKey)
		if err != nil {
			return "", err
		}

		m.Security.DigestFile = DigestFilename

		logger.InfoKV(ctx, "Public key digest derived", "key", opts.SigningKey, "bytes", len(digest))
	}

	script := GenerateScript(m, posture, desc.Name, opts.Port, opts.Baud)

	outputPath := filepath.Join(opts.OutputDir, release.ArchiveName(opts.Project, desc.Name))

	if err = Assemble(ctx, desc.BuildDir, m, script, digest, outputPath); err != nil {
		return "", fmt.Errorf("assemble bundle: %w", err)
	}

	return outputPath, nil
}
