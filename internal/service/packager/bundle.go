package packager

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"github.com/oshokin/esp-release/internal/domain/flash"
	"github.com/oshokin/esp-release/internal/logger"
)

// DigestFilename is the public key digest artifact inside the bundle.
const DigestFilename = "digest.bin"

// MissingArtifactError reports a binary the manifest references that
// does not exist on disk at bundling time.
type MissingArtifactError struct {
	// Path is the absolute path of the missing binary.
	Path string
}

// Error implements the error interface.
func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("missing artifact: %s", e.Path)
}

// Assemble writes the release bundle: the rewritten manifest, the flash
// script, the optional digest, and every binary the manifest references.
//
// Every referenced binary is verified before a single byte of archive is
// written, and the archive is built at a temporary path and renamed into
// place, so a failed or interrupted run never leaves a partial bundle at
// outputPath.
func Assemble(ctx context.Context, buildDir string, m *flash.Manifest, script string, digest []byte, outputPath string) error {
	// Fail fast before any partial output.
	for _, entry := range m.Entries {
		abs := filepath.Join(buildDir, filepath.FromSlash(entry.File))
		if _, err := os.Stat(abs); err != nil {
			return &MissingArtifactError{Path: abs}
		}
	}

	outputDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(outputDir, ".esp-release-*")
	if err != nil {
		return fmt.Errorf("create temporary bundle: %w", err)
	}

	committed := false

	defer func() {
		_ = tmp.Close()

		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = writeArchive(tmp, buildDir, m, script, digest); err != nil {
		return err
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("finalize bundle: %w", err)
	}

	if err = os.Rename(tmp.Name(), outputPath); err != nil {
		return fmt.Errorf("publish bundle: %w", err)
	}

	committed = true

	logger.InfoKV(ctx, "Release bundle written", "path", outputPath, "binaries", len(m.Entries))

	return nil
}

// writeArchive streams the bundle contents into the zip writer.
func writeArchive(w io.Writer, buildDir string, m *flash.Manifest, script string, digest []byte) error {
	zw := zip.NewWriter(w)

	// The klauspost deflate is a drop-in for the stdlib one.
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	manifestJSON, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err = addFile(zw, flash.Filename, manifestJSON, 0o644); err != nil {
		return err
	}

	if err = addFile(zw, ScriptFilename, []byte(script), 0o755); err != nil {
		return err
	}

	if len(digest) > 0 {
		if err = addFile(zw, DigestFilename, digest, 0o644); err != nil {
			return err
		}
	}

	for _, entry := range m.Entries {
		if err = copyFile(zw, buildDir, entry.File); err != nil {
			return err
		}
	}

	if err = zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	return nil
}

// addFile writes an in-memory artifact into the archive.
func addFile(zw *zip.Writer, name string, contents []byte, mode os.FileMode) error {
	header := &zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	}
	header.SetMode(mode)

	f, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}

	if _, err = f.Write(contents); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}

	return nil
}

// copyFile streams a build output into the archive under its manifest path.
func copyFile(zw *zip.Writer, buildDir, relPath string) error {
	abs := filepath.Join(buildDir, filepath.FromSlash(relPath))

	src, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", abs, err)
	}

	defer func() {
		_ = src.Close()
	}()

	header := &zip.FileHeader{
		Name:   filepath.ToSlash(relPath),
		Method: zip.Deflate,
	}
	header.SetMode(0o644)

	f, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", relPath, err)
	}

	if _, err = io.Copy(f, src); err != nil {
		return fmt.Errorf("write archive entry %s: %w", relPath, err)
	}

	return nil
}
