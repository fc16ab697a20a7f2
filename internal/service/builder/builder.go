package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/esp-release/internal/config"
	"github.com/oshokin/esp-release/internal/domain/release"
	"github.com/oshokin/esp-release/internal/logger"
	"github.com/oshokin/esp-release/internal/service/packager"
)

// Options contains inputs for the build pipeline entry point.
type Options struct {
	// BuildType is the requested build type: development or release.
	BuildType string
	// ReleaseName overrides the git-derived release identity.
	ReleaseName string
	// BuildDir overrides the default <root>/build directory.
	BuildDir string
	// SigningKey overrides the configured signing key path.
	SigningKey string
	// OutputDir overrides the configured bundle output directory.
	OutputDir string
	// ConfigPath is an optional path to the settings YAML file.
	ConfigPath string
	// PackageOnly skips cleaning and building and packages an existing
	// build directory as-is.
	PackageOnly bool
}

// pipeline carries state resolved by earlier stages into later ones.
type pipeline struct {
	opts *Options
	cfg  *config.Config

	root       string
	buildType  release.BuildType
	name       string
	buildDir   string
	signingKey string
	outputDir  string
}

// step pairs a stage name with its implementation.
type step struct {
	stage Stage
	run   func(context.Context) error
}

// Run executes the build pipeline: a linear state machine with no
// branching back. Any stage failure aborts the pipeline; the returned
// error names the failing stage and no bundle is produced.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "esp-release")

	p := &pipeline{opts: opts}

	for _, s := range p.steps() {
		logger.InfoKV(ctx, "Stage starting", "stage", s.stage)

		if err := s.run(ctx); err != nil {
			return &StageError{Stage: s.stage, Err: err}
		}
	}

	return nil
}

// steps returns the stage sequence for this invocation. Package-only
// runs reuse the resolution stages and skip clean and build.
func (p *pipeline) steps() []step {
	steps := []step{
		{StageLoadSettings, p.loadSettings},
		{StageResolveRoot, p.resolveRoot},
		{StageResolveIdentity, p.resolveIdentity},
		{StageValidateInputs, p.validateInputs},
	}

	if !p.opts.PackageOnly {
		steps = append(steps,
			step{StageClean, p.cleanPreviousBuild},
			step{StageBuild, p.invokeBuildTool},
		)
	}

	return append(steps, step{StagePackage, p.invokePackager})
}

// loadSettings reads the optional settings file.
func (p *pipeline) loadSettings(_ context.Context) error {
	cfg, err := config.Load(p.opts.ConfigPath)
	if err != nil {
		return err
	}

	p.cfg = cfg

	return nil
}

// resolveRoot locates the project root by walking up from the working
// directory looking for a repository marker, and derives the default
// build, key and output locations from it.
func (p *pipeline) resolveRoot(ctx context.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

	p.root = findProjectRoot(cwd)

	p.buildDir = p.opts.BuildDir
	if p.buildDir == "" {
		p.buildDir = filepath.Join(p.root, "build")
	}

	p.signingKey = resolvePath(p.root, p.opts.SigningKey, p.cfg.SigningKey)
	p.outputDir = resolvePath(p.root, p.opts.OutputDir, p.cfg.OutputDir)

	logger.InfoKV(ctx, "Project root resolved", "root", p.root, "build_dir", p.buildDir)

	return nil
}

// resolveIdentity resolves the build type and the release name.
func (p *pipeline) resolveIdentity(ctx context.Context) error {
	buildType, err := release.ParseBuildType(p.opts.BuildType)
	if err != nil {
		return err
	}

	p.buildType = buildType

	if p.name, err = resolveName(p.root, p.opts.ReleaseName); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Release identity resolved", "type", p.buildType, "name", p.name)

	return nil
}

// validateInputs fails fast on inputs the expensive build step depends
// on: a release build must have its signing key before compiling.
func (p *pipeline) validateInputs(_ context.Context) error {
	if p.buildType == release.Release {
		if info, err := os.Stat(p.signingKey); err != nil || !info.Mode().IsRegular() {
			return &release.ConfigurationError{
				Field:  "signing key",
				Path:   p.signingKey,
				Reason: "release builds require an existing signing key before the build starts",
			}
		}
	}

	if p.opts.PackageOnly {
		if info, err := os.Stat(p.buildDir); err != nil || !info.IsDir() {
			return &release.ConfigurationError{
				Field:  "build directory",
				Path:   p.buildDir,
				Reason: "packaging requires an existing build directory",
			}
		}
	}

	return nil
}

// cleanPreviousBuild removes stale build output and leftover temporary
// bundles so nothing from a previous run leaks into the new bundle.
func (p *pipeline) cleanPreviousBuild(ctx context.Context) error {
	warnConcurrentRuns(ctx)

	if err := os.RemoveAll(p.buildDir); err != nil {
		return fmt.Errorf("remove previous build directory: %w", err)
	}

	stale, err := filepath.Glob(filepath.Join(p.outputDir, ".esp-release-*"))
	if err == nil {
		for _, path := range stale {
			if removeErr := os.Remove(path); removeErr == nil {
				logger.InfoKV(ctx, "Removed stale temporary bundle", "path", path)
			}
		}
	}

	return nil
}

// warnConcurrentRuns logs when another pipeline instance is running.
// Concurrent invocations are a caller contract (distinct build and
// output directories); this is a heads-up, not an enforcement.
func warnConcurrentRuns(ctx context.Context) {
	procs, err := ps.Processes()
	if err != nil {
		return
	}

	self := os.Getpid()

	for _, proc := range procs {
		if proc.Pid() == self {
			continue
		}

		if strings.HasPrefix(proc.Executable(), "esp-release") {
			logger.WarnKV(ctx,
				"Another esp-release process is running; concurrent runs must use distinct build and output directories",
				"pid", proc.Pid())
		}
	}
}

// invokeBuildTool runs the external build tool with the configuration
// overlay selected by the build type. Compiler output passes through to
// the operator's terminal.
func (p *pipeline) invokeBuildTool(ctx context.Context) error {
	args := []string{"-B", p.buildDir}

	overlay := p.cfg.DevOverlay
	if p.buildType == release.Release {
		overlay = p.cfg.ReleaseOverlay
	}

	if overlay != "" {
		args = append(args, "-D", "SDKCONFIG_DEFAULTS="+overlay)
	}

	args = append(args, "build")

	logger.InfoKV(ctx, "Invoking build tool", "command", p.cfg.BuildCommand, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, p.cfg.BuildCommand, args...)
	cmd.Dir = p.root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &BuildToolError{Command: p.cfg.BuildCommand, ExitCode: exitErr.ExitCode()}
		}

		return &BuildToolError{Command: p.cfg.BuildCommand, ExitCode: -1, Err: err}
	}

	return nil
}

// invokePackager hands the finished build to the release packager.
func (p *pipeline) invokePackager(ctx context.Context) error {
	project := p.cfg.Project
	if project == "" {
		desc, err := release.LoadProjectDescription(p.buildDir)
		if err != nil {
			return err
		}

		project = desc.Name
	}

	if project == "" {
		project = filepath.Base(p.root)
	}

	bundlePath, err := packager.Run(ctx, &packager.Options{
		Descriptor: &release.Descriptor{
			Type:     p.buildType,
			Name:     p.name,
			BuildDir: p.buildDir,
		},
		SigningKey: p.signingKey,
		OutputDir:  p.outputDir,
		Project:    project,
		Port:       p.cfg.Port,
		Baud:       p.cfg.Baud,
	})
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Release bundle ready", "path", bundlePath)

	return nil
}

// findProjectRoot walks up from start looking for a repository marker,
// falling back to start itself when none is found.
func findProjectRoot(start string) string {
	dir := start

	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}

		dir = parent
	}
}

// resolvePath picks the override when given, otherwise the configured
// value, and anchors relative paths at the project root.
func resolvePath(root, override, configured string) string {
	path := override
	if path == "" {
		path = configured
	}

	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(root, path)
}
