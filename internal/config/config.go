package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds pipeline settings shared by the build and package commands.
// Command-line flags override the corresponding fields.
type Config struct {
	// BuildCommand is the external build tool invoked for compilation.
	BuildCommand string `yaml:"build_command"`
	// DevOverlay is the sdkconfig defaults overlay for development builds.
	DevOverlay string `yaml:"dev_overlay"`
	// ReleaseOverlay is the sdkconfig defaults overlay for release builds.
	ReleaseOverlay string `yaml:"release_overlay"`
	// SigningKey is the path to the Secure Boot V2 signing key,
	// relative to the project root unless absolute.
	SigningKey string `yaml:"signing_key"`
	// OutputDir is where release bundles are written,
	// relative to the project root unless absolute.
	OutputDir string `yaml:"output_dir"`
	// Project overrides the project name used in bundle filenames.
	// When empty, the build tool's project description is consulted.
	Project string `yaml:"project,omitempty"`
	// Port is the default serial device path baked into the flash script.
	Port string `yaml:"port"`
	// Baud is the serial baud rate baked into the flash script.
	Baud int `yaml:"baud"`
}

const (
	// DefaultConfigFilename is the default filename for pipeline settings.
	DefaultConfigFilename = "esp-release.yaml"

	// DefaultBuildCommand is the ESP-IDF frontend used when none is configured.
	DefaultBuildCommand = "idf.py"

	// DefaultSigningKeyPath is where the release signing key is expected
	// when no override is given. The key itself is never committed.
	DefaultSigningKeyPath = "keys/secure_boot_signing_key.pem"

	// DefaultOutputDir is where release bundles land under the project root.
	DefaultOutputDir = "release"

	// DefaultPort is the serial device offered by the generated flash script.
	DefaultPort = "/dev/ttyUSB0"

	// DefaultBaud is the flashing baud rate offered by the generated flash script.
	DefaultBaud = 460800

	// DefaultFilePermissions is the file permission used for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBaudRateInvalid is returned when the configured baud rate is not positive.
	errBaudRateInvalid = errors.New("baud rate must be positive")
)

// Default returns a configuration populated with package defaults.
func Default() *Config {
	return &Config{
		BuildCommand:   DefaultBuildCommand,
		DevOverlay:     "sdkconfig.defaults",
		ReleaseOverlay: "sdkconfig.defaults;sdkconfig.release",
		SigningKey:     DefaultSigningKeyPath,
		OutputDir:      DefaultOutputDir,
		Port:           DefaultPort,
		Baud:           DefaultBaud,
	}
}

// Load reads configuration from the provided path and validates essential fields.
// A missing file is not an error: defaults are returned so the pipeline
// works out of the box in a plain ESP-IDF project.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields,
// filling defaults for unset optional ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.BuildCommand == "" {
		cfg.BuildCommand = DefaultBuildCommand
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = DefaultSigningKeyPath
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}

	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}

	if cfg.Baud < 0 {
		return fmt.Errorf("%w: %d", errBaudRateInvalid, cfg.Baud)
	}

	return nil
}
