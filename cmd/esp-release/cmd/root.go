package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/esp-release/internal/config"
	"github.com/oshokin/esp-release/internal/logger"
	"github.com/oshokin/esp-release/internal/service/builder"
	"github.com/oshokin/esp-release/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel selects the logging verbosity.
	logLevel string
	// releaseName overrides the git-derived release identity.
	releaseName string
	// buildDir overrides the default build directory.
	buildDir string
	// signingKey overrides the configured signing key path.
	signingKey string
	// outputDir overrides the configured bundle output directory.
	outputDir string

	// rootCmd represents the base command for the release pipeline.
	rootCmd = &cobra.Command{
		Use:   "esp-release",
		Short: "Build and package ESP32 firmware into flashable release bundles",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}
		},
	}

	// buildCmd runs the full pipeline: compile, then package.
	buildCmd = &cobra.Command{
		Use:       "build [development|release]",
		Short:     "Compile the firmware and package it into a release bundle",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"development", "release"},
		RunE: func(_ *cobra.Command, args []string) error {
			return runPipeline(args[0], false)
		},
	}

	// packageCmd packages an existing build directory without compiling.
	packageCmd = &cobra.Command{
		Use:       "package [development|release]",
		Short:     "Package an existing build directory into a release bundle",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"development", "release"},
		RunE: func(_ *cobra.Command, args []string) error {
			return runPipeline(args[0], true)
		},
	}
)

// runPipeline wires flags into the builder and handles shutdown signals.
func runPipeline(buildType string, packageOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return builder.Run(ctx, &builder.Options{
		BuildType:   buildType,
		ReleaseName: releaseName,
		BuildDir:    buildDir,
		SigningKey:  signingKey,
		OutputDir:   outputDir,
		ConfigPath:  configPath,
		PackageOnly: packageOnly,
	})
}

// Execute runs the esp-release CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "logging level (debug, info, warn, error)")

	for _, cmd := range []*cobra.Command{buildCmd, packageCmd} {
		cmd.Flags().StringVarP(&releaseName, "name", "n", "", "explicit release name (default: exact tag or short commit)")
		cmd.Flags().StringVarP(&buildDir, "build-dir", "b", "", "build directory (default: <project root>/build)")
		cmd.Flags().StringVarP(&signingKey, "signing-key", "k", "", "path to the Secure Boot V2 signing key")
		cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory receiving the release bundle")
	}

	rootCmd.AddCommand(buildCmd, packageCmd)
}
