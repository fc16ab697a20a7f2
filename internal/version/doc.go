// Package version exposes build-time version metadata injected via ldflags
// and a cobra subcommand for printing it.
package version
