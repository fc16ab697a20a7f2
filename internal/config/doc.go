// Package config loads and persists pipeline settings: the external build
// tool, sdkconfig overlays per build type, signing key and output locations,
// and serial defaults for the generated flash script. Settings come from an
// optional YAML file next to the project; command-line flags override them.
package config
