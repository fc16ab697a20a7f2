// Package packager turns a finished firmware build into a distributable
// release bundle. It classifies the build's security posture, rewrites
// the flashing metadata to match, derives the secure boot key digest
// when required, generates a standalone flash script, and assembles
// everything with the referenced binaries into one atomically written
// archive. Private key material never enters the bundle.
package packager
