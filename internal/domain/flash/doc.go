// Package flash models the build tool's flashing metadata as a typed
// manifest, classifies the security posture of a build (secure boot,
// flash encryption), and rewrites the manifest to match that posture.
//
// Entry order in the manifest is the flashing order and survives the
// round trip through parsing and serialization; top-level fields the
// package does not recognize are preserved verbatim.
package flash
