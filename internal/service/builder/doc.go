// Package builder orchestrates the build pipeline as a linear state
// machine: resolve the project root, resolve the release identity and
// build type, validate signing inputs, clean previous output, invoke
// the external build tool, and hand the result to the release packager.
// Stages never branch back; any failure aborts the pipeline with an
// error naming the stage.
package builder
