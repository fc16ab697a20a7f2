// Package release defines the build descriptor shared by every pipeline
// stage: the build type (development or release), the resolved release
// name, and the build directory. It also owns release naming rules and
// the configuration error kind.
package release
