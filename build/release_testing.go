//go:build testing

package build

// Release is "testing" when the binary was compiled with the "testing" build
// tag. build.Select uses this to pick fast/deterministic timings for tests.
var Release = "testing"

// DEBUG is enabled in testing builds so that Critical panics, letting tests
// assert on invariant violations instead of silently swallowing them.
var DEBUG = true
