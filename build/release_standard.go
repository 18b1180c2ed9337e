//go:build !dev && !testing

package build

// Release is the build tag for the current binary. It is "standard" unless
// the "dev" or "testing" build tag was passed to the compiler.
var Release = "standard"

// DEBUG is set when extra sanity checks and panics-on-Critical should be
// enabled. It is always false in a standard release build.
var DEBUG = false
