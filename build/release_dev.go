//go:build dev

package build

// Release is "dev" when the binary was compiled with the "dev" build tag.
var Release = "dev"

// DEBUG is enabled in dev builds so that Critical panics instead of just
// logging, surfacing invariant violations immediately during development.
var DEBUG = true
