//go:build !devrpc

package hsmd

// devBuildEnabled is false unless the binary is built with the devrpc
// tag. With it unset, MsgDevMemleak always resolves to BadRequest
// regardless of the issuing session's capabilities, restoring the
// build-flag gate the original places around development-only request
// types.
const devBuildEnabled = false
