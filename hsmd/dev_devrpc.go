//go:build devrpc

package hsmd

// devBuildEnabled is true in a devrpc build, allowing MsgDevMemleak
// through to the configured SigningBackend for CapDev-holding sessions.
const devBuildEnabled = true
