// Package version provides the symbolic version of this binary, set at build
// time via -ldflags="-X github.com/mdtb/wifitest/pkg/version.Version=...".
package version

// Version is the symbolic version of the running code.
var Version = ""
