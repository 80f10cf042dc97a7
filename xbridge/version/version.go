// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package version carries the module's build version, kept distinct from
// the wire protocol version (packet.ProtocolVersion in xbridge/packet),
// exactly as dcrdex separates
// server build version from its msgjson protocol version.
package version

import "fmt"

const (
	Major = 1
	Minor = 0
	Patch = 0
)

// String returns the semantic version string, e.g. "1.0.0".
func String() string {
	return fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
}
