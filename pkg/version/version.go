// Package version provides gateway protocol version parsing and the SDK
// identity sent to the hub.
package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Current is the gateway relay protocol version implemented by this library.
// Gateways advertise theirs in the "ver" TXT key.
const Current = "1.0"

// SDK identity.
const (
	SDKName    = "hubclient-go"
	SDKVersion = "0.3.0"
)

// ProtocolVersion represents a parsed "major.minor" protocol version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (ProtocolVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return ProtocolVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// SupportsGateway reports whether a gateway advertising ver can relay for
// this library. An empty version is accepted; older gateways omit it.
func SupportsGateway(ver string) bool {
	if ver == "" {
		return true
	}
	theirs, err := Parse(ver)
	if err != nil {
		return false
	}
	ours, _ := Parse(Current)
	return ours.Compatible(theirs)
}

// UserAgent returns the client identity reported to the hub, with the
// host's product info appended when set.
func UserAgent(productInfo string) string {
	ua := fmt.Sprintf("%s/%s (%s; %s; %s)", SDKName, SDKVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if productInfo != "" {
		ua += " " + productInfo
	}
	return ua
}
