package discovery

import (
	"errors"
	"time"
)

// Service types and domain.
const (
	ServiceTypeGateway = "_hubgw._tcp"
	ServiceTypeDevice  = "_hubdev._tcp"
	Domain             = "local."
)

// TXT record keys.
const (
	TXTKeyHub      = "hub"
	TXTKeyProtocol = "proto"
	TXTKeyVersion  = "ver"
	TXTKeyDevice   = "dev"
	TXTKeyModule   = "mod"
)

// Timeouts.
const (
	BrowseTimeout = 10 * time.Second
	DefaultTTL    = 120 * time.Second
)

// Errors.
var (
	ErrNotFound        = errors.New("service not found")
	ErrMissingRequired = errors.New("missing required TXT field")
	ErrInvalidTXT      = errors.New("invalid TXT record")
	ErrInvalidPort     = errors.New("invalid port")
)

// GatewayInfo is the advertised description of a gateway.
type GatewayInfo struct {
	HubHost  string
	Protocol string
	Version  string
}

// GatewayService is a gateway found on the network.
type GatewayService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	GatewayInfo
}

// Address returns the first resolved address, falling back to the host name.
func (g *GatewayService) Address() string {
	if len(g.Addresses) > 0 {
		return g.Addresses[0]
	}
	return g.Host
}

// DeviceInfo is the advertised description of a device.
type DeviceInfo struct {
	InstanceName string
	HubHost      string
	DeviceID     string
	ModuleID     string
	Port         uint16
}

// InstanceNameFor returns the mDNS instance name of a device.
func InstanceNameFor(deviceID, moduleID string) string {
	if moduleID == "" {
		return deviceID
	}
	return deviceID + "-" + moduleID
}
