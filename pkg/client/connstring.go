package client

import (
	"fmt"
	"strings"

	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/transport/mqtt"
)

// Connection string keys.
const (
	keyHostName              = "HostName"
	keyDeviceID              = "DeviceId"
	keyModuleID              = "ModuleId"
	keySharedAccessKey       = "SharedAccessKey"
	keySharedAccessKeyName   = "SharedAccessKeyName"
	keySharedAccessSignature = "SharedAccessSignature"
	keyGatewayHostName       = "GatewayHostName"
)

// ConnectionString is a parsed device connection string.
type ConnectionString struct {
	HostName              string
	DeviceID              string
	ModuleID              string
	SharedAccessKey       string
	SharedAccessKeyName   string
	SharedAccessSignature string
	GatewayHostName       string
}

// ParseConnectionString parses "HostName=...;DeviceId=...;SharedAccessKey=...".
// Keys are case-sensitive; values may contain '='.
func ParseConnectionString(s string) (*ConnectionString, error) {
	cs := &ConnectionString{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok || value == "" {
			return nil, fmt.Errorf("%w: malformed connection string segment %q", ErrInvalidArgument, key)
		}
		switch key {
		case keyHostName:
			cs.HostName = value
		case keyDeviceID:
			cs.DeviceID = value
		case keyModuleID:
			cs.ModuleID = value
		case keySharedAccessKey:
			cs.SharedAccessKey = value
		case keySharedAccessKeyName:
			cs.SharedAccessKeyName = value
		case keySharedAccessSignature:
			cs.SharedAccessSignature = value
		case keyGatewayHostName:
			cs.GatewayHostName = value
		default:
			return nil, fmt.Errorf("%w: unknown connection string key %q", ErrInvalidArgument, key)
		}
	}

	switch {
	case cs.HostName == "":
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidArgument, keyHostName)
	case cs.DeviceID == "":
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidArgument, keyDeviceID)
	case cs.SharedAccessKey == "" && cs.SharedAccessSignature == "":
		return nil, fmt.Errorf("%w: %s or %s is required", ErrInvalidArgument, keySharedAccessKey, keySharedAccessSignature)
	case cs.SharedAccessKey != "" && cs.SharedAccessSignature != "":
		return nil, fmt.Errorf("%w: %s and %s are exclusive", ErrInvalidArgument, keySharedAccessKey, keySharedAccessSignature)
	}
	return cs, nil
}

// String renders the connection string with the key redacted.
func (cs *ConnectionString) String() string {
	parts := []string{keyHostName + "=" + cs.HostName, keyDeviceID + "=" + cs.DeviceID}
	if cs.ModuleID != "" {
		parts = append(parts, keyModuleID+"="+cs.ModuleID)
	}
	if cs.SharedAccessKey != "" {
		parts = append(parts, keySharedAccessKey+"=***")
	}
	if cs.SharedAccessSignature != "" {
		parts = append(parts, keySharedAccessSignature+"=***")
	}
	if cs.GatewayHostName != "" {
		parts = append(parts, keyGatewayHostName+"="+cs.GatewayHostName)
	}
	return strings.Join(parts, ";")
}

// TransportFactory builds the transport for a parsed connection string.
type TransportFactory func(cs *ConnectionString) (transport.Transport, error)

// MQTTTransport is the TransportFactory for the hub MQTT protocol.
func MQTTTransport(cs *ConnectionString) (transport.Transport, error) {
	return mqtt.New(mqtt.Config{
		Host:                cs.HostName,
		GatewayHost:         cs.GatewayHostName,
		DeviceID:            cs.DeviceID,
		ModuleID:            cs.ModuleID,
		SharedAccessKey:     cs.SharedAccessKey,
		SharedAccessKeyName: cs.SharedAccessKeyName,
		SASToken:            cs.SharedAccessSignature,
	})
}
