package connection

import (
	"errors"

	"github.com/hubclient/hubclient-go/pkg/transport"
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no connection has been attempted yet.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateDisconnectedRetrying indicates the retry policy is driving reconnection.
	StateDisconnectedRetrying

	// StateDisconnectedExpired indicates the retry policy gave up.
	StateDisconnectedExpired
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnectedRetrying:
		return "DISCONNECTED_RETRYING"
	case StateDisconnectedExpired:
		return "DISCONNECTED_EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Reason explains a reported state.
type Reason uint8

const (
	ReasonOK Reason = iota
	ReasonRetryExpired
	ReasonNoNetwork
	ReasonCommunicationError
	ReasonBadCredential
	ReasonExpiredSASToken
	ReasonDeviceDisabled
	ReasonClientClose
)

// String returns a human-readable reason name.
func (r Reason) String() string {
	switch r {
	case ReasonOK:
		return "OK"
	case ReasonRetryExpired:
		return "RETRY_EXPIRED"
	case ReasonNoNetwork:
		return "NO_NETWORK"
	case ReasonCommunicationError:
		return "COMMUNICATION_ERROR"
	case ReasonBadCredential:
		return "BAD_CREDENTIAL"
	case ReasonExpiredSASToken:
		return "EXPIRED_SAS_TOKEN"
	case ReasonDeviceDisabled:
		return "DEVICE_DISABLED"
	case ReasonClientClose:
		return "CLIENT_CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Classify maps a transport error onto a reason code.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ReasonOK
	case errors.Is(err, transport.ErrNoNetwork):
		return ReasonNoNetwork
	case errors.Is(err, transport.ErrTokenExpired):
		return ReasonExpiredSASToken
	case errors.Is(err, transport.ErrUnauthorized):
		return ReasonBadCredential
	case errors.Is(err, transport.ErrDeviceDisabled):
		return ReasonDeviceDisabled
	case errors.Is(err, transport.ErrClosed):
		return ReasonClientClose
	default:
		return ReasonCommunicationError
	}
}
