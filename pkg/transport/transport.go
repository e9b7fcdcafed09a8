package transport

import (
	"context"
	"errors"
	"time"

	"github.com/hubclient/hubclient-go/pkg/options"
)

// Transport errors.
var (
	// ErrNoNetwork indicates the hub endpoint could not be reached.
	ErrNoNetwork = errors.New("no network")

	// ErrUnauthorized indicates the hub rejected the device credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the SAS token presented to the hub has expired.
	ErrTokenExpired = errors.New("sas token expired")

	// ErrDeviceDisabled indicates the device identity is disabled on the hub.
	ErrDeviceDisabled = errors.New("device disabled")

	// ErrNotConnected is returned by SendEncoded when no session exists.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned after the transport has been closed.
	ErrClosed = errors.New("transport closed")

	// ErrUnsupported is returned for frame kinds the adapter cannot carry.
	ErrUnsupported = errors.New("unsupported by transport")
)

// Transport is the protocol adapter consumed by the client core.
// All methods are called from the goroutine running Client.DoWork.
type Transport interface {
	// Connect establishes a session with the hub.
	Connect(ctx context.Context) error

	// Disconnect tears down the session. Safe to call when not connected.
	Disconnect() error

	// SendEncoded hands one CBOR-encoded wire.Frame to the adapter.
	// It must not block on network round trips; the outcome of an
	// acknowledged frame is reported later through PollIncoming as an Ack.
	SendEncoded(frame []byte) error

	// PollIncoming returns the next inbound item, or false when none is ready.
	// It never blocks.
	PollIncoming() (Incoming, bool)
}

// Configurable is implemented by transports that accept runtime options
// (keepalive, SAS token lifetime, product info).
type Configurable interface {
	ApplyOptions(opts options.Options) error
}

// AsyncConnector is implemented by transports whose connect needs network
// round trips. The client then never waits inside DoWork: BeginConnect
// starts an attempt and returns at once, and PollConnect is consulted on
// later DoWork calls until it reports done.
type AsyncConnector interface {
	// BeginConnect starts a connect attempt bounded by timeout.
	// An error means the attempt could not be started and has already failed.
	BeginConnect(timeout time.Duration) error

	// PollConnect reports whether the attempt finished and, if so, its outcome.
	// It never blocks.
	PollConnect() (done bool, err error)

	// CancelConnect abandons an attempt in progress. Safe to call when idle.
	CancelConnect()
}
