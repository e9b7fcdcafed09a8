package client

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hubclient/hubclient-go/pkg/connection"
	"github.com/hubclient/hubclient-go/pkg/log"
	"github.com/hubclient/hubclient-go/pkg/metrics"
	"github.com/hubclient/hubclient-go/pkg/options"
	"github.com/hubclient/hubclient-go/pkg/queue"
)

// DefaultMaxIncomingPerCall bounds inbound items handled by one DoWork.
const DefaultMaxIncomingPerCall = 32

// Config configures a Client.
type Config struct {
	// DeviceID and HubHost label logs and protocol events.
	DeviceID string
	HubHost  string

	// RetryPolicy is the initial reconnection policy.
	RetryPolicy connection.RetryPolicy

	// Options is the initial option set. Later changes go through SetOption.
	Options options.Options

	// ConnectTimeout bounds one connect attempt.
	ConnectTimeout time.Duration

	// AckTimeout bounds the wait for the acknowledgement of a sent event,
	// reported-state patch or method response. It applies even when the
	// messageTimeout option is off.
	AckTimeout time.Duration

	// MaxIncomingPerCall bounds inbound items handled by one DoWork.
	MaxIncomingPerCall int

	// Clock defaults to the wall clock. Tests substitute a fake.
	Clock connection.Clock

	// Rand drives retry jitter. If nil, a time-seeded source is used.
	Rand *rand.Rand

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events while the logtrace option is on.
	ProtocolLogger log.Logger

	// Metrics is the optional Prometheus collector.
	Metrics *metrics.Collector
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryPolicy:        connection.DefaultRetryPolicy(),
		Options:            options.Default(),
		ConnectTimeout:     connection.DefaultConnectTimeout,
		AckTimeout:         queue.DefaultAckTimeout,
		MaxIncomingPerCall: DefaultMaxIncomingPerCall,
		Clock:              connection.SystemClock{},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.RetryPolicy.Kind.IsValid() {
		return fmt.Errorf("%w: retry policy %d", ErrInvalidArgument, c.RetryPolicy.Kind)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("%w: negative connect timeout", ErrInvalidArgument)
	}
	if c.AckTimeout < 0 {
		return fmt.Errorf("%w: negative ack timeout", ErrInvalidArgument)
	}
	if c.MaxIncomingPerCall < 0 {
		return fmt.Errorf("%w: negative MaxIncomingPerCall", ErrInvalidArgument)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.MaxIncomingPerCall == 0 {
		c.MaxIncomingPerCall = DefaultMaxIncomingPerCall
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = connection.DefaultConnectTimeout
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = queue.DefaultAckTimeout
	}
	if c.Clock == nil {
		c.Clock = connection.SystemClock{}
	}
	if c.Options == (options.Options{}) {
		c.Options = options.Default()
	}
}
