package client

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hubclient/hubclient-go/pkg/connection"
	"github.com/hubclient/hubclient-go/pkg/log"
	"github.com/hubclient/hubclient-go/pkg/metrics"
	"github.com/hubclient/hubclient-go/pkg/method"
	"github.com/hubclient/hubclient-go/pkg/options"
	"github.com/hubclient/hubclient-go/pkg/queue"
	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/twin"
	"github.com/hubclient/hubclient-go/pkg/upload"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Client is a cooperative device client. See the package documentation.
type Client struct {
	cfg       Config
	transport transport.Transport
	clock     connection.Clock
	logger    *slog.Logger
	protoLog  log.Logger
	metrics   *metrics.Collector

	machine *connection.Machine
	queue   *queue.Queue
	twin    *twin.Engine
	methods *method.Dispatcher
	chunker *upload.Chunker

	opts         options.Options
	staged       *options.Options
	resetPending bool

	onStatus    connection.StatusFunc
	onStatusCtx any

	onMessage    MessageFunc
	onMessageCtx any
	messages     []transport.CloudMessage
	lastReceive  time.Time

	connectionID string
	inDoWork     bool
	destroyed    bool
}

// New creates a client over tr. The transport is not contacted until the
// first DoWork.
func New(cfg Config, tr transport.Transport) (*Client, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidArgument)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy := connection.NewPolicyEngine(cfg.Rand)
	if err := policy.SetPolicy(cfg.RetryPolicy); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	q := queue.New()
	q.SetAckTimeout(cfg.AckTimeout)
	c := &Client{
		cfg:       cfg,
		transport: tr,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		protoLog:  cfg.ProtocolLogger,
		metrics:   cfg.Metrics,
		machine:   connection.NewMachine(tr, policy),
		queue:     q,
		twin:      twin.New(q),
		methods:   method.New(q),
		chunker:   upload.New(),
	}
	c.machine.SetConnectTimeout(cfg.ConnectTimeout)
	c.machine.OnStatus(c.reportStatus, nil)
	c.machine.OnStateChange(c.stateChanged)
	c.machine.OnAttempt(c.connectAttempted)
	c.installHooks()

	c.staged = &cfg.Options
	c.applyStaged()
	c.metrics.SetConnectionState(uint8(connection.StateDisconnected))
	return c, nil
}

// NewFromConnectionString parses cs and builds the transport with factory.
func NewFromConnectionString(cs string, factory TransportFactory) (*Client, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil transport factory", ErrInvalidArgument)
	}
	parsed, err := ParseConnectionString(cs)
	if err != nil {
		return nil, err
	}
	tr, err := factory(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	cfg := DefaultConfig()
	cfg.DeviceID = parsed.DeviceID
	cfg.HubHost = parsed.HostName
	return New(cfg, tr)
}

// DoWork advances every subsystem by one bounded slice of work.
// It panics with ErrReentrantCall when called from a callback.
func (c *Client) DoWork() {
	if c.inDoWork {
		panic(ErrReentrantCall)
	}
	if c.destroyed {
		return
	}
	c.inDoWork = true
	defer func() { c.inDoWork = false }()

	start := c.clock.Now()
	now := start

	c.applyStaged()
	if c.resetPending {
		c.resetPending = false
		c.machine.Reset()
	}

	c.machine.Step(now)

	if c.machine.IsConnected() {
		c.queue.Flush(c.transport)
		c.pumpIncoming(now)
	}

	c.queue.Step(now)
	c.dispatchMessages(now)

	connected := c.machine.IsConnected()
	if err := c.twin.Step(c.transport, connected); err != nil {
		c.debugLog("twin request failed", slog.Any("error", err))
		c.logError(log.LayerClient, err, "twin get")
	}
	c.methods.Step(now)
	c.chunker.Step(c.transport, connected, now)

	c.updateDepthMetrics()
	c.metrics.ObserveDoWork(c.clock.Now().Sub(start))
}

// Destroy cancels everything without firing callbacks and disconnects.
// Every later call returns ErrShuttingDown. It panics with ErrReentrantCall
// when called from a callback.
func (c *Client) Destroy() {
	if c.inDoWork {
		panic(ErrReentrantCall)
	}
	if c.destroyed {
		return
	}
	c.destroyed = true

	c.queue.Close()
	c.twin.Close()
	c.methods.Close()
	c.chunker.Close()
	c.messages = nil
	c.onMessage = nil
	c.onStatus = nil

	if err := c.machine.Close(); err != nil {
		c.debugLog("disconnect failed", slog.Any("error", err))
	}
	if closer, ok := c.transport.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.debugLog("transport close failed", slog.Any("error", err))
		}
	}
	c.debugLog("client destroyed")
}

// ConnectionState returns the current connection state.
func (c *Client) ConnectionState() connection.State {
	return c.machine.State()
}

// SetConnectionStatusCallback registers the status callback. Nil unregisters.
// The callback fires once per distinct (state, reason) pair: a retrying
// client whose failure cause changes reports DISCONNECTED_RETRYING again
// with the new reason. Connecting is never reported.
func (c *Client) SetConnectionStatusCallback(cb connection.StatusFunc, userCtx any) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	c.onStatus = cb
	c.onStatusCtx = userCtx
	return nil
}

// pumpIncoming routes at most MaxIncomingPerCall inbound items.
func (c *Client) pumpIncoming(now time.Time) {
	for i := 0; i < c.cfg.MaxIncomingPerCall && c.machine.IsConnected(); i++ {
		item, ok := c.transport.PollIncoming()
		if !ok {
			return
		}
		c.route(item, now)
	}
}

func (c *Client) route(item transport.Incoming, now time.Time) {
	switch in := item.(type) {
	case transport.Ack:
		c.metrics.ObserveIncoming("ack")
		c.logAck(in)
		switch in.Kind {
		case wire.KindUploadBlock, wire.KindUploadCommit:
			c.chunker.Acknowledge(in.Seq, in.Status)
		default:
			if !c.queue.Acknowledge(in.Kind, in.Seq, in.Status) {
				c.debugLog("ack for unknown item", slog.String("kind", in.Kind.String()), slog.Uint64("seq", in.Seq))
				return
			}
			if in.Kind == wire.KindTwinReport && in.Status.IsSuccess() {
				c.twin.RecordReportedVersion(in.Version)
			}
		}

	case transport.TwinUpdate:
		c.metrics.ObserveIncoming("twin")
		c.logInbound(wire.KindUnknown, "", "twin", len(in.Payload))
		c.twin.Deliver(in)

	case transport.MethodInvocation:
		c.metrics.ObserveIncoming("method")
		c.logInbound(wire.KindMethodResponse, in.ID, in.Name, len(in.Payload))
		c.methods.Deliver(in)

	case transport.CloudMessage:
		c.metrics.ObserveIncoming("message")
		c.logInbound(wire.KindDisposition, in.ID, "", len(in.Payload))
		c.messages = append(c.messages, in)

	case transport.ConnectionLost:
		c.metrics.ObserveIncoming("connection_lost")
		c.debugLog("connection lost", slog.Any("error", in.Err))
		c.logError(log.LayerTransport, in.Err, "connection lost")
		if err := c.transport.Disconnect(); err != nil {
			c.debugLog("disconnect after loss failed", slog.Any("error", err))
		}
		c.queue.Requeue()
		c.chunker.ConnectionLost()
		c.machine.ConnectionLost(in.Err, now)
	}
}

// reportStatus is the machine's status callback.
func (c *Client) reportStatus(state connection.State, reason connection.Reason, _ any) {
	c.metrics.ObserveStatus(state.String(), reason.String())
	if c.onStatus != nil {
		c.onStatus(state, reason, c.onStatusCtx)
	}
}

func (c *Client) stateChanged(oldState, newState connection.State, reason connection.Reason) {
	if newState == connection.StateConnected {
		c.connectionID = uuid.NewString()
		c.twin.Connected()
	}
	c.metrics.SetConnectionState(uint8(newState))
	c.debugLog("connection state changed",
		slog.String("from", oldState.String()),
		slog.String("to", newState.String()),
		slog.String("reason", reason.String()))
	c.logState(log.StateEntityConnection, oldState.String(), newState.String(), reason.String())
}

func (c *Client) connectAttempted(err error) {
	c.metrics.ObserveConnectAttempt(err)
	if err != nil {
		c.debugLog("connect attempt failed", slog.Any("error", err))
		c.logError(log.LayerTransport, err, "connect")
	}
}

func (c *Client) updateDepthMetrics() {
	if c.metrics == nil {
		return
	}
	for _, k := range wire.QueuedKinds {
		c.metrics.SetQueueDepth(k.String(), c.queue.Len(k))
	}
}

// debugLog logs a debug message if logging is enabled.
func (c *Client) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
