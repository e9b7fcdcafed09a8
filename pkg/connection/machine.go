package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hubclient/hubclient-go/pkg/transport"
)

// DefaultConnectTimeout bounds a single connect attempt.
const DefaultConnectTimeout = 30 * time.Second

// ErrConnectTimeout is wrapped with transport.ErrNoNetwork when an
// asynchronous connect attempt outlives the connect timeout.
var ErrConnectTimeout = errors.New("connect attempt timed out")

// Connector is the part of a transport the state machine drives.
// A Connector that also implements transport.AsyncConnector is connected
// without blocking: the machine stays Connecting across Steps and polls it.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect() error
}

// Clock supplies the current time. Tests substitute a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// StatusFunc receives reported state transitions.
type StatusFunc func(state State, reason Reason, userCtx any)

// Machine drives connect, retry and expiry for one client.
// Connecting is never reported to the status callback.
type Machine struct {
	conn           Connector
	async          transport.AsyncConnector
	policy         *PolicyEngine
	connectTimeout time.Duration
	attemptStart   time.Time

	state     State
	lastErr   error
	lastCause Reason

	// Last reported (state, reason) pair, to suppress duplicates.
	reported      bool
	reportedState State
	reportedWhy   Reason

	onStatus      StatusFunc
	onStatusCtx   any
	onStateChange func(oldState, newState State, reason Reason)
	onAttempt     func(err error)

	closed bool
}

// NewMachine creates a state machine over conn using policy.
func NewMachine(conn Connector, policy *PolicyEngine) *Machine {
	async, _ := conn.(transport.AsyncConnector)
	return &Machine{
		conn:           conn,
		async:          async,
		policy:         policy,
		connectTimeout: DefaultConnectTimeout,
		state:          StateDisconnected,
	}
}

// SetConnectTimeout bounds each connect attempt. Non-positive values restore the default.
func (m *Machine) SetConnectTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultConnectTimeout
	}
	m.connectTimeout = d
}

// OnStatus registers the host status callback. Nil unregisters.
func (m *Machine) OnStatus(fn StatusFunc, userCtx any) {
	m.onStatus = fn
	m.onStatusCtx = userCtx
}

// OnStateChange sets an internal hook fired on every state change,
// including unreported ones.
func (m *Machine) OnStateChange(fn func(oldState, newState State, reason Reason)) {
	m.onStateChange = fn
}

// OnAttempt sets an internal hook fired after every connect attempt.
func (m *Machine) OnAttempt(fn func(err error)) {
	m.onAttempt = fn
}

// State returns the current connection state.
func (m *Machine) State() State {
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Machine) IsConnected() bool {
	return m.state == StateConnected
}

// LastError returns the error of the most recent failed attempt or loss.
func (m *Machine) LastError() error {
	return m.lastErr
}

// Policy returns the retry policy engine.
func (m *Machine) Policy() *PolicyEngine {
	return m.policy
}

// Step performs one bounded slice of connection work at now.
func (m *Machine) Step(now time.Time) {
	if m.closed {
		return
	}

	switch m.state {
	case StateDisconnected:
		m.attempt(now)
	case StateDisconnectedRetrying:
		switch m.policy.ShouldRetryNow(now) {
		case DecisionRetryNow:
			m.attempt(now)
		case DecisionExpired:
			m.transition(StateDisconnectedExpired, ReasonRetryExpired)
		case DecisionWait:
		}
	case StateConnecting:
		m.pollAttempt(now)
	case StateConnected, StateDisconnectedExpired:
	}
}

// ConnectionLost records that an established session dropped.
// The first retry of the new outage is eligible immediately.
func (m *Machine) ConnectionLost(err error, now time.Time) {
	if m.closed || m.state != StateConnected {
		return
	}
	m.lastErr = err
	m.lastCause = Classify(err)
	m.policy.BeginOutage(now)
	m.transition(StateDisconnectedRetrying, m.lastCause)
}

// Reset revives an expired machine with a fresh outage.
// It is the host's corrective action after retry expiry.
func (m *Machine) Reset() {
	if m.closed || m.state != StateDisconnectedExpired {
		return
	}
	m.policy.Reset()
	m.transition(StateDisconnectedRetrying, m.lastCause)
}

// SetPolicy replaces the retry policy. An outage in progress starts over
// and an expired machine resumes retrying.
func (m *Machine) SetPolicy(p RetryPolicy) error {
	if err := m.policy.SetPolicy(p); err != nil {
		return err
	}
	if m.state == StateDisconnectedExpired {
		m.Reset()
	}
	return nil
}

// Close disconnects the transport without reporting a status.
func (m *Machine) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.onStatus = nil

	var err error
	switch {
	case m.state == StateConnected:
		err = m.conn.Disconnect()
	case m.state == StateConnecting && m.async != nil:
		m.async.CancelConnect()
	}
	m.setState(StateDisconnected, ReasonClientClose)
	return err
}

func (m *Machine) attempt(now time.Time) {
	m.setState(StateConnecting, ReasonOK)

	if m.async != nil {
		m.attemptStart = now
		if err := m.async.BeginConnect(m.connectTimeout); err != nil {
			m.finishAttempt(err, now)
			return
		}
		m.pollAttempt(now)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout)
	err := m.conn.Connect(ctx)
	cancel()
	m.finishAttempt(err, now)
}

// pollAttempt checks an asynchronous attempt and fails it once it outlives
// the connect timeout.
func (m *Machine) pollAttempt(now time.Time) {
	if m.async == nil {
		return
	}
	done, err := m.async.PollConnect()
	if !done {
		if now.Sub(m.attemptStart) < m.connectTimeout {
			return
		}
		m.async.CancelConnect()
		err = fmt.Errorf("%w: %w after %v", transport.ErrNoNetwork, ErrConnectTimeout, m.connectTimeout)
	}
	m.finishAttempt(err, now)
}

func (m *Machine) finishAttempt(err error, now time.Time) {
	if m.onAttempt != nil {
		m.onAttempt(err)
	}

	if err == nil {
		m.lastErr = nil
		m.policy.Reset()
		m.transition(StateConnected, ReasonOK)
		return
	}

	m.lastErr = err
	m.lastCause = Classify(err)
	m.policy.RecordFailure(now)

	// A policy that never retries expires on the first failure.
	if m.policy.ShouldRetryNow(now) == DecisionExpired {
		m.transition(StateDisconnectedExpired, ReasonRetryExpired)
		return
	}
	m.transition(StateDisconnectedRetrying, m.lastCause)
}

// transition changes state and reports it once per distinct (state, reason).
// A reason change within the same state is reported, so a host sees a retry
// outage move from NO_NETWORK to BAD_CREDENTIAL.
func (m *Machine) transition(state State, reason Reason) {
	m.setState(state, reason)

	if m.reported && m.reportedState == state && m.reportedWhy == reason {
		return
	}
	m.reported = true
	m.reportedState = state
	m.reportedWhy = reason

	if m.onStatus != nil {
		m.onStatus(state, reason, m.onStatusCtx)
	}
}

func (m *Machine) setState(state State, reason Reason) {
	old := m.state
	m.state = state
	if old != state && m.onStateChange != nil {
		m.onStateChange(old, state, reason)
	}
}
