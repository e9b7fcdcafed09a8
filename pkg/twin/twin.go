// Package twin synchronizes desired and reported device-twin properties.
//
// Reported-property patches are queued on the client's operation queue so
// each submission gets its own completion. Desired-property updates arrive
// from the transport, are buffered by Deliver and forwarded to the single
// registered callback on the next Step.
package twin

import (
	"errors"
	"fmt"
	"time"

	"github.com/hubclient/hubclient-go/pkg/queue"
	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Twin errors.
var (
	ErrEmptyPayload = errors.New("reported state payload is empty")
)

// Update is a desired-property update handed to the host.
type Update struct {
	Payload []byte

	// DesiredVersion is the $version of the desired section.
	DesiredVersion int64

	// ReportedVersion is the last reported version the hub has seen.
	ReportedVersion int64

	// Complete is true when Payload is the full twin document.
	Complete bool
}

// DesiredFunc receives desired-property updates.
type DesiredFunc func(update Update, userCtx any)

// State is the version bookkeeping of the twin.
type State struct {
	LastReportedVersion int64
	LastDesiredVersion  int64
	PendingReports      int
}

// Engine tracks twin versions and routes updates.
type Engine struct {
	queue *queue.Queue

	onDesired    DesiredFunc
	onDesiredCtx any

	inbox       []transport.TwinUpdate
	needFullGet bool
	discarded   int

	lastReported int64
	lastDesired  int64
}

// New creates a twin engine that submits reports through q.
func New(q *queue.Queue) *Engine {
	return &Engine{queue: q}
}

// SetDesiredCallback replaces the desired-property callback. Nil unregisters.
// Registering a callback requests the full twin on the next connected Step.
func (e *Engine) SetDesiredCallback(cb DesiredFunc, userCtx any) {
	if cb != nil && e.onDesired == nil {
		e.needFullGet = true
	}
	e.onDesired = cb
	e.onDesiredCtx = userCtx
}

// SubmitReported queues a reported-property patch.
func (e *Engine) SubmitReported(payload []byte, cb queue.CompletionFunc, userCtx any, now time.Time) (uint64, error) {
	if len(payload) == 0 {
		return 0, ErrEmptyPayload
	}
	f := wire.Frame{
		Kind:        wire.KindTwinReport,
		Payload:     payload,
		ContentType: "application/json",
	}
	seq, err := e.queue.Enqueue(f, cb, userCtx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to queue reported state: %w", err)
	}
	return seq, nil
}

// Deliver buffers an inbound desired-property update for the next Step.
func (e *Engine) Deliver(u transport.TwinUpdate) {
	e.inbox = append(e.inbox, u)
}

// Connected marks that a new session started; the full twin is requested
// again so no desired change made while offline is missed.
func (e *Engine) Connected() {
	e.needFullGet = true
}

// RecordReportedVersion stores the version the hub assigned to a report.
func (e *Engine) RecordReportedVersion(v int64) {
	if v > e.lastReported {
		e.lastReported = v
	}
}

// Step requests the full twin when needed, then forwards buffered updates.
// Updates arriving with no callback registered are discarded.
func (e *Engine) Step(s queue.Sender, connected bool) error {
	var sendErr error
	if connected && e.needFullGet && e.onDesired != nil {
		sendErr = e.requestFull(s)
	}

	inbox := e.inbox
	e.inbox = nil
	for _, u := range inbox {
		if u.DesiredVersion > e.lastDesired {
			e.lastDesired = u.DesiredVersion
		}
		e.RecordReportedVersion(u.ReportedVersion)

		if e.onDesired == nil {
			e.discarded++
			continue
		}
		e.onDesired(Update{
			Payload:         u.Payload,
			DesiredVersion:  u.DesiredVersion,
			ReportedVersion: u.ReportedVersion,
			Complete:        u.Complete,
		}, e.onDesiredCtx)
	}
	return sendErr
}

// State returns the version bookkeeping.
func (e *Engine) State() State {
	return State{
		LastReportedVersion: e.lastReported,
		LastDesiredVersion:  e.lastDesired,
		PendingReports:      e.queue.Len(wire.KindTwinReport),
	}
}

// Discarded returns how many updates arrived with no callback registered.
func (e *Engine) Discarded() int {
	return e.discarded
}

// Close drops buffered updates and the callback.
func (e *Engine) Close() {
	e.inbox = nil
	e.onDesired = nil
	e.onDesiredCtx = nil
}

func (e *Engine) requestFull(s queue.Sender) error {
	data, err := wire.EncodeFrame(&wire.Frame{Kind: wire.KindTwinGet})
	if err != nil {
		return err
	}
	if err := s.SendEncoded(data); err != nil {
		return fmt.Errorf("failed to request twin: %w", err)
	}
	e.needFullGet = false
	return nil
}
