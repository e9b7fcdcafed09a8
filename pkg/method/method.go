// Package method dispatches direct method invocations from the cloud.
//
// A dispatcher runs in one of two modes. With a SyncHandler the response is
// produced inside the handler call. With an AsyncHandler the invocation is
// recorded as pending and the host answers later through Respond. Every
// invocation gets exactly one response; with no handler registered the
// dispatcher answers StatusNotImplemented.
package method

import (
	"errors"
	"fmt"
	"time"

	"github.com/hubclient/hubclient-go/pkg/queue"
	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Dispatcher errors.
var (
	ErrUnknownInvocation = errors.New("unknown method invocation")
	ErrAlreadyResolved   = errors.New("method invocation already resolved")
)

// StatusNotImplemented answers invocations that arrive with no handler.
const StatusNotImplemented = 501

// resolvedHistory bounds how many resolved identities are remembered.
const resolvedHistory = 256

// SyncHandler answers an invocation immediately.
type SyncHandler func(name string, payload []byte, userCtx any) (status int, response []byte)

// AsyncHandler receives an invocation to be answered later with Respond.
type AsyncHandler func(name string, payload []byte, id string, userCtx any)

// Invocation is a method call tracked by the dispatcher.
type Invocation struct {
	ID       string
	Name     string
	Payload  []byte
	Status   int
	Response []byte
	Resolved bool
	Received time.Time
}

// Dispatcher routes invocations to the registered handler.
type Dispatcher struct {
	queue *queue.Queue

	syncHandler  SyncHandler
	asyncHandler AsyncHandler
	handlerCtx   any

	inbox   []transport.MethodInvocation
	pending map[string]*Invocation

	resolved      map[string]struct{}
	resolvedOrder []string

	duplicates int
	onDrop     func(id string)
	onFail     func(id string, err error)
}

// New creates a dispatcher that queues responses on q.
func New(q *queue.Queue) *Dispatcher {
	return &Dispatcher{
		queue:    q,
		pending:  make(map[string]*Invocation),
		resolved: make(map[string]struct{}),
	}
}

// SetHandler installs a synchronous handler and clears any asynchronous one.
// Nil clears both.
func (d *Dispatcher) SetHandler(h SyncHandler, userCtx any) {
	d.syncHandler = h
	d.asyncHandler = nil
	d.handlerCtx = userCtx
}

// SetAsyncHandler installs an asynchronous handler and clears any synchronous one.
// Nil clears both.
func (d *Dispatcher) SetAsyncHandler(h AsyncHandler, userCtx any) {
	d.asyncHandler = h
	d.syncHandler = nil
	d.handlerCtx = userCtx
}

// OnDuplicate sets a hook fired when an invocation arrives whose identity is
// still pending. The duplicate is dropped.
func (d *Dispatcher) OnDuplicate(fn func(id string)) {
	d.onDrop = fn
}

// OnResponseError sets a hook fired when a response produced during Step
// cannot be queued. The invocation is dropped unanswered.
func (d *Dispatcher) OnResponseError(fn func(id string, err error)) {
	d.onFail = fn
}

// Deliver buffers an inbound invocation for the next Step.
func (d *Dispatcher) Deliver(inv transport.MethodInvocation) {
	d.inbox = append(d.inbox, inv)
}

// Step dispatches buffered invocations.
func (d *Dispatcher) Step(now time.Time) {
	inbox := d.inbox
	d.inbox = nil

	for _, in := range inbox {
		if d.queue.Closed() {
			return
		}
		if _, busy := d.pending[in.ID]; busy {
			d.duplicates++
			if d.onDrop != nil {
				d.onDrop(in.ID)
			}
			continue
		}
		d.forget(in.ID)

		inv := &Invocation{
			ID:       in.ID,
			Name:     in.Name,
			Payload:  in.Payload,
			Received: now,
		}

		switch {
		case d.syncHandler != nil:
			status, response := d.syncHandler(in.Name, in.Payload, d.handlerCtx)
			d.pending[inv.ID] = inv
			d.answer(inv, response, status, now)
		case d.asyncHandler != nil:
			// Registered first so the handler may respond from inside the call.
			d.pending[inv.ID] = inv
			d.asyncHandler(in.Name, in.Payload, in.ID, d.handlerCtx)
		default:
			d.pending[inv.ID] = inv
			d.answer(inv, nil, StatusNotImplemented, now)
		}
	}
}

// Respond answers a pending asynchronous invocation.
func (d *Dispatcher) Respond(id string, response []byte, status int, now time.Time) error {
	inv, ok := d.pending[id]
	if !ok {
		if _, done := d.resolved[id]; done {
			return fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
		}
		return fmt.Errorf("%w: %s", ErrUnknownInvocation, id)
	}
	return d.resolve(inv, response, status, now)
}

// Lookup returns the pending invocation for id.
func (d *Dispatcher) Lookup(id string) (Invocation, bool) {
	inv, ok := d.pending[id]
	if !ok {
		return Invocation{}, false
	}
	return *inv, true
}

// Pending returns the number of unanswered invocations.
func (d *Dispatcher) Pending() int {
	return len(d.pending)
}

// Duplicates returns how many invocations were dropped as duplicates.
func (d *Dispatcher) Duplicates() int {
	return d.duplicates
}

// Close drops pending invocations and handlers without responding.
func (d *Dispatcher) Close() {
	d.syncHandler = nil
	d.asyncHandler = nil
	d.handlerCtx = nil
	d.inbox = nil
	d.pending = make(map[string]*Invocation)
}

// answer resolves inv and drops it when the response cannot be queued.
func (d *Dispatcher) answer(inv *Invocation, response []byte, status int, now time.Time) {
	err := d.resolve(inv, response, status, now)
	if err == nil {
		return
	}
	delete(d.pending, inv.ID)
	if d.onFail != nil {
		d.onFail(inv.ID, err)
	}
}

func (d *Dispatcher) resolve(inv *Invocation, response []byte, status int, now time.Time) error {
	f := wire.Frame{
		Kind:     wire.KindMethodResponse,
		Payload:  response,
		MethodID: inv.ID,
		Status:   status,
	}
	if _, err := d.queue.Enqueue(f, nil, nil, now); err != nil {
		return fmt.Errorf("failed to queue method response: %w", err)
	}

	inv.Status = status
	inv.Response = response
	inv.Resolved = true
	delete(d.pending, inv.ID)
	d.remember(inv.ID)
	return nil
}

// remember records a resolved identity, evicting the oldest beyond the bound.
func (d *Dispatcher) remember(id string) {
	d.resolved[id] = struct{}{}
	d.resolvedOrder = append(d.resolvedOrder, id)
	for len(d.resolvedOrder) > resolvedHistory {
		oldest := d.resolvedOrder[0]
		d.resolvedOrder = d.resolvedOrder[1:]
		delete(d.resolved, oldest)
	}
}

// forget clears a resolved identity being reused by a new invocation.
func (d *Dispatcher) forget(id string) {
	if _, ok := d.resolved[id]; !ok {
		return
	}
	delete(d.resolved, id)
	for i, v := range d.resolvedOrder {
		if v == id {
			d.resolvedOrder = append(d.resolvedOrder[:i], d.resolvedOrder[i+1:]...)
			break
		}
	}
}
