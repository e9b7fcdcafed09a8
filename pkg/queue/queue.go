package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Queue errors.
var (
	ErrShuttingDown = errors.New("queue is shutting down")
	ErrInvalidKind  = errors.New("kind is not queued")
)

// Result is the outcome reported to a completion callback.
type Result uint8

const (
	ResultOK Result = iota
	ResultMessageTimeout
	ResultTransportError
	ResultDeviceDisabled
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultMessageTimeout:
		return "MESSAGE_TIMEOUT"
	case ResultTransportError:
		return "TRANSPORT_ERROR"
	case ResultDeviceDisabled:
		return "DEVICE_DISABLED"
	default:
		return "UNKNOWN"
	}
}

// resultFromAck maps a transport acknowledgement onto a completion result.
func resultFromAck(status wire.AckStatus) Result {
	switch status {
	case wire.AckOK:
		return ResultOK
	case wire.AckTimeout:
		return ResultMessageTimeout
	case wire.AckDeviceDisabled:
		return ResultDeviceDisabled
	default:
		return ResultTransportError
	}
}

// DefaultAckTimeout bounds the wait for the acknowledgement of a sent item
// when no message timeout is configured, so one lost ack cannot stall a lane.
const DefaultAckTimeout = 2 * time.Minute

// CompletionFunc receives the outcome of a queued item.
type CompletionFunc func(result Result, userCtx any)

// Sender accepts encoded frames. Implemented by transport.Transport.
type Sender interface {
	SendEncoded(frame []byte) error
}

// Hooks observe queue activity. Any field may be nil.
type Hooks struct {
	// OnSent fires after a frame was handed to the sender without error.
	OnSent func(f *wire.Frame, encoded []byte)

	// OnSendError fires when encoding or sending a frame failed.
	OnSendError func(f *wire.Frame, err error)

	// OnComplete fires just before an item's callback.
	OnComplete func(kind wire.Kind, seq uint64, result Result, latency time.Duration)
}

// Item is a queued operation.
type Item struct {
	Frame       wire.Frame
	OnComplete  CompletionFunc
	UserContext any
	EnqueuedAt  time.Time

	// sentAt is stamped by the first Step that sees the item in flight.
	sentAt time.Time
	result Result
}

type lane struct {
	pending  []*Item
	inFlight *Item
	done     []*Item
}

func (l *lane) len() int {
	n := len(l.pending) + len(l.done)
	if l.inFlight != nil {
		n++
	}
	return n
}

// Queue is a set of per-kind FIFO lanes.
// It is not safe for concurrent use.
type Queue struct {
	lanes      map[wire.Kind]*lane
	nextSeq    uint64
	timeout    time.Duration
	ackTimeout time.Duration
	hooks      Hooks
	closed  bool
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{
		lanes:      make(map[wire.Kind]*lane, len(wire.QueuedKinds)),
		ackTimeout: DefaultAckTimeout,
	}
	for _, k := range wire.QueuedKinds {
		q.lanes[k] = &lane{}
	}
	return q
}

// SetTimeout sets the message timeout. Zero disables it.
func (q *Queue) SetTimeout(d time.Duration) {
	q.timeout = d
}

// SetAckTimeout bounds how long a sent item waits for its acknowledgement,
// independent of the message timeout. Non-positive values restore DefaultAckTimeout.
func (q *Queue) SetAckTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultAckTimeout
	}
	q.ackTimeout = d
}

// SetHooks installs observers.
func (q *Queue) SetHooks(h Hooks) {
	q.hooks = h
}

// Enqueue appends a frame to its kind's lane and returns its sequence number.
// The frame's Seq field is assigned by the queue.
func (q *Queue) Enqueue(f wire.Frame, cb CompletionFunc, userCtx any, now time.Time) (uint64, error) {
	if q.closed {
		return 0, ErrShuttingDown
	}
	l, ok := q.lanes[f.Kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidKind, f.Kind)
	}

	q.nextSeq++
	f.Seq = q.nextSeq
	l.pending = append(l.pending, &Item{
		Frame:       f,
		OnComplete:  cb,
		UserContext: userCtx,
		EnqueuedAt:  now,
	})
	return f.Seq, nil
}

// Flush sends the oldest pending item of every lane with nothing in flight.
// A send failure completes the item with ResultTransportError; the lane
// continues with the next item on the following Flush.
func (q *Queue) Flush(s Sender) {
	if q.closed {
		return
	}
	for _, k := range wire.QueuedKinds {
		l := q.lanes[k]
		if l.inFlight != nil || len(l.pending) == 0 {
			continue
		}

		item := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]

		data, err := wire.EncodeFrame(&item.Frame)
		if err == nil {
			err = s.SendEncoded(data)
		}
		if err != nil {
			if q.hooks.OnSendError != nil {
				q.hooks.OnSendError(&item.Frame, err)
			}
			item.result = ResultTransportError
			l.done = append(l.done, item)
			continue
		}

		if q.hooks.OnSent != nil {
			q.hooks.OnSent(&item.Frame, data)
		}
		l.inFlight = item
	}
}

// Acknowledge records the transport's verdict on the in-flight item of kind.
// It returns false when no in-flight item carries seq.
func (q *Queue) Acknowledge(kind wire.Kind, seq uint64, status wire.AckStatus) bool {
	if q.closed {
		return false
	}
	l, ok := q.lanes[kind]
	if !ok || l.inFlight == nil || l.inFlight.Frame.Seq != seq {
		return false
	}

	item := l.inFlight
	l.inFlight = nil
	item.result = resultFromAck(status)
	l.done = append(l.done, item)
	return true
}

// Step fires callbacks for acknowledged items, then expires items that
// waited longer than the message timeout, oldest first. An in-flight item
// whose acknowledgement is overdue completes with ResultMessageTimeout
// even when the message timeout is disabled.
func (q *Queue) Step(now time.Time) {
	for _, k := range wire.QueuedKinds {
		if q.closed {
			return
		}
		l := q.lanes[k]

		done := l.done
		l.done = nil
		for _, item := range done {
			q.complete(item, item.result, now)
		}

		if item := l.inFlight; item != nil {
			if item.sentAt.IsZero() {
				item.sentAt = now
			}
			if q.expired(item, now) || now.Sub(item.sentAt) > q.ackTimeout {
				l.inFlight = nil
				q.complete(item, ResultMessageTimeout, now)
			}
		}
		if q.timeout <= 0 || q.closed {
			continue
		}
		for len(l.pending) > 0 && !q.closed && q.expired(l.pending[0], now) {
			item := l.pending[0]
			l.pending[0] = nil
			l.pending = l.pending[1:]
			q.complete(item, ResultMessageTimeout, now)
		}
	}
}

// Requeue returns in-flight items to the head of their lanes.
// Call this when the connection drops before acknowledgements arrive.
func (q *Queue) Requeue() {
	for _, k := range wire.QueuedKinds {
		l := q.lanes[k]
		if l.inFlight == nil {
			continue
		}
		l.inFlight.sentAt = time.Time{}
		l.pending = append([]*Item{l.inFlight}, l.pending...)
		l.inFlight = nil
	}
}

// Close drops every item without firing callbacks.
func (q *Queue) Close() {
	q.closed = true
	for k := range q.lanes {
		q.lanes[k] = &lane{}
	}
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool {
	return q.closed
}

// Len returns the number of uncompleted items of kind.
func (q *Queue) Len(kind wire.Kind) int {
	l, ok := q.lanes[kind]
	if !ok {
		return 0
	}
	return l.len()
}

// Pending returns the number of uncompleted items across all lanes.
func (q *Queue) Pending() int {
	n := 0
	for _, l := range q.lanes {
		n += l.len()
	}
	return n
}

// InFlight reports whether kind has an item awaiting acknowledgement.
func (q *Queue) InFlight(kind wire.Kind) bool {
	l, ok := q.lanes[kind]
	return ok && l.inFlight != nil
}

func (q *Queue) expired(item *Item, now time.Time) bool {
	return q.timeout > 0 && now.Sub(item.EnqueuedAt) > q.timeout
}

func (q *Queue) complete(item *Item, result Result, now time.Time) {
	if q.hooks.OnComplete != nil {
		q.hooks.OnComplete(item.Frame.Kind, item.Frame.Seq, result, now.Sub(item.EnqueuedAt))
	}
	if item.OnComplete != nil {
		item.OnComplete(result, item.UserContext)
	}
}
