// Package upload streams blob content to the hub in bounded blocks.
//
// The host supplies a GetDataFunc. On every Step while a session is active
// the chunker hands it the outcome of the previous block and sends whatever
// block it returns. An empty block commits the blob; ActionAbort ends the
// session with no further transport calls.
//
//	Idle ──Start──► RequestingBlock ──send──► AwaitingAck ──ack──► RequestingBlock
//	                      │                                            │
//	                      └── empty block ──► commit ──ack──► Completed
//	                      └── ActionAbort ──────────────────► Aborted
//
// A failed or unacknowledged block is reported to GetDataFunc with
// ResultError without advancing the block index, so the host may resend
// the same block or abort.
package upload

import (
	"errors"
	"fmt"
	"time"

	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Limits on a single upload.
const (
	MaxBlockSize  = 4 * 1024 * 1024
	MaxBlockCount = 50000
)

// Upload errors.
var (
	ErrOperationInProgress = errors.New("upload already in progress")
	ErrInvalidArgument     = errors.New("invalid upload argument")
)

// Result is a block or session outcome.
type Result uint8

const (
	ResultOK Result = iota
	ResultError
	ResultAborted
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultError:
		return "ERROR"
	case ResultAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Action tells the chunker how to proceed after GetDataFunc returns.
type Action uint8

const (
	ActionContinue Action = iota
	ActionAbort
)

// GetDataFunc is called with the previous block's outcome (ResultOK before
// the first block) and returns the next block. An empty block signals
// end-of-data.
type GetDataFunc func(result Result, userCtx any) (block []byte, action Action)

// CompleteFunc receives the final outcome of a session.
type CompleteFunc func(result Result, userCtx any)

// State is the chunker state.
type State uint8

const (
	StateIdle State = iota
	StateRequestingBlock
	StateAwaitingAck
	StateCompleted
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRequestingBlock:
		return "REQUESTING_BLOCK"
	case StateAwaitingAck:
		return "AWAITING_ACK"
	case StateCompleted:
		return "COMPLETED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Sender accepts encoded frames.
type Sender interface {
	SendEncoded(frame []byte) error
}

// Session is a snapshot of an upload.
type Session struct {
	Destination      string
	BlockIndex       uint32
	BytesTransferred uint64
	State            State
}

// Hooks observe chunker activity. Any field may be nil.
type Hooks struct {
	OnSent       func(f *wire.Frame, encoded []byte)
	OnSendError  func(f *wire.Frame, err error)
	OnBlockAcked func(destination string, index uint32, size int)
	OnFinished   func(destination string, result Result)
}

type session struct {
	Session

	getData    GetDataFunc
	onComplete CompleteFunc
	userCtx    any

	lastResult Result
	committing bool
	blockSize  int

	seq      uint64
	sentAt   time.Time
	acked    bool
	ackOK    bool
	finished bool
}

// Chunker runs at most one upload session at a time.
type Chunker struct {
	active     *session
	last       Session
	nextSeq    uint64
	ackTimeout time.Duration
	hooks      Hooks
}

// New creates an idle chunker.
func New() *Chunker {
	return &Chunker{}
}

// SetAckTimeout bounds the wait for a block acknowledgement. Zero disables it.
func (c *Chunker) SetAckTimeout(d time.Duration) {
	c.ackTimeout = d
}

// SetHooks installs observers.
func (c *Chunker) SetHooks(h Hooks) {
	c.hooks = h
}

// Start begins a session. The active session, if any, is left untouched.
func (c *Chunker) Start(destination string, getData GetDataFunc, onComplete CompleteFunc, userCtx any) error {
	if c.active != nil {
		return ErrOperationInProgress
	}
	if destination == "" {
		return fmt.Errorf("%w: empty destination", ErrInvalidArgument)
	}
	if getData == nil {
		return fmt.Errorf("%w: nil data callback", ErrInvalidArgument)
	}

	c.active = &session{
		Session: Session{
			Destination: destination,
			State:       StateRequestingBlock,
		},
		getData:    getData,
		onComplete: onComplete,
		userCtx:    userCtx,
	}
	return nil
}

// Active reports whether a session is in progress.
func (c *Chunker) Active() bool {
	return c.active != nil
}

// Session returns the active session, or the most recently finished one.
func (c *Chunker) Session() Session {
	if c.active != nil {
		return c.active.Session
	}
	return c.last
}

// Acknowledge records the transport's verdict on the block carrying seq.
// It returns false when seq does not match the block awaiting acknowledgement.
func (c *Chunker) Acknowledge(seq uint64, status wire.AckStatus) bool {
	s := c.active
	if s == nil || s.State != StateAwaitingAck || s.seq != seq || s.acked {
		return false
	}
	s.acked = true
	s.ackOK = status.IsSuccess()
	return true
}

// ConnectionLost fails the block awaiting acknowledgement.
func (c *Chunker) ConnectionLost() {
	s := c.active
	if s == nil || s.State != StateAwaitingAck || s.acked {
		return
	}
	s.acked = true
	s.ackOK = false
}

// Step advances the active session by at most one block.
func (c *Chunker) Step(sender Sender, connected bool, now time.Time) {
	s := c.active
	if s == nil {
		return
	}

	if s.State == StateAwaitingAck {
		if !s.acked && c.ackTimeout > 0 && now.Sub(s.sentAt) > c.ackTimeout {
			s.acked = true
			s.ackOK = false
		}
		if !s.acked {
			return
		}
		c.settle(s)
		if s.finished {
			return
		}
	}

	if s.State != StateRequestingBlock || !connected {
		return
	}

	block, action := s.getData(s.lastResult, s.userCtx)
	if c.active != s {
		// Closed from inside the callback.
		return
	}
	if action == ActionAbort {
		c.finish(s, StateAborted, ResultAborted)
		return
	}

	if len(block) > MaxBlockSize {
		c.finish(s, StateAborted, ResultError)
		return
	}

	f := wire.Frame{
		Seq:         c.allocSeq(),
		Destination: s.Destination,
		BlockIndex:  s.BlockIndex,
	}
	if len(block) == 0 {
		f.Kind = wire.KindUploadCommit
		s.committing = true
	} else {
		if s.BlockIndex >= MaxBlockCount {
			c.finish(s, StateAborted, ResultError)
			return
		}
		f.Kind = wire.KindUploadBlock
		f.Payload = block
		s.committing = false
	}

	data, err := wire.EncodeFrame(&f)
	if err == nil {
		err = sender.SendEncoded(data)
	}
	if err != nil {
		if c.hooks.OnSendError != nil {
			c.hooks.OnSendError(&f, err)
		}
		s.lastResult = ResultError
		return
	}
	if c.hooks.OnSent != nil {
		c.hooks.OnSent(&f, data)
	}

	s.seq = f.Seq
	s.blockSize = len(block)
	s.sentAt = now
	s.acked = false
	s.State = StateAwaitingAck
}

// Close cancels the active session without callbacks.
func (c *Chunker) Close() {
	if c.active != nil {
		c.active.State = StateAborted
		c.last = c.active.Session
	}
	c.active = nil
}

// settle applies a received (or synthesized) acknowledgement.
func (c *Chunker) settle(s *session) {
	s.acked = false
	s.State = StateRequestingBlock

	if !s.ackOK {
		s.lastResult = ResultError
		return
	}
	if s.committing {
		c.finish(s, StateCompleted, ResultOK)
		return
	}

	if c.hooks.OnBlockAcked != nil {
		c.hooks.OnBlockAcked(s.Destination, s.BlockIndex, s.blockSize)
	}
	s.BlockIndex++
	s.BytesTransferred += uint64(s.blockSize)
	s.lastResult = ResultOK
}

func (c *Chunker) finish(s *session, state State, result Result) {
	s.State = state
	s.finished = true
	c.last = s.Session
	c.active = nil

	if c.hooks.OnFinished != nil {
		c.hooks.OnFinished(s.Destination, result)
	}
	if s.onComplete != nil {
		s.onComplete(result, s.userCtx)
	}
}

func (c *Chunker) allocSeq() uint64 {
	c.nextSeq++
	return c.nextSeq
}
