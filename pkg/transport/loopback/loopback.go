// Package loopback provides an in-memory hub for tests and simulation.
//
// The loopback transport decodes every frame it is handed, records it, and
// answers acknowledged kinds from its own inbox on the next PollIncoming.
// Cloud-side traffic (desired properties, method calls, cloud messages and
// connection drops) is injected through helper methods.
package loopback

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/hubclient/hubclient-go/pkg/options"
	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// ErrDropped is the default cause passed with DropConnection.
var ErrDropped = errors.New("loopback connection dropped")

// Transport is an in-memory transport.Transport.
// Injection helpers may be called from any goroutine.
type Transport struct {
	mu sync.Mutex

	connected bool
	closed    bool

	connectErrs []error
	sendErr     error
	ackStatus   wire.AckStatus
	holdAcks    bool
	held        []transport.Ack

	inbox []transport.Incoming
	sent  []wire.Frame

	reportedVersion int64
	twinDoc         []byte
	desiredVersion  int64

	blocks       map[string][][]byte
	blobs        map[string][]byte
	dispositions map[string]wire.Disposition

	opts     options.Options
	connects int
}

// New creates a disconnected loopback transport that acknowledges with AckOK.
func New() *Transport {
	return &Transport{
		blocks:       make(map[string][][]byte),
		blobs:        make(map[string][]byte),
		dispositions: make(map[string]wire.Disposition),
		opts:         options.Default(),
	}
}

// Connect establishes the in-memory session, or fails with the next queued error.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	t.connects++
	if len(t.connectErrs) > 0 {
		err := t.connectErrs[0]
		t.connectErrs = t.connectErrs[1:]
		return err
	}
	t.connected = true
	return nil
}

// Disconnect ends the session. Held acks are discarded.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.held = nil
	return nil
}

// Close disconnects and rejects further use.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.closed = true
	t.inbox = nil
	t.held = nil
	return nil
}

// SendEncoded decodes and records one frame, queueing its acknowledgement.
func (t *Transport) SendEncoded(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	if !t.connected {
		return transport.ErrNotConnected
	}
	if t.sendErr != nil {
		return t.sendErr
	}

	f, err := wire.DecodeFrame(data)
	if err != nil {
		return err
	}
	t.sent = append(t.sent, *f)

	switch f.Kind {
	case wire.KindTwinGet:
		if t.twinDoc != nil {
			t.inbox = append(t.inbox, transport.TwinUpdate{
				Payload:         slices.Clone(t.twinDoc),
				DesiredVersion:  t.desiredVersion,
				ReportedVersion: t.reportedVersion,
				Complete:        true,
			})
		}
		return nil
	case wire.KindDisposition:
		t.dispositions[f.MethodID] = wire.Disposition(f.Status)
		return nil
	case wire.KindUploadBlock:
		t.blocks[f.Destination] = append(t.blocks[f.Destination], slices.Clone(f.Payload))
	case wire.KindUploadCommit:
		var blob []byte
		for _, b := range t.blocks[f.Destination] {
			blob = append(blob, b...)
		}
		t.blobs[f.Destination] = blob
		delete(t.blocks, f.Destination)
	}

	ack := transport.Ack{Kind: f.Kind, Seq: f.Seq, Status: t.ackStatus}
	if f.Kind == wire.KindTwinReport && ack.Status.IsSuccess() {
		t.reportedVersion++
		ack.Version = t.reportedVersion
	}
	if t.holdAcks {
		t.held = append(t.held, ack)
	} else {
		t.inbox = append(t.inbox, ack)
	}
	return nil
}

// PollIncoming returns the oldest inbound item.
func (t *Transport) PollIncoming() (transport.Incoming, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inbox) == 0 {
		return nil, false
	}
	item := t.inbox[0]
	t.inbox = t.inbox[1:]
	return item, true
}

// ApplyOptions records the runtime options.
func (t *Transport) ApplyOptions(opts options.Options) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts = opts
	return nil
}

// Options returns the last options applied.
func (t *Transport) Options() options.Options {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts
}

// FailConnects makes the next len(errs) Connect calls fail in order.
func (t *Transport) FailConnects(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectErrs = append(t.connectErrs, errs...)
}

// Connects returns the number of Connect calls that reached the transport.
func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// FailSends makes SendEncoded return err until called again with nil.
func (t *Transport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// SetAckStatus sets the status reported for subsequent acknowledgements.
func (t *Transport) SetAckStatus(status wire.AckStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ackStatus = status
}

// HoldAcks withholds acknowledgements until ReleaseAcks.
func (t *Transport) HoldAcks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.holdAcks = true
}

// ReleaseAcks delivers held acknowledgements and stops holding.
func (t *Transport) ReleaseAcks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.holdAcks = false
	for _, a := range t.held {
		t.inbox = append(t.inbox, a)
	}
	t.held = nil
}

// SetTwinDocument sets the document returned for twin GET requests.
func (t *Transport) SetTwinDocument(doc []byte, desiredVersion int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.twinDoc = slices.Clone(doc)
	t.desiredVersion = desiredVersion
}

// InjectTwinUpdate queues a desired-property patch.
func (t *Transport) InjectTwinUpdate(patch []byte, desiredVersion int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.desiredVersion = desiredVersion
	t.inbox = append(t.inbox, transport.TwinUpdate{
		Payload:         slices.Clone(patch),
		DesiredVersion:  desiredVersion,
		ReportedVersion: t.reportedVersion,
	})
}

// InjectMethod queues a method invocation and returns its ID.
func (t *Transport) InjectMethod(name string, payload []byte) string {
	id := uuid.NewString()
	t.InjectMethodWithID(id, name, payload)
	return id
}

// InjectMethodWithID queues a method invocation with a caller-chosen ID.
func (t *Transport) InjectMethodWithID(id, name string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = append(t.inbox, transport.MethodInvocation{ID: id, Name: name, Payload: slices.Clone(payload)})
}

// InjectMessage queues a cloud-to-device message and returns its lock token.
func (t *Transport) InjectMessage(payload []byte, props map[string]string) string {
	id := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = append(t.inbox, transport.CloudMessage{
		ID:         id,
		Payload:    slices.Clone(payload),
		Properties: props,
	})
	return id
}

// DropConnection simulates a lost session. Held and queued acks are lost.
func (t *Transport) DropConnection(cause error) {
	if cause == nil {
		cause = ErrDropped
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.held = nil
	kept := t.inbox[:0]
	for _, item := range t.inbox {
		if _, ok := item.(transport.Ack); !ok {
			kept = append(kept, item)
		}
	}
	t.inbox = append(kept, transport.ConnectionLost{Err: cause})
}

// Connected reports whether a session is up.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Sent returns copies of all frames handed to SendEncoded.
func (t *Transport) Sent() []wire.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.sent)
}

// SentOfKind returns the recorded frames of kind.
func (t *Transport) SentOfKind(kind wire.Kind) []wire.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []wire.Frame
	for _, f := range t.sent {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Disposition returns how the message with lock token id was settled.
func (t *Transport) Disposition(id string) (wire.Disposition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.dispositions[id]
	return d, ok
}

// Blob returns the committed content of an upload destination.
func (t *Transport) Blob(destination string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.blobs[destination]
	return b, ok
}

// ReportedVersion returns the last reported-properties version assigned.
func (t *Transport) ReportedVersion() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reportedVersion
}

var (
	_ transport.Transport    = (*Transport)(nil)
	_ transport.Configurable = (*Transport)(nil)
)
