package log

import (
	"time"

	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Event represents a protocol event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the client session (UUID, new per connect).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// DeviceID is the device identity on the hub.
	DeviceID string `cbor:"6,keyasint,omitempty"`

	// HubHost is the hub host name.
	HubHost string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/upload state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an inbound item.
	DirectionIn Direction = 0
	// DirectionOut indicates an outbound frame.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the encoded frame layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the decoded frame layer.
	LayerWire Layer = 1
	// LayerClient is the client core (state machine, queue, upload).
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a frame, acknowledgement or inbound item.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures encoded frame bytes.
type FrameEvent struct {
	// Size is the encoded frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the encoded frame (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxFrameCapture bounds the bytes kept in FrameEvent.Data.
const MaxFrameCapture = 1024

// NewFrameEvent captures data, truncating it to MaxFrameCapture bytes.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameCapture {
		fe.Data = append([]byte(nil), data[:MaxFrameCapture]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// MessageEvent captures a decoded frame or inbound item.
type MessageEvent struct {
	// Type distinguishes frames, acknowledgements, completions and inbound items.
	Type MessageType `cbor:"1,keyasint"`

	// Kind is the frame kind.
	Kind wire.Kind `cbor:"2,keyasint"`

	// Seq correlates frames with acknowledgements and completions.
	Seq uint64 `cbor:"3,keyasint,omitempty"`

	// ID is the message, method invocation or blob identity.
	ID string `cbor:"4,keyasint,omitempty"`

	// Name is the method name for invocations.
	Name string `cbor:"5,keyasint,omitempty"`

	// Status is the method status for responses.
	Status *int `cbor:"6,keyasint,omitempty"`

	// Ack is the transport verdict for acknowledgements.
	Ack *wire.AckStatus `cbor:"7,keyasint,omitempty"`

	// Result is the completion result name.
	Result string `cbor:"8,keyasint,omitempty"`

	// PayloadSize is the payload length in bytes.
	PayloadSize int `cbor:"9,keyasint,omitempty"`

	// Latency is the time from enqueue to completion.
	// Stored as nanoseconds.
	Latency *time.Duration `cbor:"10,keyasint,omitempty"`
}

// MessageType distinguishes the message events.
type MessageType uint8

const (
	// MessageTypeFrame indicates an outbound frame.
	MessageTypeFrame MessageType = 0
	// MessageTypeAck indicates a transport acknowledgement.
	MessageTypeAck MessageType = 1
	// MessageTypeCompletion indicates a completion callback.
	MessageTypeCompletion MessageType = 2
	// MessageTypeInbound indicates a twin update, invocation or cloud message.
	MessageTypeInbound MessageType = 3
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeFrame:
		return "FRAME"
	case MessageTypeAck:
		return "ACK"
	case MessageTypeCompletion:
		return "COMPLETION"
	case MessageTypeInbound:
		return "INBOUND"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection and upload lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityUpload indicates a blob upload state change.
	StateEntityUpload StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityUpload:
		return "UPLOAD"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
