package wire

import (
	"errors"
	"fmt"
)

// Frame validation errors.
var (
	ErrInvalidKind  = errors.New("invalid frame kind")
	ErrMissingSeq   = errors.New("sequence number required")
	ErrMissingField = errors.New("required field missing")
)

// Kind identifies what a frame carries.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindEvent
	KindTwinReport
	KindMethodResponse
	KindTwinGet
	KindDisposition
	KindUploadBlock
	KindUploadCommit
)

// QueuedKinds lists the kinds held by the operation queue, in drain order.
var QueuedKinds = []Kind{KindEvent, KindTwinReport, KindMethodResponse}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "EVENT"
	case KindTwinReport:
		return "TWIN_REPORT"
	case KindMethodResponse:
		return "METHOD_RESPONSE"
	case KindTwinGet:
		return "TWIN_GET"
	case KindDisposition:
		return "DISPOSITION"
	case KindUploadBlock:
		return "UPLOAD_BLOCK"
	case KindUploadCommit:
		return "UPLOAD_COMMIT"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k >= KindEvent && k <= KindUploadCommit
}

// Acknowledged reports whether the transport must acknowledge frames of this kind.
func (k Kind) Acknowledged() bool {
	switch k {
	case KindEvent, KindTwinReport, KindMethodResponse, KindUploadBlock, KindUploadCommit:
		return true
	default:
		return false
	}
}

// Disposition settles a cloud-to-device message.
type Disposition uint8

const (
	DispositionAccepted Disposition = iota
	DispositionRejected
	DispositionAbandoned
)

// String returns the disposition name.
func (d Disposition) String() string {
	switch d {
	case DispositionAccepted:
		return "ACCEPTED"
	case DispositionRejected:
		return "REJECTED"
	case DispositionAbandoned:
		return "ABANDONED"
	default:
		return "UNKNOWN"
	}
}

// Frame is the unit handed to Transport.SendEncoded.
//
// CBOR encoding:
//
//	{
//	  1: kind,            // uint8
//	  2: seq,             // uint64, acknowledged kinds only
//	  3: payload,         // bytes
//	  4: properties,      // map[string]string, application properties
//	  5: messageId,       // string
//	  6: correlationId,   // string
//	  7: contentType,     // string
//	  8: contentEncoding, // string
//	  9: methodId,        // string, method response / disposition target
//	  10: status,         // int, method status or disposition
//	  11: destination,    // string, upload blob name
//	  12: blockIndex      // uint32, upload block number
//	}
type Frame struct {
	Kind            Kind              `cbor:"1,keyasint"`
	Seq             uint64            `cbor:"2,keyasint,omitempty"`
	Payload         []byte            `cbor:"3,keyasint,omitempty"`
	Properties      map[string]string `cbor:"4,keyasint,omitempty"`
	MessageID       string            `cbor:"5,keyasint,omitempty"`
	CorrelationID   string            `cbor:"6,keyasint,omitempty"`
	ContentType     string            `cbor:"7,keyasint,omitempty"`
	ContentEncoding string            `cbor:"8,keyasint,omitempty"`
	MethodID        string            `cbor:"9,keyasint,omitempty"`
	Status          int               `cbor:"10,keyasint,omitempty"`
	Destination     string            `cbor:"11,keyasint,omitempty"`
	BlockIndex      uint32            `cbor:"12,keyasint,omitempty"`
}

// Validate checks if the frame is well formed.
func (f *Frame) Validate() error {
	if !f.Kind.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidKind, f.Kind)
	}
	if f.Kind.Acknowledged() && f.Seq == 0 {
		return fmt.Errorf("%w: %s", ErrMissingSeq, f.Kind)
	}
	switch f.Kind {
	case KindMethodResponse, KindDisposition:
		if f.MethodID == "" {
			return fmt.Errorf("%w: methodId for %s", ErrMissingField, f.Kind)
		}
	case KindUploadBlock, KindUploadCommit:
		if f.Destination == "" {
			return fmt.Errorf("%w: destination for %s", ErrMissingField, f.Kind)
		}
	}
	return nil
}
