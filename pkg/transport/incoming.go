package transport

import (
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Incoming is an item returned by PollIncoming.
// The set of implementations is closed to this package.
type Incoming interface {
	incoming()
}

// Ack acknowledges an acknowledged frame previously passed to SendEncoded.
type Ack struct {
	Kind   wire.Kind
	Seq    uint64
	Status wire.AckStatus

	// Version is the reported-properties version assigned by the hub.
	// Only meaningful for KindTwinReport.
	Version int64
}

// TwinUpdate carries a desired-property patch or a complete twin document.
type TwinUpdate struct {
	Payload []byte

	// DesiredVersion is the $version of the desired section.
	DesiredVersion int64

	// ReportedVersion is the last reported version the hub has seen.
	ReportedVersion int64

	// Complete is true when Payload is the full twin document.
	Complete bool
}

// MethodInvocation is a direct method call from the cloud.
type MethodInvocation struct {
	// ID correlates the response with the invocation.
	ID      string
	Name    string
	Payload []byte
}

// CloudMessage is a cloud-to-device message.
type CloudMessage struct {
	// ID is the message lock token used for settlement.
	ID            string
	Payload       []byte
	Properties    map[string]string
	CorrelationID string
	ContentType   string
}

// ConnectionLost reports that an established session dropped.
type ConnectionLost struct {
	Err error
}

func (Ack) incoming()              {}
func (TwinUpdate) incoming()       {}
func (MethodInvocation) incoming() {}
func (CloudMessage) incoming()     {}
func (ConnectionLost) incoming()   {}
