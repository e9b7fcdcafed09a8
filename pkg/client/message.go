package client

import (
	"maps"

	"github.com/google/uuid"

	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Message is a device-to-cloud event or a received cloud-to-device message.
type Message struct {
	Payload         []byte
	MessageID       string
	CorrelationID   string
	ContentType     string
	ContentEncoding string

	// Properties are application properties.
	Properties map[string]string
}

// NewMessage creates a message with a random MessageID.
func NewMessage(payload []byte) *Message {
	return &Message{
		Payload:   payload,
		MessageID: uuid.NewString(),
	}
}

// NewMessageFromString creates a message from a string payload.
func NewMessageFromString(s string) *Message {
	return NewMessage([]byte(s))
}

// SetProperty sets an application property.
func (m *Message) SetProperty(key, value string) {
	if m.Properties == nil {
		m.Properties = make(map[string]string)
	}
	m.Properties[key] = value
}

// Property returns an application property.
func (m *Message) Property(key string) (string, bool) {
	v, ok := m.Properties[key]
	return v, ok
}

// frame copies the message into an event frame.
func (m *Message) frame() wire.Frame {
	return wire.Frame{
		Kind:            wire.KindEvent,
		Payload:         append([]byte(nil), m.Payload...),
		Properties:      maps.Clone(m.Properties),
		MessageID:       m.MessageID,
		CorrelationID:   m.CorrelationID,
		ContentType:     m.ContentType,
		ContentEncoding: m.ContentEncoding,
	}
}

func messageFromCloud(cm transport.CloudMessage) *Message {
	return &Message{
		Payload:       cm.Payload,
		MessageID:     cm.ID,
		CorrelationID: cm.CorrelationID,
		ContentType:   cm.ContentType,
		Properties:    cm.Properties,
	}
}
