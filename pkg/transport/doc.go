// Package transport defines the boundary between the client core and a
// protocol adapter (MQTT, AMQP, HTTP).
//
// The core drives a Transport entirely from the host goroutine:
//
//	Connect(ctx)       establish a session with the hub
//	SendEncoded(frame) hand over one wire.Frame (CBOR bytes)
//	PollIncoming()     non-blocking read of one inbound item
//	Disconnect()       tear the session down
//
// Adapters are free to use goroutines internally, but every result reaches
// the core through PollIncoming, so host callbacks always run inside
// Client.DoWork.
//
// # Inbound Items
//
// PollIncoming returns one of:
//   - Ack: acknowledgement of an acknowledged frame, keyed by kind and sequence
//   - TwinUpdate: desired-property update or full twin document
//   - MethodInvocation: direct method call from the cloud
//   - CloudMessage: cloud-to-device message
//   - ConnectionLost: the session dropped
//
// # Error Classification
//
// Connect errors should wrap one of the sentinel errors (ErrNoNetwork,
// ErrUnauthorized, ErrTokenExpired, ErrDeviceDisabled) so the connection
// state machine can report an accurate reason to the host.
package transport
