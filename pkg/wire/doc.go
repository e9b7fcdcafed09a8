// Package wire defines the CBOR frame format exchanged between the client
// core and a pluggable transport.
//
// The core never speaks MQTT, AMQP or HTTP itself. Every outbound operation
// (telemetry event, reported-property patch, method response, upload block)
// is encoded as a Frame and handed to Transport.SendEncoded. The transport
// decodes the frame and maps it onto its own protocol.
//
// # Frame Kinds
//
// Queued kinds are acknowledged by the transport and carry a sequence number:
//   - KindEvent: device-to-cloud telemetry
//   - KindTwinReport: reported-property patch
//   - KindMethodResponse: response to a direct method invocation
//   - KindUploadBlock / KindUploadCommit: blob upload traffic
//
// Unacknowledged kinds are fire-and-forget:
//   - KindTwinGet: request for the full twin document
//   - KindDisposition: settlement of a cloud-to-device message
//
// # CBOR Integer Keys
//
// All maps use integer keys for compactness. Absent keys decode to the zero
// value.
package wire
