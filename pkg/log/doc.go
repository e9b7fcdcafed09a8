// Package log captures what a hub client puts on and takes off the wire.
//
// Capture is separate from the operational slog output of the client: it
// is a machine-readable trace of every frame, acknowledgement, completion,
// inbound item and connection change, meant for replay with hubclient-log.
//
// A client is given a Logger through client.Config.ProtocolLogger and
// emits events only while its "logtrace" option is on:
//
//	fl, err := log.NewFileLogger("device.hlog")
//	if err != nil {
//		return err
//	}
//	defer fl.Close()
//	cfg.ProtocolLogger = log.NewMultiLogger(fl, log.NewSlogAdapter(logger))
//
// Events carry one payload each:
//   - FrameEvent: encoded bytes handed to the transport (LayerTransport)
//   - MessageEvent: the decoded view of frames, acks, completions and
//     inbound twin, method and cloud-message items (LayerWire, LayerClient)
//   - StateChangeEvent: connection and upload transitions (LayerClient)
//   - ErrorEventData: failures at any layer
//
// Every event is stamped with the device, hub host and a connection ID
// that changes on each successful connect.
//
// Capture files (.hlog) are concatenated CBOR events. Reader and ReadAll
// stream them back through an optional Filter.
package log
