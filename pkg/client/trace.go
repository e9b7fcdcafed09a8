package client

import (
	"time"

	"github.com/hubclient/hubclient-go/pkg/log"
	"github.com/hubclient/hubclient-go/pkg/queue"
	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/upload"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// installHooks connects subsystem activity to logging and metrics.
func (c *Client) installHooks() {
	c.queue.SetHooks(queue.Hooks{
		OnSent: c.logFrame,
		OnSendError: func(f *wire.Frame, err error) {
			c.debugLog("send failed", "kind", f.Kind.String(), "seq", f.Seq, "error", err)
			c.logError(log.LayerTransport, err, "send "+f.Kind.String())
		},
		OnComplete: func(kind wire.Kind, seq uint64, result queue.Result, latency time.Duration) {
			c.metrics.ObserveCompletion(kind.String(), result.String(), latency)
			c.logCompletion(kind, seq, result.String(), latency)
		},
	})

	c.methods.OnDuplicate(func(id string) {
		c.debugLog("duplicate method invocation dropped", "id", id)
	})
	c.methods.OnResponseError(func(id string, err error) {
		c.debugLog("method response not queued", "id", id, "error", err)
		c.logError(log.LayerClient, err, "method "+id)
	})

	c.chunker.SetHooks(upload.Hooks{
		OnSent: c.logFrame,
		OnSendError: func(f *wire.Frame, err error) {
			c.debugLog("upload send failed", "destination", f.Destination, "block", f.BlockIndex, "error", err)
			c.logError(log.LayerTransport, err, "upload "+f.Destination)
		},
		OnBlockAcked: func(_ string, _ uint32, size int) {
			c.metrics.AddUploadBytes(size)
		},
		OnFinished: func(destination string, result upload.Result) {
			c.metrics.ObserveUpload(result.String())
			c.debugLog("upload finished", "destination", destination, "result", result.String())
			c.logState(log.StateEntityUpload, "", result.String(), destination)
		},
	})
}

// tracing reports whether protocol events are captured.
func (c *Client) tracing() bool {
	return c.protoLog != nil && c.opts.LogTrace
}

func (c *Client) emit(ev log.Event) {
	ev.Timestamp = c.clock.Now()
	ev.ConnectionID = c.connectionID
	ev.DeviceID = c.cfg.DeviceID
	ev.HubHost = c.cfg.HubHost
	c.protoLog.Log(ev)
}

func (c *Client) logFrame(f *wire.Frame, encoded []byte) {
	if !c.tracing() {
		return
	}
	c.emit(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame:     log.NewFrameEvent(encoded),
	})

	msg := &log.MessageEvent{
		Type:        log.MessageTypeFrame,
		Kind:        f.Kind,
		Seq:         f.Seq,
		ID:          f.MessageID,
		PayloadSize: len(f.Payload),
	}
	switch f.Kind {
	case wire.KindMethodResponse:
		status := f.Status
		msg.ID = f.MethodID
		msg.Status = &status
	case wire.KindUploadBlock, wire.KindUploadCommit:
		msg.ID = f.Destination
	}
	c.emit(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message:   msg,
	})
}

func (c *Client) logAck(a transport.Ack) {
	if !c.tracing() {
		return
	}
	status := a.Status
	c.emit(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Type: log.MessageTypeAck,
			Kind: a.Kind,
			Seq:  a.Seq,
			Ack:  &status,
		},
	})
}

func (c *Client) logInbound(kind wire.Kind, id, name string, size int) {
	if !c.tracing() {
		return
	}
	c.emit(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:        log.MessageTypeInbound,
			Kind:        kind,
			ID:          id,
			Name:        name,
			PayloadSize: size,
		},
	})
}

func (c *Client) logCompletion(kind wire.Kind, seq uint64, result string, latency time.Duration) {
	if !c.tracing() {
		return
	}
	c.emit(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerClient,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:    log.MessageTypeCompletion,
			Kind:    kind,
			Seq:     seq,
			Result:  result,
			Latency: &latency,
		},
	})
}

func (c *Client) logState(entity log.StateEntity, oldState, newState, reason string) {
	if !c.tracing() {
		return
	}
	c.emit(log.Event{
		Layer:    log.LayerClient,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Client) logError(layer log.Layer, err error, context string) {
	if !c.tracing() || err == nil {
		return
	}
	c.emit(log.Event{
		Layer:    layer,
		Category: log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}
