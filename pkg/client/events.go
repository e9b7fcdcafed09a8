package client

import (
	"fmt"

	"github.com/hubclient/hubclient-go/pkg/queue"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Result is the outcome reported to completion callbacks.
type Result = queue.Result

// Completion results.
const (
	ResultOK             = queue.ResultOK
	ResultMessageTimeout = queue.ResultMessageTimeout
	ResultTransportError = queue.ResultTransportError
	ResultDeviceDisabled = queue.ResultDeviceDisabled
)

// EventConfirmationFunc receives the outcome of SendEventAsync.
type EventConfirmationFunc func(result Result, userCtx any)

// SendStatus reports whether events are waiting.
type SendStatus uint8

const (
	SendStatusIdle SendStatus = iota
	SendStatusBusy
)

// String returns the status name.
func (s SendStatus) String() string {
	if s == SendStatusBusy {
		return "BUSY"
	}
	return "IDLE"
}

// SendEventAsync queues msg. cb fires from a later DoWork, exactly once,
// unless the client is destroyed first. The message is copied.
func (c *Client) SendEventAsync(msg *Message, cb EventConfirmationFunc, userCtx any) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidArgument)
	}

	var done queue.CompletionFunc
	if cb != nil {
		done = queue.CompletionFunc(cb)
	}
	if _, err := c.queue.Enqueue(msg.frame(), done, userCtx, c.clock.Now()); err != nil {
		return fmt.Errorf("failed to queue event: %w", err)
	}
	return nil
}

// GetSendStatus reports Busy while any event is queued or awaiting acknowledgement.
func (c *Client) GetSendStatus() (SendStatus, error) {
	if c.destroyed {
		return SendStatusIdle, ErrShuttingDown
	}
	if c.queue.Len(wire.KindEvent) > 0 {
		return SendStatusBusy, nil
	}
	return SendStatusIdle, nil
}
