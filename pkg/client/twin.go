package client

import (
	"errors"
	"fmt"

	"github.com/hubclient/hubclient-go/pkg/queue"
	"github.com/hubclient/hubclient-go/pkg/twin"
)

// TwinUpdate is a desired-property update.
type TwinUpdate = twin.Update

// TwinFunc receives desired-property updates.
type TwinFunc func(update TwinUpdate, userCtx any)

// ReportedStateFunc receives the outcome of SendReportedState.
type ReportedStateFunc func(result Result, userCtx any)

// SetDeviceTwinCallback registers the desired-property callback, replacing
// any previous one. Nil unregisters. While registered, the full twin is
// requested once per connection.
func (c *Client) SetDeviceTwinCallback(cb TwinFunc, userCtx any) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	if cb == nil {
		c.twin.SetDesiredCallback(nil, nil)
		return nil
	}
	c.twin.SetDesiredCallback(twin.DesiredFunc(cb), userCtx)
	return nil
}

// SendReportedState queues a reported-properties patch. Each submission
// gets its own completion, in submission order.
func (c *Client) SendReportedState(payload []byte, cb ReportedStateFunc, userCtx any) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	var done queue.CompletionFunc
	if cb != nil {
		done = queue.CompletionFunc(cb)
	}
	_, err := c.twin.SubmitReported(payload, done, userCtx, c.clock.Now())
	switch {
	case errors.Is(err, twin.ErrEmptyPayload):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case err != nil:
		return fmt.Errorf("failed to queue reported state: %w", err)
	}
	return nil
}

// TwinState returns the twin version bookkeeping.
func (c *Client) TwinState() twin.State {
	return c.twin.State()
}
