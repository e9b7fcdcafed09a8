package client

import (
	"errors"
	"fmt"

	"github.com/hubclient/hubclient-go/pkg/method"
)

// MethodFunc answers a direct method synchronously.
type MethodFunc = method.SyncHandler

// InboundMethodFunc receives a direct method to be answered with DeviceMethodResponse.
type InboundMethodFunc = method.AsyncHandler

// SetDeviceMethodCallback registers a synchronous method handler and clears
// any inbound handler. Nil clears both.
func (c *Client) SetDeviceMethodCallback(cb MethodFunc, userCtx any) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	c.methods.SetHandler(cb, userCtx)
	return nil
}

// SetInboundDeviceMethodCallback registers an asynchronous method handler and
// clears any synchronous handler. Nil clears both.
func (c *Client) SetInboundDeviceMethodCallback(cb InboundMethodFunc, userCtx any) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	c.methods.SetAsyncHandler(cb, userCtx)
	return nil
}

// DeviceMethodResponse answers a pending inbound method. A second answer for
// the same id fails with method.ErrAlreadyResolved and leaves the first intact.
func (c *Client) DeviceMethodResponse(id string, response []byte, status int) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	err := c.methods.Respond(id, response, status, c.clock.Now())
	if errors.Is(err, method.ErrUnknownInvocation) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return err
}
