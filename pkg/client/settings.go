package client

import (
	"fmt"
	"log/slog"

	"github.com/hubclient/hubclient-go/pkg/connection"
	"github.com/hubclient/hubclient-go/pkg/options"
	"github.com/hubclient/hubclient-go/pkg/transport"
)

// SetOption validates value and stages it for the start of the next DoWork.
func (c *Client) SetOption(name string, value any) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	next := c.opts
	if c.staged != nil {
		next = *c.staged
	}
	if err := next.Set(name, value); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	c.staged = &next
	return nil
}

// Options returns the option set in effect, excluding staged changes.
func (c *Client) Options() options.Options {
	return c.opts
}

// applyStaged pushes staged options into the subsystems and transport.
func (c *Client) applyStaged() {
	if c.staged == nil {
		return
	}
	next := *c.staged
	c.staged = nil
	if next == c.opts {
		return
	}
	c.opts = next

	c.queue.SetTimeout(next.MessageTimeout)
	c.chunker.SetAckTimeout(next.BlobUploadTimeout)
	c.machine.Policy().SetTimings(next.RetryInterval, next.RetryMaxDelay)

	if cfg, ok := c.transport.(transport.Configurable); ok {
		if err := cfg.ApplyOptions(next); err != nil {
			c.debugLog("transport rejected options", slog.Any("error", err))
		}
	}
	c.debugLog("options applied",
		slog.Duration("messageTimeout", next.MessageTimeout),
		slog.Duration("keepalive", next.KeepAlive),
		slog.Bool("logtrace", next.LogTrace))
}

// SetRetryPolicy replaces the reconnection policy. timeoutLimit is the
// outage ceiling in seconds, 0 for none. An outage in progress starts over;
// an expired connection resumes retrying on the next DoWork.
func (c *Client) SetRetryPolicy(kind connection.PolicyKind, timeoutLimit uint) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	p := connection.RetryPolicy{Kind: kind, TimeoutLimit: timeoutLimit}
	if err := c.machine.Policy().SetPolicy(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	c.resetPending = true
	return nil
}

// GetRetryPolicy returns exactly the last policy set.
func (c *Client) GetRetryPolicy() (connection.PolicyKind, uint, error) {
	if c.destroyed {
		return 0, 0, ErrShuttingDown
	}
	p := c.machine.Policy().Policy()
	return p.Kind, p.TimeoutLimit, nil
}

// ResetConnection revives an expired connection on the next DoWork.
func (c *Client) ResetConnection() error {
	if c.destroyed {
		return ErrShuttingDown
	}
	c.resetPending = true
	return nil
}
