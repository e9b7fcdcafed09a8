package client

import (
	"log/slog"
	"time"

	"github.com/hubclient/hubclient-go/pkg/log"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Disposition settles a cloud-to-device message.
type Disposition = wire.Disposition

// Dispositions.
const (
	DispositionAccepted  = wire.DispositionAccepted
	DispositionRejected  = wire.DispositionRejected
	DispositionAbandoned = wire.DispositionAbandoned
)

// MessageFunc receives a cloud-to-device message and settles it.
type MessageFunc func(msg *Message, userCtx any) Disposition

// SetMessageCallback registers the cloud-to-device callback. Nil unregisters;
// messages arriving without a callback are abandoned so the hub redelivers them.
func (c *Client) SetMessageCallback(cb MessageFunc, userCtx any) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	c.onMessage = cb
	c.onMessageCtx = userCtx
	return nil
}

// GetLastMessageReceiveTime returns when the last cloud-to-device message arrived.
func (c *Client) GetLastMessageReceiveTime() (time.Time, error) {
	if c.destroyed {
		return time.Time{}, ErrShuttingDown
	}
	if c.lastReceive.IsZero() {
		return time.Time{}, ErrIndefiniteTime
	}
	return c.lastReceive, nil
}

// dispatchMessages hands buffered cloud messages to the callback and sends
// each disposition while connected.
func (c *Client) dispatchMessages(now time.Time) {
	pending := c.messages
	c.messages = nil

	for _, cm := range pending {
		c.lastReceive = now

		disposition := DispositionAbandoned
		if c.onMessage != nil {
			disposition = c.onMessage(messageFromCloud(cm), c.onMessageCtx)
		}
		c.settle(cm.ID, disposition)
	}
}

func (c *Client) settle(id string, d Disposition) {
	if !c.machine.IsConnected() {
		c.debugLog("disposition dropped while disconnected", slog.String("id", id))
		return
	}
	f := &wire.Frame{Kind: wire.KindDisposition, MethodID: id, Status: int(d)}
	data, err := wire.EncodeFrame(f)
	if err == nil {
		err = c.transport.SendEncoded(data)
	}
	if err != nil {
		c.debugLog("disposition failed", slog.String("id", id), slog.Any("error", err))
		c.logError(log.LayerTransport, err, "disposition")
		return
	}
	c.logFrame(f, data)
}
