package mqtt

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken() *fakeToken { return &fakeToken{done: make(chan struct{})} }

func doneToken(err error) *fakeToken {
	tok := newToken()
	tok.complete(err)
	return tok
}

func (f *fakeToken) complete(err error) {
	f.err = err
	close(f.done)
}

func (f *fakeToken) Wait() bool { <-f.done; return true }

func (f *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-f.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (f *fakeToken) Done() <-chan struct{} { return f.done }
func (f *fakeToken) Error() error          { return f.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
	token   *fakeToken
}

type fakeClient struct {
	pahomqtt.Client

	opts         *pahomqtt.ClientOptions
	connectErr   error
	holdConnect  bool
	connectTok   *fakeToken
	connected    bool
	filters      map[string]byte
	published    []published
	holdPublish  bool
	disconnected int
}

func (c *fakeClient) Connect() pahomqtt.Token {
	if c.connectErr != nil {
		return doneToken(c.connectErr)
	}
	if c.holdConnect {
		c.connectTok = newToken()
		return c.connectTok
	}
	c.connected = true
	return doneToken(nil)
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Disconnect(uint) {
	c.connected = false
	c.disconnected++
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	c.filters = filters
	return doneToken(nil)
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	tok := newToken()
	if !c.holdPublish {
		tok.complete(nil)
	}
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte), token: tok})
	return tok
}

const testKey = "c2VjcmV0LWtleS1mb3ItdGVzdHM="

func newTestTransport(t *testing.T) (*Transport, *fakeClient) {
	t.Helper()
	tr, err := New(Config{
		Host:            "myhub.example.net",
		DeviceID:        "dev1",
		SharedAccessKey: testKey,
		Now:             func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)
	fc := &fakeClient{}
	tr.newClient = func(o *pahomqtt.ClientOptions) pahomqtt.Client {
		fc.opts = o
		return fc
	}
	return tr, fc
}

func sendFrame(t *testing.T, tr *Transport, f *wire.Frame) error {
	t.Helper()
	data, err := wire.EncodeFrame(f)
	require.NoError(t, err)
	return tr.SendEncoded(data)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{DeviceID: "d", SharedAccessKey: testKey})
	assert.Error(t, err)
	_, err = New(Config{Host: "h", DeviceID: "d"})
	assert.Error(t, err)
}

func TestConnectSubscribes(t *testing.T) {
	tr, fc := newTestTransport(t)
	require.NoError(t, tr.Connect(context.Background()))

	assert.Contains(t, fc.filters, "devices/dev1/messages/devicebound/#")
	assert.Contains(t, fc.filters, "$iothub/twin/res/#")
	assert.Contains(t, fc.filters, "$iothub/twin/PATCH/properties/desired/#")
	assert.Contains(t, fc.filters, "$iothub/methods/POST/#")
	assert.Equal(t, "dev1", fc.opts.ClientID)
	assert.True(t, strings.HasPrefix(fc.opts.Username, "myhub.example.net/dev1/?api-version="+APIVersion+"&DeviceClientType=hubclient-go%2F"), fc.opts.Username)
	assert.Contains(t, fc.opts.Password, "SharedAccessSignature sr=myhub.example.net%2Fdevices%2Fdev1")
}

func TestConnectErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not authorised", packets.ErrorRefusedNotAuthorised, transport.ErrUnauthorized},
		{"bad credentials", packets.ErrorRefusedBadUsernameOrPassword, transport.ErrUnauthorized},
		{"server unavailable", packets.ErrorRefusedServerUnavailable, transport.ErrNoNetwork},
		{"dial", context.DeadlineExceeded, transport.ErrNoNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, fc := newTestTransport(t)
			fc.connectErr = tt.err
			err := tr.Connect(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, tr.SendEncoded(nil), transport.ErrNotConnected)
		})
	}
}

func TestExpiredSASToken(t *testing.T) {
	tok, err := NewSASToken("h/devices/d", testKey, "", time.Unix(1_600_000_000, 0))
	require.NoError(t, err)
	tr, err := New(Config{Host: "h", DeviceID: "d", SASToken: tok.String()})
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Connect(context.Background()), transport.ErrTokenExpired)
}

func TestEventAck(t *testing.T) {
	tr, fc := newTestTransport(t)
	require.NoError(t, tr.Connect(context.Background()))
	fc.holdPublish = true

	require.NoError(t, sendFrame(t, tr, &wire.Frame{
		Kind:       wire.KindEvent,
		Seq:        3,
		Payload:    []byte("t=21"),
		MessageID:  "m1",
		Properties: map[string]string{"alert": "yes"},
	}))
	require.Len(t, fc.published, 1)
	assert.Equal(t, "devices/dev1/messages/events/%24.mid=m1&alert=yes", fc.published[0].topic)
	assert.Equal(t, byte(1), fc.published[0].qos)

	_, ok := tr.PollIncoming()
	assert.False(t, ok, "ack waits for PUBACK")

	fc.published[0].token.complete(nil)
	item, ok := tr.PollIncoming()
	require.True(t, ok)
	assert.Equal(t, transport.Ack{Kind: wire.KindEvent, Seq: 3, Status: wire.AckOK}, item)
}

func TestPublishFailureAcksError(t *testing.T) {
	tr, fc := newTestTransport(t)
	require.NoError(t, tr.Connect(context.Background()))
	fc.holdPublish = true

	require.NoError(t, sendFrame(t, tr, &wire.Frame{Kind: wire.KindMethodResponse, Seq: 1, MethodID: "7", Status: 200}))
	assert.Equal(t, "$iothub/methods/res/200/?$rid=7", fc.published[0].topic)
	fc.published[0].token.complete(packets.ErrorNetworkError)

	item, ok := tr.PollIncoming()
	require.True(t, ok)
	assert.Equal(t, wire.AckError, item.(transport.Ack).Status)
}

func TestTwinReportAckedByResponse(t *testing.T) {
	tr, fc := newTestTransport(t)
	require.NoError(t, tr.Connect(context.Background()))

	require.NoError(t, sendFrame(t, tr, &wire.Frame{Kind: wire.KindTwinReport, Seq: 9, Payload: []byte(`{"fw":"1.0"}`)}))
	require.Len(t, fc.published, 1)
	assert.Equal(t, "$iothub/twin/PATCH/properties/reported/?$rid=1", fc.published[0].topic)

	_, ok := tr.PollIncoming()
	assert.False(t, ok, "PUBACK alone does not ack a report")

	tr.handleMessage(tr.session, "$iothub/twin/res/204/?$rid=1&$version=12", nil)
	item, ok := tr.PollIncoming()
	require.True(t, ok)
	assert.Equal(t, transport.Ack{Kind: wire.KindTwinReport, Seq: 9, Status: wire.AckOK, Version: 12}, item)
}

func TestTwinGet(t *testing.T) {
	tr, fc := newTestTransport(t)
	require.NoError(t, tr.Connect(context.Background()))

	require.NoError(t, sendFrame(t, tr, &wire.Frame{Kind: wire.KindTwinGet}))
	assert.Equal(t, "$iothub/twin/GET/?$rid=1", fc.published[0].topic)

	doc := []byte(`{"desired":{"a":1,"$version":5},"reported":{"$version":3}}`)
	tr.handleMessage(tr.session, "$iothub/twin/res/200/?$rid=1", doc)

	item, ok := tr.PollIncoming()
	require.True(t, ok)
	assert.Equal(t, transport.TwinUpdate{Payload: doc, DesiredVersion: 5, ReportedVersion: 3, Complete: true}, item)
}

func TestInboundRouting(t *testing.T) {
	tr, _ := newTestTransport(t)
	require.NoError(t, tr.Connect(context.Background()))
	s := tr.session

	tr.handleMessage(s, "$iothub/twin/PATCH/properties/desired/?$version=8", []byte(`{"x":1}`))
	tr.handleMessage(s, "$iothub/methods/POST/reboot/?$rid=42", []byte(`{}`))
	tr.handleMessage(s, "devices/dev1/messages/devicebound/%24.mid=abc&%24.to=%2Fdevices%2Fdev1&color=red", []byte("hi"))
	tr.handleMessage(s, "unrelated/topic", nil)
	tr.handleMessage(s-1, "$iothub/methods/POST/stale/?$rid=1", nil)

	item, _ := tr.PollIncoming()
	assert.Equal(t, transport.TwinUpdate{Payload: []byte(`{"x":1}`), DesiredVersion: 8}, item)

	item, _ = tr.PollIncoming()
	assert.Equal(t, transport.MethodInvocation{ID: "42", Name: "reboot", Payload: []byte(`{}`)}, item)

	item, _ = tr.PollIncoming()
	msg := item.(transport.CloudMessage)
	assert.Equal(t, "abc", msg.ID)
	assert.Equal(t, map[string]string{"color": "red"}, msg.Properties)

	_, ok := tr.PollIncoming()
	assert.False(t, ok)
}

func TestConnectionLostIgnoresStaleSession(t *testing.T) {
	tr, _ := newTestTransport(t)
	require.NoError(t, tr.Connect(context.Background()))
	old := tr.session
	require.NoError(t, tr.Disconnect())

	tr.handleConnectionLost(old, packets.ErrorNetworkError)
	_, ok := tr.PollIncoming()
	assert.False(t, ok)

	require.NoError(t, tr.Connect(context.Background()))
	tr.handleConnectionLost(tr.session, packets.ErrorNetworkError)
	item, ok := tr.PollIncoming()
	require.True(t, ok)
	assert.ErrorIs(t, item.(transport.ConnectionLost).Err, transport.ErrNoNetwork)
}

func TestTokenRenewal(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tr, _ := newTestTransport(t)
	tr.cfg.Now = func() time.Time { return now }
	require.NoError(t, tr.Connect(context.Background()))

	_, ok := tr.PollIncoming()
	assert.False(t, ok)

	now = now.Add(tr.opts.SASTokenLifetime)
	item, ok := tr.PollIncoming()
	require.True(t, ok)
	assert.ErrorIs(t, item.(transport.ConnectionLost).Err, transport.ErrTokenExpired)

	_, ok = tr.PollIncoming()
	assert.False(t, ok, "renewal is signalled once per session")
}

func TestUploadUnsupported(t *testing.T) {
	tr, _ := newTestTransport(t)
	require.NoError(t, tr.Connect(context.Background()))
	err := sendFrame(t, tr, &wire.Frame{Kind: wire.KindUploadBlock, Seq: 1, Destination: "x"})
	assert.ErrorIs(t, err, transport.ErrUnsupported)
}

func TestClose(t *testing.T) {
	tr, fc := newTestTransport(t)
	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, fc.disconnected)
	assert.ErrorIs(t, tr.Connect(context.Background()), transport.ErrClosed)
}

func TestBeginConnectDoesNotWait(t *testing.T) {
	tr, fc := newTestTransport(t)
	fc.holdConnect = true

	require.NoError(t, tr.BeginConnect(5*time.Second))
	assert.Equal(t, 5*time.Second, fc.opts.ConnectTimeout)

	done, err := tr.PollConnect()
	assert.False(t, done, "CONNACK outstanding")
	assert.NoError(t, err)
	assert.Nil(t, fc.filters)

	fc.connected = true
	fc.connectTok.complete(nil)
	done, err = tr.PollConnect()
	require.True(t, done)
	require.NoError(t, err)
	assert.Contains(t, fc.filters, "$iothub/twin/res/#")

	require.NoError(t, sendFrame(t, tr, &wire.Frame{Kind: wire.KindEvent, Seq: 1}))
	assert.Len(t, fc.published, 1)
}

func TestBeginConnectRefused(t *testing.T) {
	tr, fc := newTestTransport(t)
	fc.connectErr = packets.ErrorRefusedNotAuthorised

	require.NoError(t, tr.BeginConnect(time.Second))
	done, err := tr.PollConnect()
	assert.True(t, done)
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.Equal(t, 1, fc.disconnected)
}

func TestCancelConnect(t *testing.T) {
	tr, fc := newTestTransport(t)
	fc.holdConnect = true

	require.NoError(t, tr.BeginConnect(time.Second))
	session := tr.session
	tr.CancelConnect()

	assert.Equal(t, 1, fc.disconnected)
	assert.NotEqual(t, session, tr.session, "callbacks of the abandoned attempt are ignored")

	done, err := tr.PollConnect()
	assert.True(t, done)
	assert.ErrorIs(t, err, transport.ErrNotConnected)

	tr.CancelConnect()
	assert.Equal(t, 1, fc.disconnected, "cancel when idle is a no-op")
}

func TestTwinGetMalformedDocumentLogged(t *testing.T) {
	tr, _ := newTestTransport(t)
	var buf bytes.Buffer
	tr.logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	require.NoError(t, tr.Connect(context.Background()))

	require.NoError(t, sendFrame(t, tr, &wire.Frame{Kind: wire.KindTwinGet}))
	tr.handleMessage(tr.session, "$iothub/twin/res/200/?$rid=1", []byte("{not json"))

	item, ok := tr.PollIncoming()
	require.True(t, ok)
	update := item.(transport.TwinUpdate)
	assert.True(t, update.Complete)
	assert.Zero(t, update.DesiredVersion)
	assert.Contains(t, buf.String(), "twin document not parsed")
}
