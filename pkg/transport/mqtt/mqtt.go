// Package mqtt adapts the hub MQTT protocol to transport.Transport.
//
// Paho callbacks run on library goroutines and only append to an inbox;
// everything else happens on the caller's DoWork goroutine. Connects run
// through transport.AsyncConnector so DoWork never waits on the broker. Automatic
// reconnection is disabled so the client's retry policy stays in charge.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/hubclient/hubclient-go/pkg/options"
	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/version"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Connection constants.
const (
	// DefaultPort is the MQTT over TLS port.
	DefaultPort = 8883

	// defaultConnectTimeout applies when Connect's context has no deadline.
	defaultConnectTimeout = 30 * time.Second

	// disconnectQuiesce is the time granted to in-flight work on Disconnect, in ms.
	disconnectQuiesce = 250

	// renewMargin is how long before SAS expiry the session is recycled.
	renewMargin = 30 * time.Second

	// tlsMinVersion is the minimum TLS version for hub connections.
	tlsMinVersion = tls.VersionTLS12
)

// Config identifies the device and hub endpoint.
type Config struct {
	// Host is the hub host name used for the SAS resource and username.
	Host string

	// GatewayHost, when set, is dialed instead of Host.
	GatewayHost string

	// Port defaults to DefaultPort.
	Port int

	DeviceID string
	ModuleID string

	// SharedAccessKey is the base64 device key. Tokens are minted per connect.
	SharedAccessKey     string
	SharedAccessKeyName string

	// SASToken is a pre-built token used when no key is configured.
	SASToken string

	// TLSConfig overrides the default TLS settings.
	TLSConfig *tls.Config

	// Insecure dials plain TCP. Only for local test brokers.
	Insecure bool

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// pendingPublish is a publish whose outcome is reported as an Ack.
type pendingPublish struct {
	kind  wire.Kind
	seq   uint64
	token pahomqtt.Token

	// awaitResponse is set for twin reports, which are acked by a twin response.
	awaitResponse bool
	rid           string
}

// connectAttempt is a connect in progress: CONNACK first, then SUBACK.
type connectAttempt struct {
	client     pahomqtt.Client
	token      pahomqtt.Token
	subscribed bool
	expiry     time.Time
}

// Transport speaks the hub MQTT protocol through paho.
type Transport struct {
	cfg       Config
	topics    Topics
	opts      options.Options
	logger    *slog.Logger
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	client     pahomqtt.Client
	connecting *connectAttempt
	pending    []pendingPublish
	renewAt time.Time
	nextRID uint64
	closed  bool

	mu       sync.Mutex
	session  uint64
	inbox    []transport.Incoming
	reportRI map[string]uint64
	getRI    map[string]struct{}
}

// New creates a transport for cfg. It does not dial.
func New(cfg Config) (*Transport, error) {
	if cfg.Host == "" || cfg.DeviceID == "" {
		return nil, fmt.Errorf("mqtt: host and device id are required")
	}
	if cfg.SharedAccessKey == "" && cfg.SASToken == "" {
		return nil, fmt.Errorf("mqtt: shared access key or SAS token is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{
		cfg:       cfg,
		topics:    Topics{DeviceID: cfg.DeviceID, ModuleID: cfg.ModuleID},
		opts:      options.Default(),
		logger:    logger,
		newClient: pahomqtt.NewClient,
		reportRI:  make(map[string]uint64),
		getRI:     make(map[string]struct{}),
	}, nil
}

// ApplyOptions takes effect on the next Connect.
func (t *Transport) ApplyOptions(opts options.Options) error {
	t.opts = opts
	return nil
}

// Connect dials the hub, authenticates and subscribes, waiting until done
// or until ctx ends.
func (t *Transport) Connect(ctx context.Context) error {
	timeout := defaultConnectTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	a, err := t.startConnect(timeout)
	if err != nil {
		return err
	}
	for {
		select {
		case <-a.token.Done():
		case <-ctx.Done():
			t.abandon(a)
			return fmt.Errorf("%w: %w", transport.ErrNoNetwork, ctx.Err())
		}
		if done, err := t.advance(a); done {
			return err
		}
	}
}

// BeginConnect starts a connect attempt without waiting for the broker.
func (t *Transport) BeginConnect(timeout time.Duration) error {
	t.CancelConnect()
	a, err := t.startConnect(timeout)
	if err != nil {
		return err
	}
	t.connecting = a
	return nil
}

// PollConnect advances the attempt started by BeginConnect.
func (t *Transport) PollConnect() (bool, error) {
	a := t.connecting
	if a == nil {
		return true, transport.ErrNotConnected
	}
	done, err := t.advance(a)
	if done {
		t.connecting = nil
	}
	return done, err
}

// CancelConnect abandons the attempt started by BeginConnect, if any.
func (t *Transport) CancelConnect() {
	if t.connecting == nil {
		return
	}
	t.abandon(t.connecting)
	t.connecting = nil
}

// startConnect mints credentials and sends CONNECT.
func (t *Transport) startConnect(timeout time.Duration) (*connectAttempt, error) {
	if t.closed {
		return nil, transport.ErrClosed
	}
	if t.client != nil {
		t.dropClient()
	}

	password, expiry, err := t.password()
	if err != nil {
		return nil, err
	}

	po := t.buildClientOptions(timeout, password)

	t.mu.Lock()
	t.session++
	session := t.session
	t.mu.Unlock()

	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.handleConnectionLost(session, err)
	})
	po.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		t.handleMessage(session, msg.Topic(), msg.Payload())
	})

	client := t.newClient(po)
	return &connectAttempt{client: client, token: client.Connect(), expiry: expiry}, nil
}

// advance moves a through CONNACK and SUBACK without blocking.
func (t *Transport) advance(a *connectAttempt) (bool, error) {
	select {
	case <-a.token.Done():
	default:
		return false, nil
	}

	if !a.subscribed {
		if err := a.token.Error(); err != nil {
			a.client.Disconnect(0)
			return true, mapConnectError(err)
		}
		filters := map[string]byte{
			t.topics.CloudMessages(): 1,
			t.topics.TwinResponses(): 0,
			t.topics.TwinDesired():   0,
			t.topics.MethodCalls():   0,
		}
		a.token = a.client.SubscribeMultiple(filters, nil)
		a.subscribed = true
		return t.advance(a)
	}

	if err := a.token.Error(); err != nil {
		a.client.Disconnect(0)
		return true, fmt.Errorf("%w: subscribe: %w", transport.ErrNoNetwork, err)
	}

	t.client = a.client
	t.renewAt = time.Time{}
	if t.cfg.SharedAccessKey != "" {
		t.renewAt = a.expiry.Add(-renewMargin)
	}
	t.logger.Debug("mqtt connected", slog.String("host", t.dialHost()), slog.String("device", t.topics.ClientID()))
	return true, nil
}

// abandon drops a and ignores any callback from its session.
func (t *Transport) abandon(a *connectAttempt) {
	a.client.Disconnect(0)
	t.mu.Lock()
	t.session++
	t.mu.Unlock()
}

// Disconnect closes the session. Unacknowledged publishes are forgotten.
func (t *Transport) Disconnect() error {
	t.CancelConnect()
	if t.client != nil {
		t.dropClient()
	}
	return nil
}

// Close disconnects and rejects further use.
func (t *Transport) Close() error {
	err := t.Disconnect()
	t.closed = true
	return err
}

func (t *Transport) dropClient() {
	t.client.Disconnect(disconnectQuiesce)
	t.client = nil
	t.pending = nil

	t.mu.Lock()
	t.session++
	t.inbox = nil
	clear(t.reportRI)
	clear(t.getRI)
	t.mu.Unlock()
}

// SendEncoded publishes one frame without waiting for the broker.
func (t *Transport) SendEncoded(data []byte) error {
	if t.closed {
		return transport.ErrClosed
	}
	if t.client == nil || !t.client.IsConnected() {
		return transport.ErrNotConnected
	}
	f, err := wire.DecodeFrame(data)
	if err != nil {
		return err
	}

	switch f.Kind {
	case wire.KindEvent:
		tok := t.client.Publish(t.topics.Events(eventProperties(f)), 1, false, f.Payload)
		t.pending = append(t.pending, pendingPublish{kind: f.Kind, seq: f.Seq, token: tok})

	case wire.KindTwinReport:
		rid := t.newRID()
		t.mu.Lock()
		t.reportRI[rid] = f.Seq
		t.mu.Unlock()
		tok := t.client.Publish(t.topics.TwinReport(rid), 0, false, f.Payload)
		t.pending = append(t.pending, pendingPublish{kind: f.Kind, seq: f.Seq, token: tok, awaitResponse: true, rid: rid})

	case wire.KindTwinGet:
		rid := t.newRID()
		t.mu.Lock()
		t.getRI[rid] = struct{}{}
		t.mu.Unlock()
		t.client.Publish(t.topics.TwinGet(rid), 0, false, []byte{})

	case wire.KindMethodResponse:
		tok := t.client.Publish(t.topics.MethodResponse(f.Status, f.MethodID), 0, false, f.Payload)
		t.pending = append(t.pending, pendingPublish{kind: f.Kind, seq: f.Seq, token: tok})

	case wire.KindDisposition:
		// QoS 1 deliveries are settled by the PUBACK paho sends on receipt.
		if wire.Disposition(f.Status) != wire.DispositionAccepted {
			t.logger.Debug("mqtt cannot reject or abandon, message already settled", slog.String("id", f.MethodID))
		}

	default:
		return fmt.Errorf("%w: %s", transport.ErrUnsupported, f.Kind)
	}
	return nil
}

// PollIncoming returns completed publishes first, then inbound traffic.
func (t *Transport) PollIncoming() (transport.Incoming, bool) {
	t.collectPublishes()

	if t.client != nil && !t.renewAt.IsZero() && !t.cfg.Now().Before(t.renewAt) {
		t.renewAt = time.Time{}
		return transport.ConnectionLost{Err: transport.ErrTokenExpired}, true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inbox) == 0 {
		return nil, false
	}
	item := t.inbox[0]
	t.inbox = t.inbox[1:]
	return item, true
}

func (t *Transport) collectPublishes() {
	kept := t.pending[:0]
	for _, p := range t.pending {
		select {
		case <-p.token.Done():
		default:
			kept = append(kept, p)
			continue
		}

		err := p.token.Error()
		if p.awaitResponse && err == nil {
			continue
		}
		status := wire.AckOK
		if err != nil {
			status = wire.AckError
			t.logger.Debug("mqtt publish failed", slog.String("kind", p.kind.String()), slog.Any("error", err))
		}

		t.mu.Lock()
		if p.awaitResponse {
			delete(t.reportRI, p.rid)
		}
		t.inbox = append(t.inbox, transport.Ack{Kind: p.kind, Seq: p.seq, Status: status})
		t.mu.Unlock()
	}
	t.pending = kept
}

func (t *Transport) handleConnectionLost(session uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if session != t.session {
		return
	}
	t.inbox = append(t.inbox, transport.ConnectionLost{Err: fmt.Errorf("%w: %w", transport.ErrNoNetwork, err)})
}

func (t *Transport) handleMessage(session uint64, topic string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if session != t.session {
		return
	}

	if r, ok := parseTwinResponse(topic); ok {
		t.handleTwinResponse(r, payload)
		return
	}
	if v, ok := parseDesiredVersion(topic); ok {
		t.inbox = append(t.inbox, transport.TwinUpdate{Payload: payload, DesiredVersion: v})
		return
	}
	if m, ok := parseMethodCall(topic); ok {
		t.inbox = append(t.inbox, transport.MethodInvocation{ID: m.RID, Name: m.Name, Payload: payload})
		return
	}
	if props, ok := t.topics.parseCloudMessage(topic); ok {
		t.inbox = append(t.inbox, cloudMessage(props, payload))
		return
	}
	t.logger.Debug("mqtt message on unexpected topic", slog.String("topic", topic))
}

// handleTwinResponse runs with t.mu held.
func (t *Transport) handleTwinResponse(r twinResponse, payload []byte) {
	if seq, ok := t.reportRI[r.RID]; ok {
		delete(t.reportRI, r.RID)
		status := wire.AckOK
		if r.Status < 200 || r.Status > 299 {
			status = wire.AckError
		}
		t.inbox = append(t.inbox, transport.Ack{Kind: wire.KindTwinReport, Seq: seq, Status: status, Version: r.Version})
		return
	}
	if _, ok := t.getRI[r.RID]; ok {
		delete(t.getRI, r.RID)
		if r.Status != 200 {
			t.logger.Debug("mqtt twin get failed", slog.Int("status", r.Status))
			return
		}
		var doc struct {
			Desired struct {
				Version int64 `json:"$version"`
			} `json:"desired"`
			Reported struct {
				Version int64 `json:"$version"`
			} `json:"reported"`
		}
		if err := json.Unmarshal(payload, &doc); err != nil {
			t.logger.Debug("mqtt twin document not parsed, versions unknown", slog.Any("error", err))
		}
		t.inbox = append(t.inbox, transport.TwinUpdate{
			Payload:         payload,
			DesiredVersion:  doc.Desired.Version,
			ReportedVersion: doc.Reported.Version,
			Complete:        true,
		})
	}
}

func (t *Transport) newRID() string {
	t.nextRID++
	return strconv.FormatUint(t.nextRID, 10)
}

func (t *Transport) dialHost() string {
	if t.cfg.GatewayHost != "" {
		return t.cfg.GatewayHost
	}
	return t.cfg.Host
}

// password returns the SAS token string and its expiry.
func (t *Transport) password() (string, time.Time, error) {
	now := t.cfg.Now()
	if t.cfg.SharedAccessKey == "" {
		tok, err := ParseSASToken(t.cfg.SASToken)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("%w: %w", transport.ErrUnauthorized, err)
		}
		if tok.Expired(now) {
			return "", time.Time{}, transport.ErrTokenExpired
		}
		return t.cfg.SASToken, tok.Expiry, nil
	}

	resource := t.cfg.Host + "/devices/" + t.cfg.DeviceID
	if t.cfg.ModuleID != "" {
		resource += "/modules/" + t.cfg.ModuleID
	}
	tok, err := NewSASToken(resource, t.cfg.SharedAccessKey, t.cfg.SharedAccessKeyName, now.Add(t.opts.SASTokenLifetime))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", transport.ErrUnauthorized, err)
	}
	return tok.String(), tok.Expiry, nil
}

// buildClientOptions creates paho options for one connection attempt.
func (t *Transport) buildClientOptions(timeout time.Duration, password string) *pahomqtt.ClientOptions {
	po := pahomqtt.NewClientOptions()

	scheme := "ssl"
	if t.cfg.Insecure {
		scheme = "tcp"
	}
	po.AddBroker(fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(t.dialHost(), strconv.Itoa(t.cfg.Port))))

	po.SetClientID(t.topics.ClientID())
	po.SetUsername(t.topics.Username(t.cfg.Host, version.UserAgent(t.opts.ProductInfo)))
	po.SetPassword(password)
	po.SetProtocolVersion(4)

	// Persistent session so QoS 1 cloud messages survive reconnects.
	po.SetCleanSession(false)

	po.SetAutoReconnect(false)
	po.SetConnectRetry(false)
	po.SetOrderMatters(false)
	po.SetKeepAlive(t.opts.KeepAlive)

	po.SetConnectTimeout(timeout)

	if !t.cfg.Insecure {
		tlsConfig := t.cfg.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tlsMinVersion, ServerName: t.dialHost()}
		}
		po.SetTLSConfig(tlsConfig)
	}
	return po
}

// mapConnectError classifies a CONNACK refusal or dial failure.
func mapConnectError(err error) error {
	switch {
	case errors.Is(err, transport.ErrNoNetwork):
		return err
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword),
		errors.Is(err, packets.ErrorRefusedNotAuthorised),
		errors.Is(err, packets.ErrorRefusedIDRejected):
		return fmt.Errorf("%w: %w", transport.ErrUnauthorized, err)
	case errors.Is(err, packets.ErrorRefusedServerUnavailable):
		return fmt.Errorf("%w: %w", transport.ErrNoNetwork, err)
	}
	// Dial failures, TLS errors and timeouts.
	return fmt.Errorf("%w: %w", transport.ErrNoNetwork, err)
}

func eventProperties(f *wire.Frame) url.Values {
	props := url.Values{}
	for k, v := range f.Properties {
		props.Set(k, v)
	}
	if f.MessageID != "" {
		props.Set(propMessageID, f.MessageID)
	}
	if f.CorrelationID != "" {
		props.Set(propCorrelationID, f.CorrelationID)
	}
	if f.ContentType != "" {
		props.Set(propContentType, f.ContentType)
	}
	if f.ContentEncoding != "" {
		props.Set(propContentEncoding, f.ContentEncoding)
	}
	return props
}

func cloudMessage(props url.Values, payload []byte) transport.CloudMessage {
	msg := transport.CloudMessage{
		ID:            props.Get(propMessageID),
		Payload:       payload,
		CorrelationID: props.Get(propCorrelationID),
		ContentType:   props.Get(propContentType),
		Properties:    make(map[string]string),
	}
	for k := range props {
		if len(k) > 0 && k[0] == '$' {
			continue
		}
		msg.Properties[k] = props.Get(k)
	}
	return msg
}

var (
	_ transport.Transport      = (*Transport)(nil)
	_ transport.Configurable   = (*Transport)(nil)
	_ transport.AsyncConnector = (*Transport)(nil)
)
