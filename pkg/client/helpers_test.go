package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hubclient/hubclient-go/pkg/connection"
	"github.com/hubclient/hubclient-go/pkg/log"
	"github.com/hubclient/hubclient-go/pkg/transport"
	"github.com/hubclient/hubclient-go/pkg/transport/loopback"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClient(t *testing.T) (*Client, *loopback.Transport, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	lb := loopback.New()

	cfg := DefaultConfig()
	cfg.DeviceID = "dev1"
	cfg.HubHost = "hub.example.net"
	cfg.Clock = clk
	cfg.RetryPolicy = connection.RetryPolicy{Kind: connection.PolicyInterval}

	c, err := New(cfg, lb)
	require.NoError(t, err)
	t.Cleanup(c.Destroy)
	return c, lb, clk
}

// doWork calls DoWork n times.
func doWork(c *Client, n int) {
	for range n {
		c.DoWork()
	}
}

type statusRecord struct {
	state  connection.State
	reason connection.Reason
}

type statusRecorder struct {
	got []statusRecord
}

func (r *statusRecorder) record(state connection.State, reason connection.Reason, _ any) {
	r.got = append(r.got, statusRecord{state, reason})
}

func (r *statusRecorder) count(state connection.State, reason connection.Reason) int {
	n := 0
	for _, s := range r.got {
		if s.state == state && s.reason == reason {
			n++
		}
	}
	return n
}

// mockTransport is a testify mock of transport.Transport.
type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTransport) Disconnect() error {
	return m.Called().Error(0)
}

func (m *mockTransport) SendEncoded(frame []byte) error {
	return m.Called(frame).Error(0)
}

func (m *mockTransport) PollIncoming() (transport.Incoming, bool) {
	args := m.Called()
	item, _ := args.Get(0).(transport.Incoming)
	return item, args.Bool(1)
}

// slowConnectTransport is a loopback whose connects finish only on release.
type slowConnectTransport struct {
	*loopback.Transport

	started  int
	released bool
}

func (s *slowConnectTransport) BeginConnect(time.Duration) error {
	s.started++
	s.released = false
	return nil
}

func (s *slowConnectTransport) PollConnect() (bool, error) {
	if !s.released {
		return false, nil
	}
	return true, s.Connect(context.Background())
}

func (s *slowConnectTransport) CancelConnect() {}

// recordingLogger collects protocol events.
type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(ev log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingLogger) Events() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}
