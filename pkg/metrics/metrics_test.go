package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	c.SetQueueDepth("EVENT", 3)
	c.ObserveCompletion("EVENT", "OK", time.Second)
	c.SetConnectionState(2)
	c.ObserveStatus("CONNECTED", "OK")
	c.ObserveConnectAttempt(nil)
	c.ObserveIncoming("ack")
	c.AddUploadBytes(10)
	c.ObserveUpload("OK")
	c.ObserveDoWork(time.Millisecond)
	c.Unregister(prometheus.NewRegistry())
}

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg, "dev-1")
	require.NoError(t, err)

	c.SetQueueDepth("EVENT", 4)
	c.ObserveCompletion("EVENT", "OK", 200*time.Millisecond)
	c.ObserveCompletion("EVENT", "OK", 300*time.Millisecond)
	c.ObserveCompletion("EVENT", "MESSAGE_TIMEOUT", time.Minute)
	c.SetConnectionState(2)
	c.ObserveConnectAttempt(errors.New("refused"))
	c.ObserveConnectAttempt(nil)
	c.AddUploadBytes(1024)
	c.AddUploadBytes(-5)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.queueDepth.WithLabelValues("EVENT")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.completionsTotal.WithLabelValues("EVENT", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completionsTotal.WithLabelValues("EVENT", "MESSAGE_TIMEOUT")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.connectionState))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectAttempts.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectAttempts.WithLabelValues("success")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(c.uploadBytes))
	assert.Equal(t, 1, testutil.CollectAndCount(c.completionLatency))
}

func TestDeviceLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg, "dev-7")
	require.NoError(t, err)
	c.SetConnectionState(2)

	expected := `
# HELP hubclient_connection_state Current connection state (0=disconnected 1=connecting 2=connected 3=retrying 4=expired)
# TYPE hubclient_connection_state gauge
hubclient_connection_state{device_id="dev-7"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "hubclient_connection_state"))
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg, "dev-1")
	require.NoError(t, err)

	_, err = New(reg, "dev-1")
	assert.Error(t, err)

	c.Unregister(reg)
	_, err = New(reg, "dev-1")
	assert.NoError(t, err)
}

func TestNewWithoutRegistry(t *testing.T) {
	c, err := New(nil, "dev-1")
	require.NoError(t, err)
	c.ObserveIncoming("twin")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.incomingTotal.WithLabelValues("twin")))
}

func TestServer(t *testing.T) {
	reg := NewRegistry()
	c, err := New(reg, "dev-1")
	require.NoError(t, err)
	c.ObserveStatus("CONNECTED", "OK")

	srv := NewServer("127.0.0.1:0", reg, nil)
	require.NoError(t, srv.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	}()

	base := "http://" + srv.Addr().String()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `hubclient_connection_status_changes_total{device_id="dev-1",reason="OK",state="CONNECTED"} 1`)
}
