package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/hubclient/hubclient-go/pkg/wire"
)

func captureSlog(t *testing.T, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	NewSlogAdapter(slog.New(handler)).Log(event)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	return entry
}

func TestSlogAdapterLogsFrameEvent(t *testing.T) {
	entry := captureSlog(t, Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		DeviceID:     "dev-1",
		Frame:        &FrameEvent{Size: 256},
	})

	if entry["msg"] != "protocol" {
		t.Errorf("msg: got %v, want %q", entry["msg"], "protocol")
	}
	if entry["conn_id"] != "conn-123" {
		t.Errorf("conn_id: got %v, want %q", entry["conn_id"], "conn-123")
	}
	if entry["direction"] != "IN" {
		t.Errorf("direction: got %v, want %q", entry["direction"], "IN")
	}
	if entry["device_id"] != "dev-1" {
		t.Errorf("device_id: got %v, want %q", entry["device_id"], "dev-1")
	}
	if entry["frame_size"] != float64(256) {
		t.Errorf("frame_size: got %v, want 256", entry["frame_size"])
	}
}

func TestSlogAdapterLogsMessageEvent(t *testing.T) {
	status := 501
	entry := captureSlog(t, Event{
		Timestamp: time.Now(),
		Direction: DirectionOut,
		Layer:     LayerWire,
		Message: &MessageEvent{
			Type:   MessageTypeFrame,
			Kind:   wire.KindMethodResponse,
			Seq:    9,
			ID:     "rid-3",
			Status: &status,
		},
	})

	if entry["kind"] != "METHOD_RESPONSE" {
		t.Errorf("kind: got %v", entry["kind"])
	}
	if entry["seq"] != float64(9) {
		t.Errorf("seq: got %v, want 9", entry["seq"])
	}
	if entry["status"] != float64(501) {
		t.Errorf("status: got %v, want 501", entry["status"])
	}
}

func TestSlogAdapterLogsStateChange(t *testing.T) {
	entry := captureSlog(t, Event{
		Timestamp: time.Now(),
		Layer:     LayerClient,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityConnection,
			NewState: "DISCONNECTED_EXPIRED",
			Reason:   "RETRY_EXPIRED",
		},
	})

	if entry["new_state"] != "DISCONNECTED_EXPIRED" || entry["reason"] != "RETRY_EXPIRED" {
		t.Errorf("state change attrs: got %v", entry)
	}
}

func TestSlogAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	NewSlogAdapter(slog.New(handler)).Log(Event{Timestamp: time.Now()})

	if buf.Len() != 0 {
		t.Errorf("debug event logged at info level: %s", buf.String())
	}
}
