package log

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/hubclient/hubclient-go/pkg/wire"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)
	event := Event{
		Timestamp:    ts,
		ConnectionID: "conn-1",
		Direction:    DirectionOut,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		DeviceID:     "dev-1",
		HubHost:      "hub.example.net",
		Frame:        &FrameEvent{Size: 3, Data: []byte{1, 2, 3}},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(ts) {
		t.Errorf("Timestamp: got %v, want %v (nanoseconds must survive)", decoded.Timestamp, ts)
	}
	if decoded.DeviceID != "dev-1" || decoded.HubHost != "hub.example.net" {
		t.Errorf("identity: got %q/%q", decoded.DeviceID, decoded.HubHost)
	}
	if decoded.Frame == nil || decoded.Frame.Size != 3 {
		t.Errorf("Frame: got %+v", decoded.Frame)
	}
}

func TestMessageEventCBORRoundTrip(t *testing.T) {
	status := 200
	ack := wire.AckDeviceDisabled
	latency := 1500 * time.Millisecond

	event := Event{
		Timestamp: time.Now(),
		Direction: DirectionIn,
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Message: &MessageEvent{
			Type:        MessageTypeCompletion,
			Kind:        wire.KindMethodResponse,
			Seq:         42,
			ID:          "rid-1",
			Name:        "reboot",
			Status:      &status,
			Ack:         &ack,
			Result:      "OK",
			PayloadSize: 17,
			Latency:     &latency,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	m := decoded.Message
	if m == nil {
		t.Fatal("Message is nil")
	}
	if m.Type != MessageTypeCompletion || m.Kind != wire.KindMethodResponse || m.Seq != 42 {
		t.Errorf("header: got %v/%v/%d", m.Type, m.Kind, m.Seq)
	}
	if m.Status == nil || *m.Status != 200 {
		t.Errorf("Status: got %v, want 200", m.Status)
	}
	if m.Ack == nil || *m.Ack != wire.AckDeviceDisabled {
		t.Errorf("Ack: got %v, want DEVICE_DISABLED", m.Ack)
	}
	if m.Latency == nil || *m.Latency != latency {
		t.Errorf("Latency: got %v, want %v", m.Latency, latency)
	}
}

func TestStateChangeEventCBORRoundTrip(t *testing.T) {
	event := Event{
		Timestamp: time.Now(),
		Layer:     LayerClient,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityConnection,
			OldState: "CONNECTED",
			NewState: "DISCONNECTED_RETRYING",
			Reason:   "NO_NETWORK",
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.StateChange == nil || *decoded.StateChange != *event.StateChange {
		t.Errorf("StateChange: got %+v, want %+v", decoded.StateChange, event.StateChange)
	}
}

func TestErrorEventCBORRoundTrip(t *testing.T) {
	code := 501
	event := Event{
		Timestamp: time.Now(),
		Layer:     LayerClient,
		Category:  CategoryError,
		Error: &ErrorEventData{
			Layer:   LayerTransport,
			Message: "send failed",
			Code:    &code,
			Context: "flush",
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.Error == nil || decoded.Error.Message != "send failed" || *decoded.Error.Code != 501 {
		t.Errorf("Error: got %+v", decoded.Error)
	}
}

func TestEventCBORUsesIntegerKeys(t *testing.T) {
	data, err := EncodeEvent(Event{Timestamp: time.Now(), ConnectionID: "c"})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	var raw map[any]any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		t.Fatalf("cbor.Unmarshal failed: %v", err)
	}
	for k := range raw {
		if _, ok := k.(uint64); !ok {
			t.Errorf("key %v (%T) is not an integer", k, k)
		}
	}
}

func TestNewFrameEventTruncates(t *testing.T) {
	small := NewFrameEvent([]byte{1, 2, 3})
	if small.Truncated || small.Size != 3 || len(small.Data) != 3 {
		t.Errorf("small frame: got %+v", small)
	}

	big := NewFrameEvent(make([]byte, MaxFrameCapture+100))
	if !big.Truncated {
		t.Error("big frame: Truncated = false, want true")
	}
	if big.Size != MaxFrameCapture+100 {
		t.Errorf("big frame: Size = %d, want %d", big.Size, MaxFrameCapture+100)
	}
	if len(big.Data) != MaxFrameCapture {
		t.Errorf("big frame: len(Data) = %d, want %d", len(big.Data), MaxFrameCapture)
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerWire.String(), "WIRE"},
		{LayerClient.String(), "CLIENT"},
		{CategoryMessage.String(), "MESSAGE"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{MessageTypeFrame.String(), "FRAME"},
		{MessageTypeAck.String(), "ACK"},
		{MessageTypeCompletion.String(), "COMPLETION"},
		{MessageTypeInbound.String(), "INBOUND"},
		{StateEntityConnection.String(), "CONNECTION"},
		{StateEntityUpload.String(), "UPLOAD"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}
