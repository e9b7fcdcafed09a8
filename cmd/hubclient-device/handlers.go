package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hubclient/hubclient-go/pkg/client"
	"github.com/hubclient/hubclient-go/pkg/connection"
	"github.com/hubclient/hubclient-go/pkg/upload"
)

// Direct methods answered by the sample device.
const (
	methodPing        = "ping"
	methodSetInterval = "setTelemetryInterval"
	methodUploadState = "uploadState"
)

// handlers implements the device side of the hub callbacks.
type handlers struct {
	client *client.Client
	sim    *Simulator
	now    func() time.Time
}

func (h *handlers) register() error {
	if err := h.client.SetConnectionStatusCallback(h.onStatus, nil); err != nil {
		return err
	}
	if err := h.client.SetDeviceTwinCallback(h.onTwin, nil); err != nil {
		return err
	}
	if err := h.client.SetDeviceMethodCallback(h.onMethod, nil); err != nil {
		return err
	}
	return h.client.SetMessageCallback(h.onMessage, nil)
}

func (h *handlers) onStatus(state connection.State, reason connection.Reason, _ any) {
	log.Printf("[EVENT] Connection %s (%s)", state, reason)
	if state == connection.StateDisconnectedExpired {
		log.Println("[EVENT] Retry policy expired; use 'reset' to reconnect")
	}
}

func (h *handlers) onTwin(update client.TwinUpdate, _ any) {
	kind := "patch"
	if update.Complete {
		kind = "full document"
	}
	log.Printf("[EVENT] Desired properties %s (version %d, %d bytes)", kind, update.DesiredVersion, len(update.Payload))

	secs, ok := desiredInterval(update)
	if !ok {
		return
	}
	if err := h.sim.SetInterval(time.Duration(secs) * time.Second); err != nil {
		log.Printf("[EVENT] Ignoring desired interval: %v", err)
		return
	}
	h.report(map[string]any{"telemetryInterval": secs})
}

// desiredInterval extracts telemetryInterval from a patch or a full document.
func desiredInterval(update client.TwinUpdate) (int, bool) {
	var body struct {
		Desired           *json.RawMessage `json:"desired"`
		TelemetryInterval *int             `json:"telemetryInterval"`
	}
	if err := json.Unmarshal(update.Payload, &body); err != nil {
		return 0, false
	}
	if update.Complete && body.Desired != nil {
		var desired struct {
			TelemetryInterval *int `json:"telemetryInterval"`
		}
		if err := json.Unmarshal(*body.Desired, &desired); err != nil || desired.TelemetryInterval == nil {
			return 0, false
		}
		return *desired.TelemetryInterval, true
	}
	if body.TelemetryInterval == nil {
		return 0, false
	}
	return *body.TelemetryInterval, true
}

func (h *handlers) report(props map[string]any) {
	data, err := json.Marshal(props)
	if err != nil {
		log.Printf("[EVENT] Failed to encode reported state: %v", err)
		return
	}
	err = h.client.SendReportedState(data, func(result client.Result, _ any) {
		log.Printf("[EVENT] Reported state: %s", result)
	}, nil)
	if err != nil {
		log.Printf("[EVENT] Failed to queue reported state: %v", err)
	}
}

func (h *handlers) onMethod(name string, payload []byte, _ any) (int, []byte) {
	log.Printf("[EVENT] Method %s (%d bytes)", name, len(payload))

	switch name {
	case methodPing:
		return 200, []byte(`{"pong":true}`)

	case methodSetInterval:
		var req struct {
			Seconds int `json:"seconds"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return 400, errorBody(err)
		}
		if err := h.sim.SetInterval(time.Duration(req.Seconds) * time.Second); err != nil {
			return 400, errorBody(err)
		}
		h.report(map[string]any{"telemetryInterval": req.Seconds})
		return 200, nil

	case methodUploadState:
		dest := fmt.Sprintf("state/%s.json", h.now().UTC().Format("20060102T150405Z"))
		if err := h.client.UploadToBlob(dest, h.snapshot(), h.onUploaded, dest); err != nil {
			return 409, errorBody(err)
		}
		return 202, []byte(fmt.Sprintf(`{"destination":%q}`, dest))

	default:
		return 404, errorBody(fmt.Errorf("unknown method %q", name))
	}
}

func (h *handlers) onUploaded(result upload.Result, userCtx any) {
	log.Printf("[EVENT] Upload %v: %s", userCtx, result)
}

func (h *handlers) onMessage(msg *client.Message, _ any) client.Disposition {
	log.Printf("[EVENT] Cloud message %s: %q", msg.MessageID, msg.Payload)
	if len(msg.Payload) == 0 {
		return client.DispositionRejected
	}
	return client.DispositionAccepted
}

// snapshot renders the device state uploaded by uploadState.
func (h *handlers) snapshot() []byte {
	twin := h.client.TwinState()
	kind, limit, _ := h.client.GetRetryPolicy()
	data, _ := json.MarshalIndent(map[string]any{
		"connection":          h.client.ConnectionState().String(),
		"retryPolicy":         kind.String(),
		"retryTimeoutLimit":   limit,
		"telemetryInterval":   h.sim.Interval().String(),
		"lastReportedVersion": twin.LastReportedVersion,
		"lastDesiredVersion":  twin.LastDesiredVersion,
	}, "", "  ")
	return data
}

func errorBody(err error) []byte {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return data
}
