package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/hubclient/hubclient-go/pkg/client"
	"github.com/hubclient/hubclient-go/pkg/transport/loopback"
)

// cloudEvery is how many telemetry ticks pass between injected cloud traffic
// in loopback mode.
const cloudEvery = 3

// telemetry is the event body sent by the simulator.
type telemetry struct {
	Seq         int     `json:"seq"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// Simulator produces synthetic telemetry. In loopback mode it also plays the
// cloud side: desired-property patches, method calls and cloud messages.
// It runs on the DoWork goroutine.
type Simulator struct {
	client   *client.Client
	hub      *loopback.Transport
	interval time.Duration
	next     time.Time
	seq      int
	running  bool

	desiredVersion int64
}

// NewSimulator creates a stopped simulator. hub may be nil.
func NewSimulator(c *client.Client, hub *loopback.Transport, interval time.Duration) *Simulator {
	return &Simulator{client: c, hub: hub, interval: interval}
}

// Start enables telemetry from the next tick.
func (s *Simulator) Start() {
	if s.running {
		return
	}
	s.running = true
	s.next = time.Time{}
	log.Println("[SIM] Simulation started")
}

// Stop disables telemetry.
func (s *Simulator) Stop() {
	if !s.running {
		return
	}
	s.running = false
	log.Println("[SIM] Simulation stopped")
}

// Running reports whether telemetry is enabled.
func (s *Simulator) Running() bool {
	return s.running
}

// SetInterval changes the telemetry period.
func (s *Simulator) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %v", d)
	}
	s.interval = d
	s.next = time.Time{}
	return nil
}

// Interval returns the telemetry period.
func (s *Simulator) Interval() time.Duration {
	return s.interval
}

// Tick sends telemetry when due.
func (s *Simulator) Tick(now time.Time) {
	if !s.running || now.Before(s.next) {
		return
	}
	s.next = now.Add(s.interval)
	s.seq++

	body, err := json.Marshal(sample(s.seq, now))
	if err != nil {
		log.Printf("[SIM] Failed to encode telemetry: %v", err)
		return
	}
	msg := client.NewMessage(body)
	msg.ContentType = "application/json"
	msg.ContentEncoding = "utf-8"
	msg.SetProperty("source", "simulator")

	seq := s.seq
	err = s.client.SendEventAsync(msg, func(result client.Result, _ any) {
		log.Printf("[SIM] Telemetry #%d: %s", seq, result)
	}, nil)
	if err != nil {
		log.Printf("[SIM] Failed to queue telemetry: %v", err)
		return
	}

	if s.hub != nil && s.seq%cloudEvery == 0 {
		s.playCloud()
	}
}

// playCloud injects one round of cloud traffic into the loopback hub.
func (s *Simulator) playCloud() {
	switch (s.seq / cloudEvery) % 3 {
	case 0:
		s.desiredVersion++
		patch := fmt.Sprintf(`{"telemetryInterval":%d}`, int(s.interval.Seconds()))
		s.hub.InjectTwinUpdate([]byte(patch), s.desiredVersion)
		log.Printf("[SIM] Cloud patched desired properties (version %d)", s.desiredVersion)
	case 1:
		id := s.hub.InjectMethod(methodPing, nil)
		log.Printf("[SIM] Cloud invoked %s (%s)", methodPing, id)
	case 2:
		id := s.hub.InjectMessage([]byte("hello from the cloud"), map[string]string{"kind": "greeting"})
		log.Printf("[SIM] Cloud sent message %s", id)
	}
}

// sample returns a deterministic daily temperature curve with a small ripple.
func sample(seq int, now time.Time) telemetry {
	hour := float64(now.Hour()) + float64(now.Minute())/60
	temp := 20 + 5*math.Sin((hour-9)/24*2*math.Pi) + 0.1*float64(seq%5)
	return telemetry{
		Seq:         seq,
		Temperature: math.Round(temp*10) / 10,
		Humidity:    math.Round((45+10*math.Cos(hour/24*2*math.Pi))*10) / 10,
	}
}
