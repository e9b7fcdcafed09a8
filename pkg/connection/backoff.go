package connection

import (
	"math/rand"
	"time"
)

// Exponential backoff defaults.
const (
	// InitialBackoff is the delay after the first failed reconnect.
	InitialBackoff = 1 * time.Second

	// MaxBackoff caps the delay unless retry_max_delay_secs overrides it.
	MaxBackoff = 60 * time.Second

	// BackoffMultiplier is the growth factor between attempts.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of the base delay.
	JitterFactor = 0.25
)

// Backoff computes exponential reconnect delays with optional jitter.
// The delay depends only on the attempt count, so the cap and jitter can be
// changed mid-outage without losing progress.
// It is not safe for concurrent use; the owning client serializes access.
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	rng        *rand.Rand

	attempts int
}

// BackoffConfig allows customizing backoff parameters.
// Zero values select the defaults above.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	// Rand is the jitter source. If nil, a time-seeded source is used.
	Rand *rand.Rand
}

// NewBackoff creates a jittered backoff with default settings.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{Jitter: JitterFactor})
}

// NewBackoffWithConfig creates a backoff with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // jitter, not security
	}

	b := &Backoff{
		initial:    cfg.Initial,
		multiplier: cfg.Multiplier,
		rng:        cfg.Rand,
	}
	b.SetMax(cfg.Max)
	b.SetJitter(cfg.Jitter)
	return b
}

// SetMax changes the cap. Non-positive values restore MaxBackoff.
func (b *Backoff) SetMax(d time.Duration) {
	if d <= 0 {
		d = MaxBackoff
	}
	b.max = d
}

// SetJitter changes the jitter fraction. Negative values disable jitter.
func (b *Backoff) SetJitter(f float64) {
	if f < 0 {
		f = 0
	}
	b.jitter = f
}

// Base returns the delay before jitter after attempt failed attempts
// (zero-based): initial × multiplier^attempt, capped.
func (b *Backoff) Base(attempt int) time.Duration {
	limit := float64(b.max)
	d := float64(b.initial)
	for i := 0; i < attempt && d < limit; i++ {
		d *= b.multiplier
	}
	if d > limit {
		d = limit
	}
	return time.Duration(d)
}

// Delay returns the jittered delay for attempt without advancing.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.Base(attempt)
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*b.rng.Float64())
}

// Next returns the delay for the current attempt and advances.
func (b *Backoff) Next() time.Duration {
	d := b.Delay(b.attempts)
	b.attempts++
	return d
}

// Reset starts over from the initial delay. Call this after a successful connection.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// DefaultSchedule returns the base delays of a default backoff up to the cap.
func DefaultSchedule() []time.Duration {
	return []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
	}
}
