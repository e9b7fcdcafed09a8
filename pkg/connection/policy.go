package connection

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ErrInvalidPolicy is returned for an unknown policy kind.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// PolicyKind selects the reconnection strategy.
type PolicyKind uint8

const (
	// PolicyNone never retries; the first failure expires the outage.
	PolicyNone PolicyKind = iota

	// PolicyImmediate retries on every Step.
	PolicyImmediate

	// PolicyInterval retries after a fixed delay.
	PolicyInterval

	// PolicyLinearBackoff grows the delay by the interval on every attempt.
	PolicyLinearBackoff

	// PolicyExponentialBackoff doubles the delay up to the maximum.
	PolicyExponentialBackoff

	// PolicyExponentialBackoffWithJitter is PolicyExponentialBackoff plus random jitter.
	PolicyExponentialBackoffWithJitter

	// PolicyRandom waits a random delay below the maximum.
	PolicyRandom
)

// String returns a human-readable policy name.
func (k PolicyKind) String() string {
	switch k {
	case PolicyNone:
		return "NONE"
	case PolicyImmediate:
		return "IMMEDIATE"
	case PolicyInterval:
		return "INTERVAL"
	case PolicyLinearBackoff:
		return "LINEAR_BACKOFF"
	case PolicyExponentialBackoff:
		return "EXPONENTIAL_BACKOFF"
	case PolicyExponentialBackoffWithJitter:
		return "EXPONENTIAL_BACKOFF_WITH_JITTER"
	case PolicyRandom:
		return "RANDOM"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether k is a known policy kind.
func (k PolicyKind) IsValid() bool {
	return k <= PolicyRandom
}

// ParsePolicyKind parses a policy name as returned by String.
// Matching ignores case and accepts '-' for '_'.
func ParsePolicyKind(s string) (PolicyKind, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for k := PolicyNone; k <= PolicyRandom; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// RetryPolicy is the host-visible policy configuration.
type RetryPolicy struct {
	Kind PolicyKind

	// TimeoutLimit is the outage ceiling in seconds. Zero means unlimited.
	TimeoutLimit uint
}

// DefaultRetryPolicy returns exponential backoff with jitter and no ceiling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Kind: PolicyExponentialBackoffWithJitter}
}

// Decision is the outcome of ShouldRetryNow.
type Decision uint8

const (
	DecisionRetryNow Decision = iota
	DecisionWait
	DecisionExpired
)

// String returns a human-readable decision name.
func (d Decision) String() string {
	switch d {
	case DecisionRetryNow:
		return "RETRY_NOW"
	case DecisionWait:
		return "WAIT"
	case DecisionExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// RetryState is the bookkeeping of the current outage.
type RetryState struct {
	Attempts     int
	FirstFailure time.Time
	NextAttempt  time.Time
}

// InOutage reports whether an outage is being tracked.
func (s RetryState) InOutage() bool {
	return !s.FirstFailure.IsZero()
}

// PolicyEngine evaluates a RetryPolicy against the current outage.
type PolicyEngine struct {
	policy   RetryPolicy
	interval time.Duration
	maxDelay time.Duration
	rng      *rand.Rand
	backoff  *Backoff
	state    RetryState
}

// NewPolicyEngine creates an engine running the default policy.
// If rng is nil, a time-seeded source is used.
func NewPolicyEngine(rng *rand.Rand) *PolicyEngine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // jitter, not security
	}
	e := &PolicyEngine{
		policy:   DefaultRetryPolicy(),
		interval: 5 * time.Second,
		maxDelay: MaxBackoff,
		rng:      rng,
		backoff:  NewBackoffWithConfig(BackoffConfig{Rand: rng}),
	}
	e.configureBackoff()
	return e
}

// Policy returns exactly the last policy passed to SetPolicy.
func (e *PolicyEngine) Policy() RetryPolicy {
	return e.policy
}

// SetPolicy replaces the policy. An outage in progress starts over.
func (e *PolicyEngine) SetPolicy(p RetryPolicy) error {
	if !p.Kind.IsValid() {
		return fmt.Errorf("%w: kind %d", ErrInvalidPolicy, p.Kind)
	}
	e.policy = p
	e.configureBackoff()
	e.backoff.Reset()
	e.state = RetryState{}
	return nil
}

// SetTimings updates the interval base delay and the backoff cap.
// Non-positive values keep the current setting.
func (e *PolicyEngine) SetTimings(interval, maxDelay time.Duration) {
	if interval > 0 {
		e.interval = interval
	}
	if maxDelay > 0 {
		e.maxDelay = maxDelay
		e.backoff.SetMax(maxDelay)
	}
}

// State returns a copy of the outage bookkeeping.
func (e *PolicyEngine) State() RetryState {
	return e.state
}

// BeginOutage starts tracking an outage at now, if none is tracked.
// The first attempt of a new outage is eligible immediately.
func (e *PolicyEngine) BeginOutage(now time.Time) {
	if e.state.InOutage() {
		return
	}
	e.state.FirstFailure = now
	e.state.NextAttempt = now
}

// RecordFailure counts a failed attempt and schedules the next one.
func (e *PolicyEngine) RecordFailure(now time.Time) {
	e.BeginOutage(now)
	e.state.Attempts++
	e.state.NextAttempt = now.Add(e.delay())
}

// Reset clears the outage. Call this after a successful connection.
func (e *PolicyEngine) Reset() {
	e.state = RetryState{}
	e.backoff.Reset()
}

// ShouldRetryNow decides whether a connect attempt may be made at now.
func (e *PolicyEngine) ShouldRetryNow(now time.Time) Decision {
	e.BeginOutage(now)

	if e.policy.TimeoutLimit > 0 {
		limit := time.Duration(e.policy.TimeoutLimit) * time.Second
		if now.Sub(e.state.FirstFailure) > limit {
			return DecisionExpired
		}
	}

	switch e.policy.Kind {
	case PolicyNone:
		return DecisionExpired
	case PolicyImmediate:
		return DecisionRetryNow
	}

	if now.Before(e.state.NextAttempt) {
		return DecisionWait
	}
	return DecisionRetryNow
}

// delay returns the wait before the next attempt, given e.state.Attempts
// failed attempts so far.
func (e *PolicyEngine) delay() time.Duration {
	switch e.policy.Kind {
	case PolicyInterval:
		return e.interval
	case PolicyLinearBackoff:
		d := e.interval * time.Duration(e.state.Attempts)
		if d > e.maxDelay {
			d = e.maxDelay
		}
		return d
	case PolicyExponentialBackoff, PolicyExponentialBackoffWithJitter:
		return e.backoff.Next()
	case PolicyRandom:
		return time.Duration(e.rng.Int63n(int64(e.maxDelay)))
	default:
		return 0
	}
}

func (e *PolicyEngine) configureBackoff() {
	e.backoff.SetMax(e.maxDelay)
	if e.policy.Kind == PolicyExponentialBackoffWithJitter {
		e.backoff.SetJitter(JitterFactor)
	} else {
		e.backoff.SetJitter(0)
	}
}
