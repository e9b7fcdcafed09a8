// Package connection tracks hub connectivity for a cooperative client.
//
// This package handles:
//   - Retry policies deciding whether and when to reconnect
//   - Exponential backoff with optional jitter
//   - The connection state machine and its status callback
//
// Nothing here starts a goroutine or sleeps. The owning client calls
// Machine.Step once per DoWork; each step starts or polls at most one
// connect attempt and returns. Transports implementing
// transport.AsyncConnector are polled while the machine stays Connecting;
// others are connected with a single bounded Connect call.
//
// # States
//
//	Disconnected ──► Connecting ──► Connected
//	                     │              │ connection lost
//	                     ▼              ▼
//	           DisconnectedRetrying ◄───┘
//	                     │ ceiling exceeded
//	                     ▼
//	           DisconnectedExpired (terminal until Reset or SetPolicy)
//
// Connecting is never reported to the status callback. The status callback
// fires once per distinct (state, reason) pair, so a change of reason while
// retrying is reported even though the state is unchanged.
//
// # Retry Policies
//
// The timeout ceiling is checked before any delay is computed: once the
// time since the first failure of the current outage exceeds it, the
// policy reports Expired whatever its kind.
//
// Exponential backoff starts at 1 second and doubles up to 60 seconds.
// The jittered variant adds up to 25% on top:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// A successful connect resets the policy for the next outage.
package connection
