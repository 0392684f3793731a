package detector

import (
	"sync"
	"time"
)

type circuitState int

const (
	circuitClosed   circuitState = iota // normal operation
	circuitOpen                         // sidecar down, reject without dialing
	circuitHalfOpen                     // probing recovery
)

func (s circuitState) String() string {
	switch s {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// breaker keeps a run of sidecar failures from stalling every chat turn for
// a full request timeout. After failureLimit consecutive failures calls are
// rejected immediately; once probeAfter has passed a single request is let
// through and its outcome decides whether the circuit closes again.
type breaker struct {
	mu           sync.Mutex
	state        circuitState
	failures     int
	failureLimit int
	probeAfter   time.Duration
	lastFailure  time.Time
}

func newBreaker(failureLimit int, probeAfter time.Duration) *breaker {
	if failureLimit <= 0 {
		failureLimit = 5
	}
	if probeAfter <= 0 {
		probeAfter = 30 * time.Second
	}
	return &breaker{
		state:        circuitClosed,
		failureLimit: failureLimit,
		probeAfter:   probeAfter,
	}
}

// allow reports whether a request may go out.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitClosed, circuitHalfOpen:
		return true
	case circuitOpen:
		if time.Since(b.lastFailure) >= b.probeAfter {
			b.state = circuitHalfOpen
			return true
		}
		return false
	}
	return false
}

// success records a healthy response. Returns true when this call closed a
// previously tripped circuit.
func (b *breaker) success() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == circuitClosed {
		return false
	}
	b.state = circuitClosed
	return true
}

// failure records an unhealthy response. Returns true when this call tripped
// the circuit open.
func (b *breaker) failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	if b.state == circuitHalfOpen {
		// A failed probe re-opens without waiting for the limit.
		b.state = circuitOpen
		return true
	}
	if b.state == circuitClosed && b.failures >= b.failureLimit {
		b.state = circuitOpen
		return true
	}
	return false
}

func (b *breaker) currentState() circuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
