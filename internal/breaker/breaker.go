// Package breaker implements the sync engine's circuit breaker: a
// Closed -> Open -> HalfOpen -> Closed state machine with escalating
// cooldown per consecutive trip. Hand-rolled because the per-trip cooldown
// escalation doesn't map onto the fixed-timeout settings of the common
// breaker libraries.
package breaker

import (
	"sync"
	"time"
)

// State is one node of the breaker's FSM.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	failureThreshold = 5
	baseCooldown     = 30 * time.Second
	maxCooldown      = 300 * time.Second
)

// Clock is injected so tests can control "now" deterministically.
type Clock func() time.Time

// Breaker is safe for concurrent use, though in the engine's single
// logical executor model it is only ever touched from one goroutine at a
// time.
type Breaker struct {
	mu sync.Mutex

	clock Clock

	state              State
	consecutiveFailures int
	tripCount          int
	openedAt           time.Time
	cooldown           time.Duration

	onStateChange func(State)
}

// New constructs a closed breaker. clock defaults to time.Now.
func New(clock Clock) *Breaker {
	if clock == nil {
		clock = time.Now
	}
	return &Breaker{clock: clock, state: Closed}
}

// OnStateChange registers a callback invoked whenever the breaker
// transitions state.
func (b *Breaker) OnStateChange(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if b.onStateChange != nil {
		b.onStateChange(s)
	}
}

// State returns the current FSM node.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// TripCount returns the number of times the breaker has tripped since the
// last Closed success; used to compute the next cooldown escalation.
func (b *Breaker) TripCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripCount
}

// cooldownForTrip computes min(maxCooldown, 30s * 2^(N-1)) for trip number N
// (1-indexed: the first trip uses N=1 and cools down for 30s).
func cooldownForTrip(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 10 { // guard against overflow; cooldown saturates long before this
		return maxCooldown
	}
	d := baseCooldown * time.Duration(uint64(1)<<uint(n-1))
	if d > maxCooldown {
		return maxCooldown
	}
	return d
}

// RecordFailure registers a failed sync attempt. After failureThreshold
// consecutive failures from Closed, the breaker trips to Open. A failure
// while HalfOpen re-opens with an escalated cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	switch b.state {
	case Closed:
		if b.consecutiveFailures >= failureThreshold {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	case Open:
		// already open; nothing further to do
	}
}

// trip transitions to Open with the cooldown for the next trip count.
// Caller must hold b.mu.
func (b *Breaker) trip() {
	b.tripCount++
	b.cooldown = cooldownForTrip(b.tripCount)
	b.openedAt = b.clock()
	b.setState(Open)
}

// RecordSuccess registers a successful sync attempt. From HalfOpen this
// closes the breaker and resets the trip count; from Closed it simply
// resets the consecutive-failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0

	switch b.state {
	case HalfOpen:
		b.tripCount = 0
		b.cooldown = 0
		b.setState(Closed)
	case Open:
		// A success can't happen while Open under normal use (no probe was
		// issued), but treat it defensively the same as a HalfOpen success.
		b.tripCount = 0
		b.cooldown = 0
		b.setState(Closed)
	case Closed:
		// nothing to do
	}
}

// ShouldAllowSync reports whether a sync attempt may proceed. If Open and
// the cooldown has elapsed, this transitions to HalfOpen and allows the
// attempt. While HalfOpen every call returns true: the breaker does not
// itself limit HalfOpen to a single probe, and it leaves HalfOpen only when
// RecordSuccess or RecordFailure is called.
func (b *Breaker) ShouldAllowSync() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return true
	case Open:
		if b.clock().Sub(b.openedAt) >= b.cooldown {
			b.setState(HalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}
