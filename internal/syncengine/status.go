package syncengine

import (
	"time"

	"github.com/brightfield-crm/syncengine/internal/breaker"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/realtime"
)

// Status is the orchestrator's status surface, a plain snapshot the UI
// layer polls or subscribes to via OnStatusChange.
type Status struct {
	IsSyncing             bool
	LastSyncTime          time.Time
	LastSyncErrorMessage  string
	BreakerState          breaker.State
	Connection            ports.ConnectionState
	ConnectionAttempt     int
	ConnectionMaxAttempts int
}

// Status returns the current snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.status
	s.IsSyncing = e.syncing
	s.BreakerState = e.breaker.State()
	return s
}

// OnStatusChange registers a callback invoked whenever the status
// snapshot changes. Not safe to call concurrently with a transition.
func (e *Engine) OnStatusChange(fn func(Status)) {
	e.mu.Lock()
	e.onStatus = fn
	e.mu.Unlock()
}

func (e *Engine) setStatus(mutate func(*Status)) {
	e.mu.Lock()
	mutate(&e.status)
	s := e.status
	s.IsSyncing = e.syncing
	s.BreakerState = e.breaker.State()
	fn := e.onStatus
	e.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (e *Engine) onConnState(cs realtime.ConnState) {
	e.setStatus(func(s *Status) {
		s.Connection = cs.Status
		s.ConnectionAttempt = cs.Attempt
		s.ConnectionMaxAttempts = cs.Max
	})
}
