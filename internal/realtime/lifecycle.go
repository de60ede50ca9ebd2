package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/brightfield-crm/syncengine/internal/conflict"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/retry"
)

// ConnState is the connection-state snapshot the lifecycle manager reports
// on every transition, consumed by the orchestrator for UI status
// surfacing. Attempt/Max are only meaningful while Status is
// ConnReconnecting or ConnDegraded.
type ConnState struct {
	Status  ports.ConnectionState
	Attempt int
	Max     int
}

// Lifecycle is the channel lifecycle manager: it owns the row-change
// subscription, spawns one reader task per stream plus a status watcher,
// and runs the reconnect-with-backoff loop on subscribe failure. There's
// no shared mutable state between the reader tasks themselves; the mutex
// here only protects the manager's own listening/cancel bookkeeping
// against a stop racing an in-flight subscribe.
type Lifecycle struct {
	client     ports.RealtimeClient
	dispatcher *Dispatcher
	resolver   *conflict.Resolver
	principal  ports.Principal
	log        ports.Logger
	testMode   bool

	mu        sync.Mutex
	listening bool
	cancelRun context.CancelFunc
	onState   func(ConnState)
}

func NewLifecycle(client ports.RealtimeClient, dispatcher *Dispatcher, resolver *conflict.Resolver, principal ports.Principal, log ports.Logger, testMode bool) *Lifecycle {
	return &Lifecycle{
		client:     client,
		dispatcher: dispatcher,
		resolver:   resolver,
		principal:  principal,
		log:        log,
		testMode:   testMode,
	}
}

// OnStateChange registers the callback invoked on every connection-state
// transition. Not safe to call concurrently with a transition; callers
// register it once before the first StartListening.
func (l *Lifecycle) OnStateChange(fn func(ConnState)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()
}

func (l *Lifecycle) emit(state ConnState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (l *Lifecycle) IsListening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// StartListening sets listening=true before the subscribe call begins,
// closing the race with a concurrent stop: a StopListening racing the
// in-flight Subscribe always observes a consistent decision once
// Subscribe returns.
func (l *Lifecycle) StartListening(ctx context.Context) {
	l.mu.Lock()
	if l.listening {
		l.mu.Unlock()
		return
	}
	l.listening = true
	runCtx, cancel := context.WithCancel(ctx)
	l.cancelRun = cancel
	l.mu.Unlock()

	changes, broadcasts, status, err := l.client.Subscribe(runCtx)
	if err != nil {
		l.client.Unsubscribe()
		if runCtx.Err() != nil {
			return
		}
		l.log.Warn("realtime: initial subscribe failed, entering retry loop", "err", err)
		go l.retryLoop(runCtx)
		return
	}

	if !l.stillListening(runCtx) {
		l.client.Unsubscribe()
		return
	}
	l.emit(ConnState{Status: ports.ConnConnected})
	go l.readChanges(runCtx, changes)
	go l.readBroadcasts(runCtx, broadcasts)
	go l.watchStatus(runCtx, status)
}

func (l *Lifecycle) stillListening(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// retryLoop is the reconnect loop: attempts 1..max advertise
// reconnecting(k, max); attempt max+1 transitions to degraded; every
// attempt after that keeps retrying at the capped delay without further
// state emission ("continue silently").
func (l *Lifecycle) retryLoop(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		max := retry.MaxRetries
		switch {
		case attempt <= max:
			l.emit(ConnState{Status: ports.ConnReconnecting, Attempt: attempt, Max: max})
		case attempt == max+1:
			l.emit(ConnState{Status: ports.ConnDegraded, Attempt: attempt, Max: max})
		}

		delay := retry.Delay(attempt - 1)
		if l.testMode {
			if ctx.Err() != nil {
				return
			}
		} else {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		changes, broadcasts, status, err := l.client.Subscribe(ctx)
		if err != nil {
			l.client.Unsubscribe()
			l.log.Warn("realtime: resubscribe failed", "attempt", attempt, "err", err)
			continue
		}
		if !l.stillListening(ctx) {
			l.client.Unsubscribe()
			return
		}
		l.emit(ConnState{Status: ports.ConnConnected})
		go l.readChanges(ctx, changes)
		go l.readBroadcasts(ctx, broadcasts)
		go l.watchStatus(ctx, status)
		return
	}
}

func (l *Lifecycle) readChanges(ctx context.Context, changes <-chan ports.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			if err := l.dispatcher.HandleChange(ctx, ev); err != nil {
				l.log.Warn("realtime: change handler failed", "kind", ev.Kind, "err", err)
			}
		}
	}
}

func (l *Lifecycle) readBroadcasts(ctx context.Context, broadcasts <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-broadcasts:
			if !ok {
				return
			}
			userID := ""
			if l.principal != nil {
				userID = l.principal.CurrentUserID()
			}
			if err := l.dispatcher.HandleBroadcast(ctx, raw, userID, l.resolver, l.log); err != nil {
				l.log.Warn("realtime: broadcast handler failed", "err", err)
			}
		}
	}
}

func (l *Lifecycle) watchStatus(ctx context.Context, status <-chan ports.ConnectionState) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-status:
			if !ok {
				return
			}
			l.emit(ConnState{Status: s})
		}
	}
}

// StopListening cancels the retry task and any active reader goroutines,
// unsubscribes, and clears listening state.
func (l *Lifecycle) StopListening() error {
	l.mu.Lock()
	cancel := l.cancelRun
	l.cancelRun = nil
	l.listening = false
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return l.client.Unsubscribe()
}

// ResetAndReconnect cancels retries and attempts a fresh subscribe
// immediately.
func (l *Lifecycle) ResetAndReconnect(ctx context.Context) {
	l.StopListening()
	l.StartListening(ctx)
}
