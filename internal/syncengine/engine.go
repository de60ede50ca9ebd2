// Package syncengine implements the sync orchestrator: the top-level
// state machine that owns the coalescing request loop, the ordered
// syncDown/syncUp passes, watermark bookkeeping, and the realtime ingress
// lifecycle. The orchestrator is an explicit owned object threaded
// through the app with every collaborator injected, not a package-level
// singleton.
package syncengine

import (
	"context"
	"sync"
	"time"

	"github.com/brightfield-crm/syncengine/internal/breaker"
	"github.com/brightfield-crm/syncengine/internal/compat"
	"github.com/brightfield-crm/syncengine/internal/conflict"
	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/entitysync"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/realtime"
	"github.com/brightfield-crm/syncengine/internal/usererror"
)

// Mode is captured at construction and never changes.
type Mode int

const (
	// ModeLive runs real network I/O, real timers, and persists durable
	// settings.
	ModeLive Mode = iota
	// ModePreview disables network, timers, and persistence entirely; a
	// display-only mode for rendering already-local data.
	ModePreview
	// ModeTest is deterministic: real network/timers are replaced by
	// injected fakes, timer-based delays are computed but never awaited,
	// and shutdown enforces a quiescence timeout.
	ModeTest
)

// Config bundles every external collaborator and tunable the engine
// needs. Collaborators are interfaces; the engine implements none of
// them.
type Config struct {
	Remote    ports.RemoteTable
	Store     ports.LocalStore
	Realtime  ports.RealtimeClient // nil disables realtime ingress entirely
	Objects   ports.ObjectStore
	Compat    ports.CompatClient
	Principal ports.Principal
	Clock     ports.Clock // nil defaults to wall-clock time
	Log       ports.Logger

	Platform      string
	ClientVersion string

	Mode Mode
}

// Engine is the Sync Orchestrator. The zero value is unusable; construct
// with New.
type Engine struct {
	deps      *entitysync.Deps
	objects   ports.ObjectStore
	resolver  *conflict.Resolver
	breaker   *breaker.Breaker
	gate      *compat.Gate
	principal ports.Principal
	clock     ports.Clock
	log       ports.Logger
	mode      Mode
	realtime  *realtime.Coordinator

	mu                  sync.Mutex
	ctx                 context.Context
	cancel              context.CancelFunc
	requested           bool
	loopRunning         bool
	loopDone            chan struct{}
	syncing             bool
	requestedDuringSync bool
	syncRunID           uint64
	legacyUsersDone     bool
	status              Status
	onStatus            func(Status)
}

// New constructs an Engine in the given mode. Realtime ingress is wired
// only when cfg.Realtime is non-nil; ModePreview never starts it
// regardless, since preview performs no network I/O.
func New(cfg Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = ports.ClockFunc(time.Now)
	}
	log := cfg.Log
	if log == nil {
		log = noopLogger{}
	}

	resolver := conflict.New()
	br := breaker.New(func() time.Time { return clock.Now() })
	gate := compat.New(cfg.Compat, clock, cfg.Platform, cfg.ClientVersion)
	deps := &entitysync.Deps{Remote: cfg.Remote, Store: cfg.Store, Resolver: resolver, Clock: clock, Log: log}

	e := &Engine{
		deps:      deps,
		objects:   cfg.Objects,
		resolver:  resolver,
		breaker:   br,
		gate:      gate,
		principal: cfg.Principal,
		clock:     clock,
		log:       log,
		mode:      cfg.Mode,
		ctx:       context.Background(),
	}

	if cfg.Realtime != nil && cfg.Mode != ModePreview {
		e.realtime = realtime.New(cfg.Realtime, deps, resolver, cfg.Principal, cfg.Mode == ModeTest)
		e.realtime.OnStateChange(e.onConnState)
	}

	return e
}

// Start begins the realtime subscription (if wired) under ctx. A no-op in
// ModePreview. Safe to call once; subsequent calls are no-ops until
// Shutdown.
func (e *Engine) Start(ctx context.Context) {
	if e.mode == ModePreview {
		return
	}
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.ctx = runCtx
	e.cancel = cancel
	e.mu.Unlock()

	if e.realtime != nil {
		e.realtime.StartListening(runCtx)
	}
}

// RetryRow is the manual single-row retry: it refuses with
// entitysync.ErrRetryCapped once the row has exhausted its retry budget,
// otherwise bumps retryCount, resets the row to pending, and triggers a
// sync pass. The backoff sleep is skipped in ModeTest (delay is still
// computed, never awaited).
func (e *Engine) RetryRow(ctx context.Context, kind entitykind.Kind, id string) error {
	sleep := time.Sleep
	if e.mode == ModeTest {
		sleep = func(time.Duration) {}
	}
	if err := entitysync.RetryRow(ctx, e.deps, kind, id, sleep); err != nil {
		return err
	}
	e.RequestSync()
	return nil
}

// NotifyLocalMutation is the local-UI entry point after an insert/update/
// delete: a thin, fire-and-forget wrapper over RequestSync.
func (e *Engine) NotifyLocalMutation() {
	e.RequestSync()
}

// RequestSync is the coalescing sync queue: it sets a single boolean and
// ensures exactly one consumer loop is running.
// No request is ever lost: a request arriving mid-run is drained by the
// loop's next iteration rather than spawning a second concurrent sync().
func (e *Engine) RequestSync() {
	if e.mode == ModePreview {
		return
	}
	e.mu.Lock()
	e.requested = true
	already := e.loopRunning
	if !already {
		e.loopRunning = true
		e.loopDone = make(chan struct{})
	}
	e.mu.Unlock()

	if !already {
		go e.runLoop()
	}
}

// RequestSyncAndWait calls RequestSync and blocks until the coalescing
// loop it joined or spawned has drained every request made up to this
// call. UI callers should prefer the fire-and-forget RequestSync; this
// exists for callers needing synchronous semantics, such as a CLI
// driving a single sync pass to completion before reporting status.
func (e *Engine) RequestSyncAndWait(ctx context.Context) {
	e.RequestSync()
	e.mu.Lock()
	done := e.loopDone
	e.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (e *Engine) runLoop() {
	for {
		e.mu.Lock()
		ctx := e.ctx
		if ctx.Err() != nil || !e.requested {
			// Exit bookkeeping happens in the same critical section as the
			// final "no request" check, so a RequestSync racing this exit
			// either lands before it (and the loop runs once more) or after
			// it (and observes loopRunning=false, spawning a fresh loop).
			// Either way no request is lost.
			e.requested = false
			e.loopRunning = false
			done := e.loopDone
			e.loopDone = nil
			e.mu.Unlock()
			if done != nil {
				close(done)
			}
			return
		}
		e.requested = false
		e.mu.Unlock()

		e.sync(ctx)
	}
}

// sync is the single sync path. A monotonically increasing
// syncRunID is bumped at entry and captured locally for log correlation.
func (e *Engine) sync(ctx context.Context) {
	if e.principal == nil || e.principal.CurrentUserID() == "" {
		e.log.Debug("syncengine: sync skipped, no current user")
		return
	}

	e.mu.Lock()
	if e.syncing {
		e.requestedDuringSync = true
		e.mu.Unlock()
		return
	}
	e.syncing = true
	e.syncRunID++
	runID := e.syncRunID
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		again := e.requestedDuringSync
		e.requestedDuringSync = false
		e.mu.Unlock()
		if again {
			e.RequestSync()
		}
	}()

	if !e.breaker.ShouldAllowSync() {
		e.log.Warn("syncengine: circuit open, skipping sync", "runID", runID)
		return
	}

	if status, canProceed := e.gate.Check(ctx); !canProceed {
		e.log.Warn("syncengine: compat gate blocks sync", "runID", runID, "status", status)
		e.setStatus(func(s *Status) { s.LastSyncErrorMessage = "An update is required to continue syncing." })
		return
	}

	runStart := e.clock.Now()
	firstSync, err := e.isFirstSync(ctx)
	if err != nil {
		e.log.Warn("syncengine: read lastSyncTime failed", "runID", runID, "err", err)
		return
	}

	if err := e.runSyncDown(ctx, runStart, firstSync); err != nil {
		e.log.Warn("syncengine: syncDown failed", "runID", runID, "err", err)
		e.setStatus(func(s *Status) { s.LastSyncErrorMessage = usererror.Classify(err, "") })
		return
	}

	pushFailed, err := e.runSyncUp(ctx, runStart)
	if err != nil {
		e.log.Warn("syncengine: syncUp failed", "runID", runID, "err", err)
		e.setStatus(func(s *Status) { s.LastSyncErrorMessage = usererror.Classify(err, "") })
		e.breaker.RecordFailure()
		return
	}
	if pushFailed {
		e.breaker.RecordFailure()
	} else {
		e.breaker.RecordSuccess()
	}

	if err := e.deps.Store.Save(ctx); err != nil {
		e.log.Warn("syncengine: save failed", "runID", runID, "err", err)
		e.setStatus(func(s *Status) { s.LastSyncErrorMessage = usererror.Classify(err, "") })
		return
	}

	// Settings land in whatever store was injected: durable SQLite in live
	// mode, the in-memory fake in test mode. Preview persists nothing, but
	// preview also never syncs, so no gate is needed here.
	if err := setSettingTime(ctx, e.deps.Store, settingLastSyncTime, e.clock.Now()); err != nil {
		e.log.Warn("syncengine: persist lastSyncTime failed", "runID", runID, "err", err)
	}

	e.setStatus(func(s *Status) {
		s.LastSyncTime = e.clock.Now()
		s.LastSyncErrorMessage = ""
	})
	e.log.Debug("syncengine: sync complete", "runID", runID)
}

// isFirstSync reports whether lastSyncTime was unset at pass start; the
// orphan sweep runs only then.
func (e *Engine) isFirstSync(ctx context.Context) (bool, error) {
	_, found, err := getSettingTime(ctx, e.deps.Store, settingLastSyncTime)
	if err != nil {
		return false, err
	}
	return !found, nil
}

// Shutdown follows a strict ordering: stopListening, then cancel (retry
// task, loop), then await quiescence (2s timeout in test mode), then
// clear references.
func (e *Engine) Shutdown(ctx context.Context) {
	if e.realtime != nil {
		if err := e.realtime.StopListening(); err != nil {
			e.log.Warn("syncengine: stopListening on shutdown failed", "err", err)
		}
	}

	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	done := e.loopDone
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if done != nil {
		if e.mode == ModeTest {
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				e.log.Error("syncengine: shutdown quiescence timeout exceeded (test mode invariant violated)")
			}
		} else {
			<-done
		}
	}

	e.mu.Lock()
	e.ctx = context.Background()
	e.mu.Unlock()
}

// ResetAndReconnect forwards to the realtime coordinator, if wired.
func (e *Engine) ResetAndReconnect(ctx context.Context) {
	if e.realtime != nil {
		e.realtime.ResetAndReconnect(ctx)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
