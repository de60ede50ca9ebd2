package entitysync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/models"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/retry"
)

// ErrRetryCapped is returned by RetryRow when the row has already
// exhausted its retry budget.
var ErrRetryCapped = errors.New("entitysync: retry cap reached for row")

// Sleeper pauses for d, or returns immediately without pausing. The
// orchestrator passes a real time.Sleep in live mode and a no-op (delay
// still computed, never awaited) in test mode.
type Sleeper func(d time.Duration)

// RetryRow is the manual single-row retry loop: refuse if
// the cap is reached, otherwise compute the backoff delay for the
// current attempt, pause via sleep, bump retryCount, and reset the row
// to pending so the next sync() pass pushes it again.
func RetryRow(ctx context.Context, deps *Deps, kind entitykind.Kind, id string, sleep Sleeper) error {
	row, ok, err := deps.Store.FetchByID(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("retryRow %s/%s: fetch: %w", kind, id, err)
	}
	if !ok {
		return fmt.Errorf("retryRow %s/%s: not found", kind, id)
	}

	meta := decodeMeta(row.Fields)
	if !retry.CanRetry(meta.retryCount) {
		return ErrRetryCapped
	}

	delay := retry.Delay(meta.retryCount)
	if sleep != nil {
		sleep(delay)
	}

	fields := cloneScalars(row.Fields)
	fields[ports.MetaRetryCount] = meta.retryCount + 1
	fields[ports.MetaSyncState] = string(models.SyncPending)
	delete(fields, ports.MetaLastSyncError)
	if err := deps.Store.Upsert(ctx, kind, ports.Row{Kind: kind, Fields: fields}); err != nil {
		return fmt.Errorf("retryRow %s/%s: reset to pending: %w", kind, id, err)
	}
	return nil
}

// AutoRecover is the auto-recovery pass: scan failed rows
// that have exhausted MaxRetries and, once AutoRecoveryCooldown has
// elapsed since the last reset attempt (or none was ever made), reset
// them to pending with a fresh retryCount for another round of pushes.
// Returns whether any row was reset, so the caller knows whether a sync
// pass is worth triggering.
func AutoRecover(ctx context.Context, deps *Deps, kind entitykind.Kind, now time.Time) (recovered bool, err error) {
	dirty, err := deps.Store.FetchDirty(ctx, kind)
	if err != nil {
		return false, fmt.Errorf("autoRecover %s: fetch dirty: %w", kind, err)
	}
	for _, row := range dirty {
		meta := decodeMeta(row.Fields)
		if meta.syncState != models.SyncFailed {
			continue
		}
		lastReset := getTimePtr(row.Fields, ports.MetaLastResetAttempt)
		if !retry.ShouldAutoRecover(meta.retryCount, lastReset, now) {
			continue
		}

		id := getString(row.Fields, "id")
		fields := cloneScalars(row.Fields)
		fields[ports.MetaRetryCount] = 0
		fields[ports.MetaSyncState] = string(models.SyncPending)
		fields[ports.MetaLastResetAttempt] = formatTime(now)
		delete(fields, ports.MetaLastSyncError)
		if err := deps.Store.Upsert(ctx, kind, ports.Row{Kind: kind, Fields: fields}); err != nil {
			return recovered, fmt.Errorf("autoRecover %s/%s: reset: %w", kind, id, err)
		}
		recovered = true
	}
	return recovered, nil
}
