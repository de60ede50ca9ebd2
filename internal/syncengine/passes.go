package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/entitysync"
	"github.com/brightfield-crm/syncengine/internal/models"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/reconcile"
)

// runSyncDown executes the syncDown pass list in FK order, then advances
// the three dedicated watermarks to the time the pass started. The global
// lastSyncTime watermark is advanced separately, after syncUp and save,
// and to "now" rather than runStart.
func (e *Engine) runSyncDown(ctx context.Context, runStart time.Time, firstSync bool) error {
	d := e.deps

	listingTypesSince, err := watermark(ctx, d.Store, settingLastSyncListingTypes)
	if err != nil {
		return err
	}
	if err := entitysync.SyncDown(ctx, d, entitysync.ListingTypeDefsSpec, listingTypesSince); err != nil {
		return err
	}

	templatesSince, err := watermark(ctx, d.Store, settingLastSyncActivityTemplates)
	if err != nil {
		return err
	}
	if err := entitysync.SyncDownActivityTemplates(ctx, d, templatesSince); err != nil {
		return err
	}

	globalSince, err := watermark(ctx, d.Store, settingLastSyncTime)
	if err != nil {
		return err
	}

	if err := entitysync.SyncDown(ctx, d, entitysync.UsersSpec, globalSince); err != nil {
		return err
	}
	if err := entitysync.SyncDown(ctx, d, entitysync.PropertiesSpec, globalSince); err != nil {
		return err
	}
	if err := entitysync.SyncDown(ctx, d, entitysync.ListingsSpec, globalSince); err != nil {
		return err
	}
	if err := entitysync.SyncDown(ctx, d, entitysync.TasksSpec, globalSince); err != nil {
		return err
	}
	if err := entitysync.SyncDown(ctx, d, entitysync.ActivitiesSpec, globalSince); err != nil {
		return err
	}
	if err := entitysync.SyncDownTaskAssignees(ctx, d, globalSince); err != nil {
		return err
	}
	if err := entitysync.SyncDownActivityAssignees(ctx, d, globalSince); err != nil {
		return err
	}

	notesSince, err := watermark(ctx, d.Store, settingLastSyncNotes)
	if err != nil {
		return err
	}
	if err := entitysync.SyncDownNotes(ctx, d, notesSince); err != nil {
		return err
	}

	for _, spec := range []entitysync.Spec{entitysync.ListingsSpec, entitysync.TasksSpec, entitysync.ActivitiesSpec, entitysync.NotesSpec} {
		if err := entitysync.ReconcileMissing(ctx, d, spec); err != nil {
			return err
		}
	}

	if err := reconcile.Relationships(ctx, d); err != nil {
		return err
	}

	if firstSync {
		if err := reconcile.OrphanSweep(ctx, d); err != nil {
			return err
		}
	}

	for _, key := range []string{settingLastSyncListingTypes, settingLastSyncActivityTemplates, settingLastSyncNotes} {
		if err := setSettingTime(ctx, d.Store, key, runStart); err != nil {
			return err
		}
	}
	return nil
}

// runSyncUp executes the syncUp pass list in FK order and reports whether
// any row ended this run's push in the failed state — the orchestrator's
// proxy for "this syncUp attempt failed" that drives the circuit breaker,
// since entitysync's per-row fallback already isolates individual row
// failures without surfacing them as a Go error.
func (e *Engine) runSyncUp(ctx context.Context, runStart time.Time) (pushFailed bool, err error) {
	d := e.deps

	if err := e.reconcileLegacyLocalUsers(ctx); err != nil {
		return false, err
	}

	if err := e.runAutoRecovery(ctx); err != nil {
		return false, err
	}

	if e.principal != nil && e.principal.IsAdmin() {
		if err := entitysync.SyncUp(ctx, d, entitysync.ListingTypeDefsSpec); err != nil {
			return false, err
		}
		if err := entitysync.SyncUp(ctx, d, entitysync.ActivityTemplatesSpec); err != nil {
			return false, err
		}
	}

	capturedTasks, err := capturePendingIDs(ctx, d.Store, entitykind.Tasks)
	if err != nil {
		return false, err
	}
	capturedActivities, err := capturePendingIDs(ctx, d.Store, entitykind.Activities)
	if err != nil {
		return false, err
	}

	if err := entitysync.SyncUpUsers(ctx, d, e.objects); err != nil {
		return false, err
	}
	if err := entitysync.SyncUp(ctx, d, entitysync.PropertiesSpec); err != nil {
		return false, err
	}
	if err := entitysync.SyncUp(ctx, d, entitysync.ListingsSpec); err != nil {
		return false, err
	}
	if err := entitysync.SyncUp(ctx, d, entitysync.TasksSpec); err != nil {
		return false, err
	}
	if err := entitysync.SyncUp(ctx, d, entitysync.ActivitiesSpec); err != nil {
		return false, err
	}
	// See internal/entitysync/assignees.go for why this pushes every dirty
	// assignee row unconditionally rather than filtering by the captured
	// parent-id sets above.
	if err := entitysync.SyncUpTaskAssignees(ctx, d); err != nil {
		return false, err
	}
	if err := entitysync.SyncUpActivityAssignees(ctx, d); err != nil {
		return false, err
	}
	if err := entitysync.SyncUpNotes(ctx, d); err != nil {
		return false, err
	}

	if err := e.finalize(ctx, runStart, capturedTasks, capturedActivities); err != nil {
		return false, err
	}

	failed, err := e.anyRowsFailed(ctx)
	if err != nil {
		return false, err
	}
	return failed, nil
}

// capturePendingIDs snapshots the ids currently pending for kind, before
// that kind's own syncUp push flips them to synced. An assignee upsert
// can re-dirty its parent afterwards; the finalize pass needs the
// original intent to tell that drift from a real user edit.
func capturePendingIDs(ctx context.Context, store ports.LocalStore, kind entitykind.Kind) ([]string, error) {
	dirty, err := store.FetchDirty(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("capture pending %s: %w", kind, err)
	}
	var ids []string
	for _, r := range dirty {
		state, _ := r.Fields[ports.MetaSyncState].(string)
		if state != string(models.SyncPending) {
			continue
		}
		if id, _ := r.Fields["id"].(string); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// finalize re-asserts synced on any captured task/activity id whose dirty
// bit was flipped back to pending by an assignee mutation but is not
// failed; listings use a time-window heuristic instead of a captured set
// (see finalizeListings).
func (e *Engine) finalize(ctx context.Context, runStart time.Time, capturedTasks, capturedActivities []string) error {
	now := e.clock.Now()
	if err := reassertSynced(ctx, e.deps, entitykind.Tasks, capturedTasks, now); err != nil {
		return err
	}
	if err := reassertSynced(ctx, e.deps, entitykind.Activities, capturedActivities, now); err != nil {
		return err
	}
	return e.finalizeListings(ctx, runStart)
}

func reassertSynced(ctx context.Context, deps *entitysync.Deps, kind entitykind.Kind, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		row, ok, err := deps.Store.FetchByID(ctx, kind, id)
		if err != nil {
			return fmt.Errorf("finalize %s: fetch %s: %w", kind, id, err)
		}
		if !ok {
			continue
		}
		state, _ := row.Fields[ports.MetaSyncState].(string)
		if state != string(models.SyncPending) {
			continue // not flipped pending by a relationship mutation, or already failed
		}
		fields := copyFields(row.Fields)
		fields[ports.MetaSyncState] = string(models.SyncSynced)
		fields[ports.MetaSyncedAt] = now.UTC().Format(time.RFC3339Nano)
		if err := deps.Store.Upsert(ctx, kind, ports.Row{Kind: kind, Fields: fields}); err != nil {
			return fmt.Errorf("finalize %s: reassert %s: %w", kind, id, err)
		}
	}
	return nil
}

// finalizeListings re-asserts synced only when the pending drift happened
// within 30s of this run's start — distinguishing relationship-induced
// drift from a genuine concurrent user edit to the listing.
func (e *Engine) finalizeListings(ctx context.Context, runStart time.Time) error {
	d := e.deps
	dirty, err := d.Store.FetchDirty(ctx, entitykind.Listings)
	if err != nil {
		return fmt.Errorf("finalize listings: fetch dirty: %w", err)
	}
	now := e.clock.Now()
	for _, row := range dirty {
		state, _ := row.Fields[ports.MetaSyncState].(string)
		if state != string(models.SyncPending) {
			continue
		}
		updatedAt := rowTime(row.Fields, "updatedAt")
		if updatedAt.IsZero() || runStart.Sub(updatedAt) > 30*time.Second {
			continue
		}
		id, _ := row.Fields["id"].(string)
		fields := copyFields(row.Fields)
		fields[ports.MetaSyncState] = string(models.SyncSynced)
		fields[ports.MetaSyncedAt] = now.UTC().Format(time.RFC3339Nano)
		if err := d.Store.Upsert(ctx, entitykind.Listings, ports.Row{Kind: entitykind.Listings, Fields: fields}); err != nil {
			return fmt.Errorf("finalize listings: reassert %s: %w", id, err)
		}
	}
	return nil
}

// anyRowsFailed scans every kind pushed this run, except the admin-only
// listing type definitions and activity templates, for a row left in the
// failed state, used as the circuit breaker's failure signal (see
// runSyncUp's doc comment).
func (e *Engine) anyRowsFailed(ctx context.Context) (bool, error) {
	kinds := []entitykind.Kind{
		entitykind.Users, entitykind.Properties, entitykind.Listings,
		entitykind.Tasks, entitykind.Activities,
		entitykind.TaskAssignees, entitykind.ActivityAssignees, entitykind.Notes,
	}
	for _, k := range kinds {
		dirty, err := e.deps.Store.FetchDirty(ctx, k)
		if err != nil {
			return false, fmt.Errorf("check failed rows %s: %w", k, err)
		}
		for _, row := range dirty {
			if state, _ := row.Fields[ports.MetaSyncState].(string); state == string(models.SyncFailed) {
				return true, nil
			}
		}
	}
	return false, nil
}

// reconcileLegacyLocalUsers is a one-time, idempotent local migration:
// it backfills a missing Role on pre-existing local user rows to
// RoleOther. A purely local display default, not a remote mutation, so
// it never dirties the row or triggers a push; the real role always
// comes from the server on the next syncDown.
func (e *Engine) reconcileLegacyLocalUsers(ctx context.Context) error {
	e.mu.Lock()
	done := e.legacyUsersDone
	e.mu.Unlock()
	if done {
		return nil
	}

	migrated, found, err := e.deps.Store.GetSetting(ctx, settingLegacyUsersMigrated)
	if err != nil {
		return fmt.Errorf("reconcileLegacyLocalUsers: read flag: %w", err)
	}
	if found && migrated == "true" {
		e.mu.Lock()
		e.legacyUsersDone = true
		e.mu.Unlock()
		return nil
	}

	ids, err := e.deps.Store.FetchAllIDs(ctx, entitykind.Users)
	if err != nil {
		return fmt.Errorf("reconcileLegacyLocalUsers: fetch ids: %w", err)
	}
	for _, id := range ids {
		row, ok, err := e.deps.Store.FetchByID(ctx, entitykind.Users, id)
		if err != nil {
			return fmt.Errorf("reconcileLegacyLocalUsers: fetch %s: %w", id, err)
		}
		if !ok {
			continue
		}
		if role, _ := row.Fields["role"].(string); role != "" {
			continue
		}
		fields := copyFields(row.Fields)
		fields["role"] = string(models.RoleOther)
		if err := e.deps.Store.Upsert(ctx, entitykind.Users, ports.Row{Kind: entitykind.Users, Fields: fields}); err != nil {
			return fmt.Errorf("reconcileLegacyLocalUsers: backfill %s: %w", id, err)
		}
	}

	e.mu.Lock()
	e.legacyUsersDone = true
	e.mu.Unlock()
	if err := e.deps.Store.SetSetting(ctx, settingLegacyUsersMigrated, "true"); err != nil {
		return fmt.Errorf("reconcileLegacyLocalUsers: persist flag: %w", err)
	}
	return nil
}

// autoRecoveryKinds lists the entity kinds whose rows can independently
// land in the failed state via a syncUp push and are therefore eligible
// for the auto-recovery sweep.
var autoRecoveryKinds = []entitykind.Kind{
	entitykind.Users, entitykind.Properties, entitykind.Listings,
	entitykind.Tasks, entitykind.Activities,
	entitykind.TaskAssignees, entitykind.ActivityAssignees, entitykind.Notes,
	entitykind.ListingTypeDefinitions, entitykind.ActivityTemplates,
}

// runAutoRecovery is the auto-recovery pass: rows stuck at
// state=failed with retryCount at the cap are reset to pending once the
// auto-recovery cooldown has elapsed since the last reset attempt. It
// runs once per sync() before any push, so a recovered row is picked up
// by this same pass's syncUp calls.
func (e *Engine) runAutoRecovery(ctx context.Context) error {
	now := e.clock.Now()
	for _, kind := range autoRecoveryKinds {
		if _, err := entitysync.AutoRecover(ctx, e.deps, kind, now); err != nil {
			return err
		}
	}
	return nil
}

func copyFields(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func rowTime(fields map[string]any, key string) time.Time {
	v, ok := fields[key]
	if !ok || v == nil {
		return time.Time{}
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if t == "" {
			return time.Time{}
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
