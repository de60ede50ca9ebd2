package entitysync

import (
	"context"
	"fmt"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/models"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

// Join rows carry no server-issued id of their own, only (parent id,
// user id, assigner id, assignedAt); the engine addresses them locally by a
// synthetic composite key so the conflict resolver and local store can
// index them like any other entity. If the remote payload does carry its
// own "id" column, that's honored instead — the synthetic key is only a
// fallback, never assumed to match a server-side primary key.

var TaskAssigneesSpec = Spec{Kind: entitykind.TaskAssignees}
var ActivityAssigneesSpec = Spec{Kind: entitykind.ActivityAssignees}

func ensureAssigneeID(fields map[string]any, parentField string, compose func(parentID, userID string) string) {
	if id, _ := fields["id"].(string); id != "" {
		return
	}
	fields["id"] = compose(getString(fields, parentField), getString(fields, "userId"))
}

// SyncDownTaskAssignees mirrors the generic SyncDown but first stamps a
// synthetic id onto rows lacking one.
func SyncDownTaskAssignees(ctx context.Context, deps *Deps, since time.Time) error {
	rows, err := deps.Remote.SelectSince(ctx, TaskAssigneesSpec.Kind, since)
	if err != nil {
		return fmt.Errorf("syncDown taskAssignees: select since: %w", err)
	}
	for _, row := range rows {
		ensureAssigneeID(row.Fields, "taskId", models.TaskAssigneeID)
		if err := Upsert(ctx, deps, TaskAssigneesSpec, row); err != nil {
			return fmt.Errorf("syncDown taskAssignees: %w", err)
		}
	}
	return nil
}

func SyncDownActivityAssignees(ctx context.Context, deps *Deps, since time.Time) error {
	rows, err := deps.Remote.SelectSince(ctx, ActivityAssigneesSpec.Kind, since)
	if err != nil {
		return fmt.Errorf("syncDown activityAssignees: select since: %w", err)
	}
	for _, row := range rows {
		ensureAssigneeID(row.Fields, "activityId", models.ActivityAssigneeID)
		if err := Upsert(ctx, deps, ActivityAssigneesSpec, row); err != nil {
			return fmt.Errorf("syncDown activityAssignees: %w", err)
		}
	}
	return nil
}

// SyncUpTaskAssignees and SyncUpActivityAssignees push every dirty join
// row unconditionally via the shared batch-then-per-row path. Writes use
// UPSERT, never DELETE+INSERT, so an unsynced join row is never silently
// dropped by a parent mutation.
// The orchestrator captures pending parent ids separately for its own
// finalize-pass bookkeeping; that capture does not gate which
// assignee rows get pushed here, since assignees are independently
// sync-tracked regardless of their parent's current state.
func SyncUpTaskAssignees(ctx context.Context, deps *Deps) error {
	return syncUpAssignees(ctx, deps, TaskAssigneesSpec, "taskId", models.TaskAssigneeID)
}

func SyncUpActivityAssignees(ctx context.Context, deps *Deps) error {
	return syncUpAssignees(ctx, deps, ActivityAssigneesSpec, "activityId", models.ActivityAssigneeID)
}

// UpsertTaskAssignee and UpsertActivityAssignee are realtime ingress's
// entry points: they stamp the synthetic id exactly like the
// syncDown path before handing off to the generic conflict-aware Upsert.
func UpsertTaskAssignee(ctx context.Context, deps *Deps, row ports.Row) error {
	ensureAssigneeID(row.Fields, "taskId", models.TaskAssigneeID)
	return Upsert(ctx, deps, TaskAssigneesSpec, row)
}

func UpsertActivityAssignee(ctx context.Context, deps *Deps, row ports.Row) error {
	ensureAssigneeID(row.Fields, "activityId", models.ActivityAssigneeID)
	return Upsert(ctx, deps, ActivityAssigneesSpec, row)
}

func syncUpAssignees(ctx context.Context, deps *Deps, spec Spec, parentField string, compose func(string, string) string) error {
	dirty, err := deps.Store.FetchDirty(ctx, spec.Kind)
	if err != nil {
		return fmt.Errorf("syncUp %s: fetch dirty: %w", spec.Kind, err)
	}
	for _, r := range dirty {
		ensureAssigneeID(r.Fields, parentField, compose)
	}
	return SyncUpRows(ctx, deps, spec, dirty)
}
