// Package entitysync implements the per-entity syncDown/syncUp handlers:
// one skeleton shared by every CRM entity kind, with small per-kind
// deviations (notes, users, activity templates) layered on top. Handlers
// act on ports.RemoteTable/ports.LocalStore's generic Row shape, so one
// implementation of each operation serves every kind.
package entitysync

import (
	"context"
	"fmt"
	"time"

	"github.com/brightfield-crm/syncengine/internal/conflict"
	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/models"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/usererror"
)

// Deps bundles every external collaborator an entity handler needs.
type Deps struct {
	Remote   ports.RemoteTable
	Store    ports.LocalStore
	Resolver *conflict.Resolver
	Clock    ports.Clock
	Log      ports.Logger
}

func (d *Deps) now() time.Time { return d.Clock.Now() }

// Spec describes the per-kind deviations the generic skeleton needs.
type Spec struct {
	Kind entitykind.Kind

	// ParentFK names a field on this kind's rows that holds a foreign key
	// to another entity kind, e.g. activity_templates.listingTypeId ->
	// listing_type_definitions. Empty if this kind has no FK of interest
	// to relationship reconciliation. Used to log deferred-FK warnings and,
	// for activity templates, to order SyncDownActivityTemplates' two
	// passes; the FK value itself always round-trips on the row regardless.
	ParentFK     string
	ParentFKKind entitykind.Kind
}

// linkParent logs a deferred-relationship warning when this row's FK
// points at a parent not yet present locally. The actual healing happens
// in internal/reconcile's post-syncDown pass; this is advisory
// only and never an error.
func (s Spec) linkParent(ctx context.Context, deps *Deps, fields map[string]any) {
	if s.ParentFK == "" {
		return
	}
	fk := getStringPtr(fields, s.ParentFK)
	if fk == nil {
		return
	}
	_, ok, err := deps.Store.FetchByID(ctx, s.ParentFKKind, *fk)
	if err != nil {
		deps.Log.Warn("entitysync: parent lookup failed", "kind", s.Kind, "parentKind", s.ParentFKKind, "parentID", *fk, "err", err)
		return
	}
	if !ok {
		deps.Log.Warn("entitysync: deferred relationship, parent not yet synced", "kind", s.Kind, "parentKind", s.ParentFKKind, "parentID", *fk)
	}
}

// SyncDown fetches rows updated since `since` and upserts each via the
// shared conflict-aware path.
func SyncDown(ctx context.Context, deps *Deps, spec Spec, since time.Time) error {
	rows, err := deps.Remote.SelectSince(ctx, spec.Kind, since)
	if err != nil {
		return fmt.Errorf("syncDown %s: select since: %w", spec.Kind, err)
	}
	for _, row := range rows {
		if err := Upsert(ctx, deps, spec, row); err != nil {
			return fmt.Errorf("syncDown %s: %w", spec.Kind, err)
		}
	}
	return nil
}

// Upsert applies one remote row under the local-authoritative policy.
// It is used both by SyncDown (watermarked) and
// by realtime ingress (unwatermarked, one row at a time).
func Upsert(ctx context.Context, deps *Deps, spec Spec, remote ports.Row) error {
	id, _ := remote.Fields["id"].(string)
	if id == "" {
		deps.Log.Warn("entitysync: remote row missing id, skipping", "kind", spec.Kind)
		return nil
	}
	remoteUpdatedAt := getTime(remote.Fields, "updatedAt")
	now := deps.now()

	local, ok, err := deps.Store.FetchByID(ctx, spec.Kind, id)
	if err != nil {
		return fmt.Errorf("fetch local %s/%s: %w", spec.Kind, id, err)
	}

	if !ok {
		fields := cloneScalars(remote.Fields)
		setMetaSynced(fields, remoteUpdatedAt, now)
		if err := deps.Store.Upsert(ctx, spec.Kind, ports.Row{Kind: spec.Kind, Fields: fields}); err != nil {
			return fmt.Errorf("insert %s/%s: %w", spec.Kind, id, err)
		}
		spec.linkParent(ctx, deps, fields)
		return nil
	}

	localMeta := decodeMeta(local.Fields)
	inFlight := deps.Resolver.IsInFlight(spec.Kind, id)
	if conflict.IsLocalAuthoritative(localMeta.syncState, localMeta.updatedAt, remoteUpdatedAt, inFlight) {
		deps.Log.Debug("entitysync: local authoritative, skipping remote write", "kind", spec.Kind, "id", id)
		if localMeta.syncState == "pending" && !inFlight {
			deps.Store.RecordConflict(ctx, spec.Kind, id, local, remote, now)
		}
		return nil
	}

	fields := cloneScalars(remote.Fields)
	setMetaSynced(fields, remoteUpdatedAt, now)
	if err := deps.Store.Upsert(ctx, spec.Kind, ports.Row{Kind: spec.Kind, Fields: fields}); err != nil {
		return fmt.Errorf("overwrite %s/%s: %w", spec.Kind, id, err)
	}
	spec.linkParent(ctx, deps, fields)
	return nil
}

// Delete removes a local row by id (realtime hard-delete only).
func Delete(ctx context.Context, deps *Deps, kind entitykind.Kind, id string) error {
	return deps.Store.Delete(ctx, kind, id)
}

// SyncUp pushes every pending/failed row for this kind: batch UPSERT
// first, falling back to per-row UPSERT to isolate the failing rows.
func SyncUp(ctx context.Context, deps *Deps, spec Spec) error {
	dirty, err := deps.Store.FetchDirty(ctx, spec.Kind)
	if err != nil {
		return fmt.Errorf("syncUp %s: fetch dirty: %w", spec.Kind, err)
	}
	return SyncUpRows(ctx, deps, spec, dirty)
}

// SyncUpRows pushes a caller-selected subset of dirty rows on behalf of
// the orchestrator's assignee passes.
func SyncUpRows(ctx context.Context, deps *Deps, spec Spec, dirty []ports.Row) error {
	if len(dirty) == 0 {
		return nil
	}

	ids := make([]string, 0, len(dirty))
	for _, r := range dirty {
		if id, _ := r.Fields["id"].(string); id != "" {
			ids = append(ids, id)
		}
	}
	deps.Resolver.Mark(spec.Kind, ids)
	defer deps.Resolver.Clear(spec.Kind)

	now := deps.now()
	pushRows := make([]ports.Row, len(dirty))
	for i, r := range dirty {
		pushRows[i] = ports.Row{Kind: spec.Kind, Fields: stripMeta(r.Fields)}
	}

	if err := deps.Remote.Upsert(ctx, spec.Kind, pushRows); err != nil {
		deps.Log.Warn("entitysync: batch upsert failed, falling back to per-row", "kind", spec.Kind, "err", err)
		return syncUpPerRow(ctx, deps, spec, dirty, now)
	}

	for _, r := range dirty {
		fields := cloneScalars(r.Fields)
		setMetaSynced(fields, getTime(fields, "updatedAt"), now)
		if err := deps.Store.Upsert(ctx, spec.Kind, ports.Row{Kind: spec.Kind, Fields: fields}); err != nil {
			return fmt.Errorf("syncUp %s: mark synced: %w", spec.Kind, err)
		}
	}
	return nil
}

func syncUpPerRow(ctx context.Context, deps *Deps, spec Spec, dirty []ports.Row, now time.Time) error {
	for _, r := range dirty {
		id, _ := r.Fields["id"].(string)
		row := ports.Row{Kind: spec.Kind, Fields: stripMeta(r.Fields)}
		if err := deps.Remote.Upsert(ctx, spec.Kind, []ports.Row{row}); err != nil {
			msg := usererror.Classify(err, string(spec.Kind))
			fields := cloneScalars(r.Fields)
			setMetaFailed(fields, msg)
			if serr := deps.Store.Upsert(ctx, spec.Kind, ports.Row{Kind: spec.Kind, Fields: fields}); serr != nil {
				return fmt.Errorf("syncUp %s: mark failed: %w", spec.Kind, serr)
			}
			deps.Log.Warn("entitysync: row push failed", "kind", spec.Kind, "id", id, "err", err)
			continue
		}
		fields := cloneScalars(r.Fields)
		setMetaSynced(fields, getTime(fields, "updatedAt"), now)
		if err := deps.Store.Upsert(ctx, spec.Kind, ports.Row{Kind: spec.Kind, Fields: fields}); err != nil {
			return fmt.Errorf("syncUp %s: mark synced: %w", spec.Kind, err)
		}
	}
	return nil
}

// ReconcileMissing is the failsafe pass against watermark drift:
// diff remote ids against local ids and upsert whatever's missing.
func ReconcileMissing(ctx context.Context, deps *Deps, spec Spec) error {
	remoteIDs, err := deps.Remote.SelectIDs(ctx, spec.Kind)
	if err != nil {
		return fmt.Errorf("reconcileMissing %s: select ids: %w", spec.Kind, err)
	}
	localIDs, err := deps.Store.FetchAllIDs(ctx, spec.Kind)
	if err != nil {
		return fmt.Errorf("reconcileMissing %s: local ids: %w", spec.Kind, err)
	}
	local := make(map[string]struct{}, len(localIDs))
	for _, id := range localIDs {
		local[id] = struct{}{}
	}

	var missing []string
	for _, id := range remoteIDs {
		if _, ok := local[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	rows, err := deps.Remote.SelectByIDs(ctx, spec.Kind, missing)
	if err != nil {
		return fmt.Errorf("reconcileMissing %s: select missing: %w", spec.Kind, err)
	}
	for _, row := range rows {
		if err := Upsert(ctx, deps, spec, row); err != nil {
			return fmt.Errorf("reconcileMissing %s: %w", spec.Kind, err)
		}
	}
	return nil
}

// OrphanSweep deletes local rows absent from the remote id set. Only
// called by internal/reconcile when lastSyncTime was nil at pass start.
func OrphanSweep(ctx context.Context, deps *Deps, kind entitykind.Kind) error {
	remoteIDs, err := deps.Remote.SelectIDs(ctx, kind)
	if err != nil {
		return fmt.Errorf("orphanSweep %s: select ids: %w", kind, err)
	}
	remote := make(map[string]struct{}, len(remoteIDs))
	for _, id := range remoteIDs {
		remote[id] = struct{}{}
	}

	localIDs, err := deps.Store.FetchAllIDs(ctx, kind)
	if err != nil {
		return fmt.Errorf("orphanSweep %s: local ids: %w", kind, err)
	}
	for _, id := range localIDs {
		if _, ok := remote[id]; ok {
			continue
		}
		// A dirty row absent from the remote set is usually a local create
		// that hasn't been pushed yet; it stays authoritative until the
		// push settles one way or the other.
		row, ok, err := deps.Store.FetchByID(ctx, kind, id)
		if err != nil {
			return fmt.Errorf("orphanSweep %s: fetch %s: %w", kind, id, err)
		}
		if ok && decodeMeta(row.Fields).syncState != models.SyncSynced {
			deps.Log.Debug("entitysync: orphan sweep skipping dirty row", "kind", kind, "id", id)
			continue
		}
		if err := deps.Store.Delete(ctx, kind, id); err != nil {
			return fmt.Errorf("orphanSweep %s: delete %s: %w", kind, id, err)
		}
	}
	return nil
}
