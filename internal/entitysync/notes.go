package entitysync

import (
	"context"
	"fmt"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/models"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/usererror"
)

var NotesSpec = Spec{Kind: entitykind.Notes}

// noteUpdateColumns is the column-restricted update DTO: the server only
// grants UPDATE on these columns, everything else is immutable once
// inserted. The list should be re-derived from the live server schema if
// the grants ever change.
var noteUpdateColumns = []string{"content", "editedAt", "editedBy", "updatedAt", "deletedAt", "deletedBy"}

// SyncDownNotes dispatches every delta row through UpsertNote instead of
// the plain generic Upsert, so the hasRemoteChangeWhilePending flag
// gets set even on rows the local-authoritative check suppresses.
func SyncDownNotes(ctx context.Context, deps *Deps, since time.Time) error {
	rows, err := deps.Remote.SelectSince(ctx, NotesSpec.Kind, since)
	if err != nil {
		return fmt.Errorf("syncDown notes: select since: %w", err)
	}
	for _, row := range rows {
		if err := UpsertNote(ctx, deps, row); err != nil {
			return fmt.Errorf("syncDown notes: %w", err)
		}
	}
	return nil
}

// UpsertNote is notes' entry point for both syncDown and realtime
// ingress. If the local row is currently pending, a remote change is
// flagged via hasRemoteChangeWhilePending before the local-authoritative
// check runs, to surface "someone else edited this while you were
// offline" to the UI. The flag stays on the row only when the local row
// wins; when the remote overwrite wins, Upsert replaces the row with the
// remote fields and the flag is not kept.
func UpsertNote(ctx context.Context, deps *Deps, remote ports.Row) error {
	id := getString(remote.Fields, "id")
	if id == "" {
		deps.Log.Warn("entitysync: remote note missing id, skipping")
		return nil
	}

	local, ok, err := deps.Store.FetchByID(ctx, NotesSpec.Kind, id)
	if err != nil {
		return fmt.Errorf("fetch local note %s: %w", id, err)
	}
	if ok {
		meta := decodeMeta(local.Fields)
		if meta.syncState == models.SyncPending {
			flagged := cloneScalars(local.Fields)
			flagged["hasRemoteChangeWhilePending"] = true
			if err := deps.Store.Upsert(ctx, NotesSpec.Kind, ports.Row{Kind: NotesSpec.Kind, Fields: flagged}); err != nil {
				return fmt.Errorf("flag note %s: %w", id, err)
			}
		}
	}

	return Upsert(ctx, deps, NotesSpec, remote)
}

// DeleteNote is notes' unconditional hard delete: unlike other
// entities, notes have no soft-delete-then-reconcile path at this call
// site.
func DeleteNote(ctx context.Context, deps *Deps, id string) error {
	return deps.Store.Delete(ctx, NotesSpec.Kind, id)
}

// SyncUpNotes pushes dirty notes INSERT-first, falling back to a
// column-restricted UPDATE on conflict, clearing
// hasRemoteChangeWhilePending on success.
func SyncUpNotes(ctx context.Context, deps *Deps) error {
	dirty, err := deps.Store.FetchDirty(ctx, NotesSpec.Kind)
	if err != nil {
		return fmt.Errorf("syncUp notes: fetch dirty: %w", err)
	}
	if len(dirty) == 0 {
		return nil
	}

	ids := make([]string, 0, len(dirty))
	for _, r := range dirty {
		if id := getString(r.Fields, "id"); id != "" {
			ids = append(ids, id)
		}
	}
	deps.Resolver.Mark(NotesSpec.Kind, ids)
	defer deps.Resolver.Clear(NotesSpec.Kind)

	now := deps.now()
	for _, r := range dirty {
		id := getString(r.Fields, "id")
		fields := cloneScalars(r.Fields)
		pushRow := ports.Row{Kind: NotesSpec.Kind, Fields: stripMeta(fields)}

		if err := deps.Remote.Insert(ctx, NotesSpec.Kind, []ports.Row{pushRow}); err != nil {
			update := make(map[string]any, len(noteUpdateColumns))
			for _, col := range noteUpdateColumns {
				if v, ok := fields[col]; ok {
					update[col] = v
				}
			}
			if err := deps.Remote.UpdateByID(ctx, NotesSpec.Kind, id, update); err != nil {
				msg := usererror.Classify(err, string(NotesSpec.Kind))
				setMetaFailed(fields, msg)
				if serr := deps.Store.Upsert(ctx, NotesSpec.Kind, ports.Row{Kind: NotesSpec.Kind, Fields: fields}); serr != nil {
					return fmt.Errorf("syncUp notes: mark failed: %w", serr)
				}
				deps.Log.Warn("syncUp notes: push failed", "id", id, "err", err)
				continue
			}
		}

		fields["hasRemoteChangeWhilePending"] = false
		setMetaSynced(fields, getTime(fields, "updatedAt"), now)
		if err := deps.Store.Upsert(ctx, NotesSpec.Kind, ports.Row{Kind: NotesSpec.Kind, Fields: fields}); err != nil {
			return fmt.Errorf("syncUp notes: mark synced: %w", err)
		}
	}
	return nil
}
