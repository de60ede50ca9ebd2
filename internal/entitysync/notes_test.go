package entitysync_test

import (
	"context"
	"testing"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	. "github.com/brightfield-crm/syncengine/internal/entitysync"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/synctest"
)

func TestSyncUpNotesInsertsNewNote(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	deps := newDeps(synctest.NewClock(start), store, remote)

	store.PutPending(entitykind.Notes, map[string]any{
		"id": "n1", "content": "call back tomorrow", "parentType": "task", "parentId": "t1",
	}, start)

	if err := SyncUpNotes(context.Background(), deps); err != nil {
		t.Fatalf("SyncUpNotes: %v", err)
	}
	if _, ok := remote.Get(entitykind.Notes, "n1"); !ok {
		t.Fatal("expected note inserted remotely")
	}
	if got := store.SyncState(entitykind.Notes, "n1"); got != "synced" {
		t.Errorf("sync state = %q, want synced", got)
	}
}

func TestSyncUpNotesFallsBackToColumnRestrictedUpdate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	deps := newDeps(synctest.NewClock(start.Add(time.Hour)), store, remote)

	// The note already exists server-side, so the INSERT conflicts and the
	// push must fall back to the partial UPDATE.
	remote.Seed(entitykind.Notes, ports.Row{Kind: entitykind.Notes, Fields: map[string]any{
		"id": "n1", "content": "original", "parentType": "task", "parentId": "t1",
		"createdBy": "someone-else",
		"updatedAt": start.Format(time.RFC3339Nano),
	}})
	store.PutPending(entitykind.Notes, map[string]any{
		"id": "n1", "content": "edited offline", "parentType": "task", "parentId": "t1",
		"editedBy":                    "me",
		"hasRemoteChangeWhilePending": true,
	}, start.Add(30*time.Minute))

	if err := SyncUpNotes(context.Background(), deps); err != nil {
		t.Fatalf("SyncUpNotes: %v", err)
	}

	remoteRow, _ := remote.Get(entitykind.Notes, "n1")
	if remoteRow.Fields["content"] != "edited offline" {
		t.Errorf("remote content = %v, want the offline edit applied via update", remoteRow.Fields["content"])
	}
	// Columns outside the update DTO must survive untouched.
	if remoteRow.Fields["createdBy"] != "someone-else" {
		t.Errorf("createdBy = %v, want immutable column preserved", remoteRow.Fields["createdBy"])
	}

	local, _, _ := store.FetchByID(context.Background(), entitykind.Notes, "n1")
	if local.Fields["hasRemoteChangeWhilePending"] != false {
		t.Error("expected hasRemoteChangeWhilePending cleared on successful push")
	}
	if got := store.SyncState(entitykind.Notes, "n1"); got != "synced" {
		t.Errorf("sync state = %q, want synced", got)
	}
}

func TestUpsertNoteFlagsRemoteChangeWhilePending(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	deps := newDeps(synctest.NewClock(start.Add(2*time.Hour)), store, remote)

	// Local pending edit is newer than the incoming remote change, so the
	// scalars stay local, but the flag must still record that someone else
	// touched the note meanwhile.
	store.PutPending(entitykind.Notes, map[string]any{"id": "n1", "content": "mine"}, start.Add(time.Hour))

	incoming := ports.Row{Kind: entitykind.Notes, Fields: map[string]any{
		"id": "n1", "content": "theirs", "updatedAt": start.Format(time.RFC3339Nano),
	}}
	if err := UpsertNote(context.Background(), deps, incoming); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	local, _, _ := store.FetchByID(context.Background(), entitykind.Notes, "n1")
	if local.Fields["content"] != "mine" {
		t.Errorf("content = %v, want pending local edit preserved", local.Fields["content"])
	}
	if local.Fields["hasRemoteChangeWhilePending"] != true {
		t.Error("expected hasRemoteChangeWhilePending set on a suppressed remote change")
	}
}
