package localstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/models"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func pendingRow(id, name string, at time.Time) ports.Row {
	return ports.Row{Kind: entitykind.Properties, Fields: map[string]any{
		"id":                 id,
		"name":               name,
		"updatedAt":          at.UTC().Format(time.RFC3339Nano),
		ports.MetaSyncState:  string(models.SyncPending),
		ports.MetaRetryCount: 0,
	}}
}

func TestSaveCommitsBatchedWrites(t *testing.T) {
	s, dir := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Upsert(ctx, entitykind.Properties, pendingRow("p1", "Lakeview", at)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Verify the committed state through an independent connection on the
	// second driver, so the check can't be satisfied by this process's
	// write buffer or connection-local caching.
	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile))
	if err != nil {
		t.Fatalf("open cross-driver connection: %v", err)
	}
	defer db.Close()

	var name, state string
	err = db.QueryRow(
		`SELECT json_extract(fields, '$.name'), sync_state FROM rows WHERE kind = ? AND id = ?`,
		string(entitykind.Properties), "p1",
	).Scan(&name, &state)
	if err != nil {
		t.Fatalf("cross-driver read: %v", err)
	}
	if name != "Lakeview" || state != "pending" {
		t.Errorf("committed row = (%q, %q), want (Lakeview, pending)", name, state)
	}
}

func TestReadsSeeBufferedWrites(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Upsert(ctx, entitykind.Properties, pendingRow("p1", "Unsaved", at)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	row, ok, err := s.FetchByID(ctx, entitykind.Properties, "p1")
	if err != nil || !ok {
		t.Fatalf("FetchByID before Save: ok=%v err=%v", ok, err)
	}
	if row.Fields["name"] != "Unsaved" {
		t.Errorf("name = %v, want buffered write visible", row.Fields["name"])
	}

	dirty, err := s.FetchDirty(ctx, entitykind.Properties)
	if err != nil {
		t.Fatalf("FetchDirty: %v", err)
	}
	if len(dirty) != 1 {
		t.Fatalf("FetchDirty returned %d rows, want the buffered pending row", len(dirty))
	}

	ids, err := s.FetchAllIDs(ctx, entitykind.Properties)
	if err != nil || len(ids) != 1 || ids[0] != "p1" {
		t.Fatalf("FetchAllIDs = %v (err %v), want [p1]", ids, err)
	}

	if err := s.Delete(ctx, entitykind.Properties, "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.FetchByID(ctx, entitykind.Properties, "p1"); ok {
		t.Error("FetchByID should not see a row shadowed by a buffered delete")
	}
	if ids, _ := s.FetchAllIDs(ctx, entitykind.Properties); len(ids) != 0 {
		t.Errorf("FetchAllIDs = %v after buffered delete, want empty", ids)
	}
}

func TestLatestBufferedWriteWins(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Upsert(ctx, entitykind.Properties, pendingRow("p1", "First", at))
	s.Upsert(ctx, entitykind.Properties, pendingRow("p1", "Second", at.Add(time.Minute)))

	row, _, _ := s.FetchByID(ctx, entitykind.Properties, "p1")
	if row.Fields["name"] != "Second" {
		t.Errorf("name = %v, want the later buffered write", row.Fields["name"])
	}
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	row, _, _ = s.FetchByID(ctx, entitykind.Properties, "p1")
	if row.Fields["name"] != "Second" {
		t.Errorf("name after Save = %v, want Second", row.Fields["name"])
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetSetting(ctx, "lastSyncTime"); err != nil || ok {
		t.Fatalf("GetSetting on empty store: ok=%v err=%v", ok, err)
	}
	if err := s.SetSetting(ctx, "lastSyncTime", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "lastSyncTime", "2026-02-01T00:00:00Z"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	v, ok, err := s.GetSetting(ctx, "lastSyncTime")
	if err != nil || !ok || v != "2026-02-01T00:00:00Z" {
		t.Errorf("GetSetting = (%q, %v, %v), want the overwritten value", v, ok, err)
	}
}

func TestConflictHistoryRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	local := pendingRow("p1", "Local", at)
	remote := pendingRow("p1", "Remote", at)
	if err := s.RecordConflict(ctx, entitykind.Properties, "p1", local, remote, at); err != nil {
		t.Fatalf("RecordConflict: %v", err)
	}

	recs, err := s.RecentConflicts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentConflicts: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "p1" || recs[0].Local.Fields["name"] != "Local" {
		t.Errorf("RecentConflicts = %+v, want the recorded suppression", recs)
	}
}

func TestWriteLockExcludesSecondHolder(t *testing.T) {
	dir := t.TempDir()
	first := newWriteLocker(dir)
	if err := first.acquire(defaultTimeout); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer first.release()

	second := newWriteLocker(dir)
	if err := second.acquire(20 * time.Millisecond); err == nil {
		second.release()
		t.Fatal("second acquire succeeded while the lock was held")
	}
}
