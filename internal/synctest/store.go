package synctest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/models"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

// Store is an in-memory fake ports.LocalStore. Unlike internal/localstore
// it holds no SQLite handle and commits synchronously, but it honors the
// same batching contract: writes made during a run are visible to FetchByID
// immediately (matching the real store's within-transaction read-your-
// writes), and Save is a no-op counted for assertions only.
type Store struct {
	mu        sync.Mutex
	rows      map[entitykind.Kind]map[string]ports.Row
	settings  map[string]string
	conflicts []ports.ConflictRecord
	SaveCalls int
}

// NewStore returns an empty fake local store.
func NewStore() *Store {
	return &Store{
		rows:     make(map[entitykind.Kind]map[string]ports.Row),
		settings: make(map[string]string),
	}
}

func (s *Store) table(kind entitykind.Kind) map[string]ports.Row {
	t, ok := s.rows[kind]
	if !ok {
		t = make(map[string]ports.Row)
		s.rows[kind] = t
	}
	return t
}

// Seed installs a row directly, bypassing any sync-state stamping. Tests
// use this for initial fixtures (e.g. a pre-existing synced row) and
// PutPending (below) for simulating an offline local edit.
func (s *Store) Seed(kind entitykind.Kind, row ports.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(kind)[idOf(row.Fields)] = cloneRow(row)
}

// PutPending installs/overwrites a row stamped as a dirty local mutation:
// sync_state=pending, retryCount=0, updatedAt=at.
// This is the harness's equivalent of "the UI just saved a local edit."
func (s *Store) PutPending(kind entitykind.Kind, fields map[string]any, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		f[k] = v
	}
	f["updatedAt"] = at.UTC().Format(time.RFC3339Nano)
	f[ports.MetaSyncState] = string(models.SyncPending)
	f[ports.MetaRetryCount] = 0
	s.table(kind)[idOf(f)] = ports.Row{Kind: kind, Fields: f}
}

// Get returns the local row for kind/id, for assertions.
func (s *Store) Get(kind entitykind.Kind, id string) (ports.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.table(kind)[id]
	return row, ok
}

// SyncState returns the row's reserved sync-state meta field, "" if absent.
func (s *Store) SyncState(kind entitykind.Kind, id string) string {
	row, ok := s.Get(kind, id)
	if !ok {
		return ""
	}
	state, _ := row.Fields[ports.MetaSyncState].(string)
	return state
}

func (s *Store) FetchByID(ctx context.Context, kind entitykind.Kind, id string) (ports.Row, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.table(kind)[id]
	if !ok {
		return ports.Row{}, false, nil
	}
	return cloneRow(row), true, nil
}

func (s *Store) FetchDirty(ctx context.Context, kind entitykind.Kind) ([]ports.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.Row
	for _, row := range s.table(kind) {
		state, _ := row.Fields[ports.MetaSyncState].(string)
		if state == string(models.SyncPending) || state == string(models.SyncFailed) {
			out = append(out, cloneRow(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return idOf(out[i].Fields) < idOf(out[j].Fields) })
	return out, nil
}

func (s *Store) FetchAllIDs(ctx context.Context, kind entitykind.Kind) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.table(kind)))
	for id := range s.table(kind) {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Upsert(ctx context.Context, kind entitykind.Kind, row ports.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(kind)[idOf(row.Fields)] = cloneRow(row)
	return nil
}

func (s *Store) Delete(ctx context.Context, kind entitykind.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.table(kind), id)
	return nil
}

func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls++
	return nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *Store) RecordConflict(ctx context.Context, kind entitykind.Kind, id string, local, remote ports.Row, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = append(s.conflicts, ports.ConflictRecord{Kind: kind, ID: id, Local: cloneRow(local), Remote: cloneRow(remote), At: at})
	return nil
}

func (s *Store) RecentConflicts(ctx context.Context, limit int) ([]ports.ConflictRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.conflicts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ports.ConflictRecord, n)
	copy(out, s.conflicts[len(s.conflicts)-n:])
	return out, nil
}
