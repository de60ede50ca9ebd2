package synctest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

// Remote is an in-memory fake ports.RemoteTable. It stores one map per
// entity kind and enforces the same insert-only/partial-update contract
// notes relies on, so tests exercise the real handler code paths
// rather than a stub that always succeeds.
type Remote struct {
	mu    sync.Mutex
	rows  map[entitykind.Kind]map[string]ports.Row
	// FailUpsert, when set, names a kind whose Upsert, Insert and UpdateByID
	// calls all fail while the entry stays set, returning UpsertErr (or a
	// generic injected error when UpsertErr is nil).
	FailUpsert map[entitykind.Kind]bool
	UpsertErr  error
}

// NewRemote returns an empty fake remote with no rows in any kind.
func NewRemote() *Remote {
	return &Remote{
		rows:       make(map[entitykind.Kind]map[string]ports.Row),
		FailUpsert: make(map[entitykind.Kind]bool),
	}
}

func (r *Remote) table(kind entitykind.Kind) map[string]ports.Row {
	t, ok := r.rows[kind]
	if !ok {
		t = make(map[string]ports.Row)
		r.rows[kind] = t
	}
	return t
}

// Seed directly installs a row as if it already existed on the server,
// bypassing Upsert's failure injection. Used to set up pre-existing remote
// state before a test's first sync.
func (r *Remote) Seed(kind entitykind.Kind, row ports.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields := make(map[string]any, len(row.Fields))
	for k, v := range row.Fields {
		fields[k] = v
	}
	r.table(kind)[idOf(fields)] = ports.Row{Kind: kind, Fields: fields}
}

// Get returns the server-side row for kind/id, for assertions.
func (r *Remote) Get(kind entitykind.Kind, id string) (ports.Row, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.table(kind)[id]
	return row, ok
}

func idOf(fields map[string]any) string {
	id, _ := fields["id"].(string)
	return id
}

// rowUpdatedAt accepts both a time.Time (convenient for test setup) and the
// RFC3339Nano string the real entitysync handlers store fields as, so the
// fake behaves like the real RemoteTable regardless of how a test seeds it.
func rowUpdatedAt(fields map[string]any) time.Time {
	switch v := fields["updatedAt"].(type) {
	case time.Time:
		return v
	case string:
		if v == "" {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (r *Remote) SelectSince(ctx context.Context, kind entitykind.Kind, since time.Time) ([]ports.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ports.Row
	for _, row := range r.table(kind) {
		if rowUpdatedAt(row.Fields).After(since) {
			out = append(out, cloneRow(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return rowUpdatedAt(out[i].Fields).Before(rowUpdatedAt(out[j].Fields)) })
	return out, nil
}

func (r *Remote) SelectIDs(ctx context.Context, kind entitykind.Kind) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.table(kind)))
	for id := range r.table(kind) {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Remote) SelectByIDs(ctx context.Context, kind entitykind.Kind, ids []string) ([]ports.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table := r.table(kind)
	out := make([]ports.Row, 0, len(ids))
	for _, id := range ids {
		if row, ok := table[id]; ok {
			out = append(out, cloneRow(row))
		}
	}
	return out, nil
}

func (r *Remote) Upsert(ctx context.Context, kind entitykind.Kind, rows []ports.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpsert[kind] {
		if r.UpsertErr != nil {
			return r.UpsertErr
		}
		return fmt.Errorf("synctest: injected upsert failure for %s", kind)
	}
	table := r.table(kind)
	for _, row := range rows {
		id := idOf(row.Fields)
		if id == "" {
			return fmt.Errorf("synctest: upsert %s row missing id", kind)
		}
		table[id] = cloneRow(row)
	}
	return nil
}

func (r *Remote) Insert(ctx context.Context, kind entitykind.Kind, rows []ports.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpsert[kind] {
		if r.UpsertErr != nil {
			return r.UpsertErr
		}
		return fmt.Errorf("synctest: injected insert failure for %s", kind)
	}
	table := r.table(kind)
	for _, row := range rows {
		id := idOf(row.Fields)
		if id == "" {
			return fmt.Errorf("synctest: insert %s row missing id", kind)
		}
		if _, exists := table[id]; exists {
			return fmt.Errorf("synctest: insert %s/%s: already exists", kind, id)
		}
		table[id] = cloneRow(row)
	}
	return nil
}

func (r *Remote) UpdateByID(ctx context.Context, kind entitykind.Kind, id string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpsert[kind] {
		if r.UpsertErr != nil {
			return r.UpsertErr
		}
		return fmt.Errorf("synctest: injected update failure for %s", kind)
	}
	table := r.table(kind)
	row, ok := table[id]
	if !ok {
		return fmt.Errorf("synctest: update %s/%s: not found", kind, id)
	}
	merged := make(map[string]any, len(row.Fields)+len(fields))
	for k, v := range row.Fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	table[id] = ports.Row{Kind: kind, Fields: merged}
	return nil
}

func cloneRow(row ports.Row) ports.Row {
	fields := make(map[string]any, len(row.Fields))
	for k, v := range row.Fields {
		fields[k] = v
	}
	return ports.Row{Kind: row.Kind, Fields: fields}
}
