// Package localstore is the SQLite-backed implementation of
// ports.LocalStore: a single connection with WAL enabled, guarded by an
// OS file lock so concurrent CLI invocations never interleave writes,
// holding the CRM entity graph in one generic row table.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

const dbFile = "syncengine.db"

// Store wraps the local SQLite connection backing the engine's generic
// row table. The engine only ever sees it through ports.LocalStore.
type Store struct {
	conn    *sql.DB
	baseDir string

	// pending holds writes accumulated during the current sync run, committed
	// in one transaction by Save. Reads overlay this buffer on top of the
	// database so a pass always sees its own earlier writes: the finalize
	// sweep and the two-pass template upsert both depend on that.
	pending []write
	staged  map[stagedKey]int // (kind,id) -> index of latest write in pending
}

type stagedKey struct {
	kind entitykind.Kind
	id   string
}

type write struct {
	kind   entitykind.Kind
	id     string
	delete bool
	row    ports.Row
}

func openConn(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	return conn, nil
}

// Open opens (creating if needed) the local store at baseDir/syncengine.db
// and ensures the schema exists.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dbPath := filepath.Join(baseDir, dbFile)

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{conn: conn, baseDir: baseDir}, nil
}

// Close flushes the WAL and closes the connection.
func (s *Store) Close() error {
	s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.conn.Close()
}

func (s *Store) withWriteLock(fn func() error) error {
	locker := newWriteLocker(s.baseDir)
	if err := locker.acquire(defaultTimeout); err != nil {
		return err
	}
	defer locker.release()
	return fn()
}

// stagedWrite returns the latest buffered write for (kind, id), if any.
func (s *Store) stagedWrite(kind entitykind.Kind, id string) (write, bool) {
	if s.staged == nil {
		return write{}, false
	}
	i, ok := s.staged[stagedKey{kind: kind, id: id}]
	if !ok {
		return write{}, false
	}
	return s.pending[i], true
}

// FetchByID returns a single row, decoded from its JSON fields blob plus
// sync metadata columns folded back into the Row's Fields map under
// reserved keys (see codec.go). Buffered writes from the current run
// shadow committed database state.
func (s *Store) FetchByID(ctx context.Context, kind entitykind.Kind, id string) (ports.Row, bool, error) {
	if w, ok := s.stagedWrite(kind, id); ok {
		if w.delete {
			return ports.Row{}, false, nil
		}
		return cloneRow(w.row), true, nil
	}
	row := s.conn.QueryRowContext(ctx, `
		SELECT fields, sync_state, last_sync_error, retry_count, synced_at, updated_at, last_reset_attempt
		FROM rows WHERE kind = ? AND id = ?`, string(kind), id)
	return scanRow(row, kind)
}

// FetchDirty returns every row whose sync state is pending or failed,
// with buffered writes from the current run overlaid.
func (s *Store) FetchDirty(ctx context.Context, kind entitykind.Kind) ([]ports.Row, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT fields, sync_state, last_sync_error, retry_count, synced_at, updated_at, last_reset_attempt
		FROM rows WHERE kind = ? AND sync_state IN ('pending', 'failed')`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("fetch dirty %s: %w", kind, err)
	}
	defer rows.Close()
	committed, err := collectRows(rows, kind)
	if err != nil {
		return nil, err
	}

	out := committed[:0]
	for _, row := range committed {
		id, _ := row.Fields["id"].(string)
		if _, shadowed := s.stagedWrite(kind, id); shadowed {
			continue
		}
		out = append(out, row)
	}
	for key, i := range s.staged {
		if key.kind != kind || s.pending[i].delete {
			continue
		}
		w := s.pending[i]
		if state, _ := w.row.Fields[ports.MetaSyncState].(string); state == "pending" || state == "failed" {
			out = append(out, cloneRow(w.row))
		}
	}
	return out, nil
}

// FetchAllIDs returns every local id for kind, buffered writes included.
func (s *Store) FetchAllIDs(ctx context.Context, kind entitykind.Kind) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id FROM rows WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("fetch all ids %s: %w", kind, err)
	}
	defer rows.Close()
	seen := make(map[string]bool)
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for key, i := range s.staged {
		if key.kind != kind {
			continue
		}
		if s.pending[i].delete {
			if seen[key.id] {
				ids = removeID(ids, key.id)
			}
			continue
		}
		if !seen[key.id] {
			ids = append(ids, key.id)
		}
	}
	return ids, nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Upsert buffers an insert/overwrite for the given row, committed on Save.
func (s *Store) Upsert(ctx context.Context, kind entitykind.Kind, row ports.Row) error {
	id, ok := row.Fields["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("upsert %s: row missing id", kind)
	}
	s.stage(write{kind: kind, id: id, row: cloneRow(row)})
	return nil
}

// Delete buffers a hard delete, committed on Save.
func (s *Store) Delete(ctx context.Context, kind entitykind.Kind, id string) error {
	s.stage(write{kind: kind, id: id, delete: true})
	return nil
}

func (s *Store) stage(w write) {
	if s.staged == nil {
		s.staged = make(map[stagedKey]int)
	}
	s.pending = append(s.pending, w)
	s.staged[stagedKey{kind: w.kind, id: w.id}] = len(s.pending) - 1
}

func cloneRow(row ports.Row) ports.Row {
	fields := make(map[string]any, len(row.Fields))
	for k, v := range row.Fields {
		fields[k] = v
	}
	return ports.Row{Kind: row.Kind, Fields: fields}
}

// Save commits every buffered write from the current sync run in a
// single transaction.
func (s *Store) Save(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	return s.withWriteLock(func() error {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		for _, w := range s.pending {
			if w.delete {
				if _, err := tx.ExecContext(ctx, `DELETE FROM rows WHERE kind = ? AND id = ?`, string(w.kind), w.id); err != nil {
					return fmt.Errorf("delete %s/%s: %w", w.kind, w.id, err)
				}
				continue
			}
			if err := execUpsert(ctx, tx, w.kind, w.id, w.row); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		s.pending = nil
		s.staged = nil
		return nil
	})
}

// GetSetting/SetSetting persist watermarks and lastSyncTime.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	return s.withWriteLock(func() error {
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		if err != nil {
			return fmt.Errorf("set setting %s: %w", key, err)
		}
		return nil
	})
}

// RecordConflict and RecentConflicts implement the observational conflict
// history behind the CLI's `conflicts` command.
func (s *Store) RecordConflict(ctx context.Context, kind entitykind.Kind, id string, local, remote ports.Row, at time.Time) error {
	localJSON, err := json.Marshal(local.Fields)
	if err != nil {
		return err
	}
	remoteJSON, err := json.Marshal(remote.Fields)
	if err != nil {
		return err
	}
	return s.withWriteLock(func() error {
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO sync_conflicts (kind, entity_id, local_json, remote_json, overwritten_at)
			VALUES (?, ?, ?, ?, ?)`, string(kind), id, string(localJSON), string(remoteJSON), at.UTC().Format(time.RFC3339Nano))
		return err
	})
}

func (s *Store) RecentConflicts(ctx context.Context, limit int) ([]ports.ConflictRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT kind, entity_id, local_json, remote_json, overwritten_at
		FROM sync_conflicts ORDER BY overwritten_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.ConflictRecord
	for rows.Next() {
		var kindStr, id, localJSON, remoteJSON, ts string
		if err := rows.Scan(&kindStr, &id, &localJSON, &remoteJSON, &ts); err != nil {
			return nil, err
		}
		var localFields, remoteFields map[string]any
		if err := json.Unmarshal([]byte(localJSON), &localFields); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(remoteJSON), &remoteFields); err != nil {
			return nil, err
		}
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, err
		}
		k := entitykind.Kind(kindStr)
		out = append(out, ports.ConflictRecord{
			Kind:   k,
			ID:     id,
			Local:  ports.Row{Kind: k, Fields: localFields},
			Remote: ports.Row{Kind: k, Fields: remoteFields},
			At:     at,
		})
	}
	return out, rows.Err()
}

var _ ports.LocalStore = (*Store)(nil)
