package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

// Sync-meta is stored in its own columns (for indexed querying by
// FetchDirty) but folded into the Row's Fields map under ports' reserved
// meta keys so callers in internal/entitysync decode everything from one
// map[string]any, same shape on the way in or out of the store.
const (
	fieldSyncState     = ports.MetaSyncState
	fieldLastSyncError = ports.MetaLastSyncError
	fieldRetryCount    = ports.MetaRetryCount
	fieldSyncedAt      = ports.MetaSyncedAt
	fieldLastReset     = ports.MetaLastResetAttempt

	// fieldUpdatedAt is NOT one of the underscore-prefixed private meta
	// keys: it is an ordinary scalar column every entity carries, so
	// it lives in the JSON fields blob like any other domain column and
	// is merely mirrored into its own indexed "updated_at" column here.
	fieldUpdatedAt = "updatedAt"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner, kind entitykind.Kind) (ports.Row, bool, error) {
	var (
		fieldsJSON   string
		syncState    string
		lastErr      sql.NullString
		retryCount   int
		syncedAt     sql.NullString
		updatedAt    string
		lastReset    sql.NullString
	)
	err := r.Scan(&fieldsJSON, &syncState, &lastErr, &retryCount, &syncedAt, &updatedAt, &lastReset)
	if err == sql.ErrNoRows {
		return ports.Row{}, false, nil
	}
	if err != nil {
		return ports.Row{}, false, fmt.Errorf("scan %s row: %w", kind, err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return ports.Row{}, false, fmt.Errorf("decode %s fields: %w", kind, err)
	}

	fields[fieldSyncState] = syncState
	fields[fieldRetryCount] = retryCount
	fields[fieldUpdatedAt] = updatedAt
	if lastErr.Valid {
		fields[fieldLastSyncError] = lastErr.String
	}
	if syncedAt.Valid {
		fields[fieldSyncedAt] = syncedAt.String
	}
	if lastReset.Valid {
		fields[fieldLastReset] = lastReset.String
	}

	return ports.Row{Kind: kind, Fields: fields}, true, nil
}

func collectRows(rows *sql.Rows, kind entitykind.Kind) ([]ports.Row, error) {
	var out []ports.Row
	for rows.Next() {
		row, ok, err := scanRow(rows, kind)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, rows.Err()
}

// execUpsert splits row.Fields into the scalar JSON blob and the indexed
// sync-meta columns, then writes both in one statement.
func execUpsert(ctx context.Context, tx *sql.Tx, kind entitykind.Kind, id string, row ports.Row) error {
	scalars := make(map[string]any, len(row.Fields))
	for k, v := range row.Fields {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		scalars[k] = v
	}
	fieldsJSON, err := json.Marshal(scalars)
	if err != nil {
		return fmt.Errorf("encode %s fields: %w", kind, err)
	}

	syncState, _ := row.Fields[fieldSyncState].(string)
	if syncState == "" {
		syncState = "synced"
	}
	retryCount, _ := row.Fields[fieldRetryCount].(int)
	updatedAt, _ := row.Fields[fieldUpdatedAt].(string)
	if updatedAt == "" {
		updatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	var lastErr, syncedAt, lastReset any
	if v, ok := row.Fields[fieldLastSyncError].(string); ok {
		lastErr = v
	}
	if v, ok := row.Fields[fieldSyncedAt].(string); ok {
		syncedAt = v
	}
	if v, ok := row.Fields[fieldLastReset].(string); ok {
		lastReset = v
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rows (kind, id, fields, sync_state, last_sync_error, retry_count, synced_at, updated_at, last_reset_attempt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			fields = excluded.fields,
			sync_state = excluded.sync_state,
			last_sync_error = excluded.last_sync_error,
			retry_count = excluded.retry_count,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at,
			last_reset_attempt = excluded.last_reset_attempt
	`, string(kind), id, string(fieldsJSON), syncState, lastErr, retryCount, syncedAt, updatedAt, lastReset)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", kind, id, err)
	}
	return nil
}
