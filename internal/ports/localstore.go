package ports

import (
	"context"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
)

// LocalStore is the local embedded persistence layer: fetch by
// predicate, insert, delete, save. The
// engine depends only on this interface; internal/localstore provides a
// SQLite-backed implementation and internal/synctest provides an
// in-memory fake for deterministic tests.
type LocalStore interface {
	// FetchByID returns a single row, or ok=false if absent.
	FetchByID(ctx context.Context, kind entitykind.Kind, id string) (row Row, ok bool, err error)

	// FetchDirty returns every row whose sync state is pending or failed.
	FetchDirty(ctx context.Context, kind entitykind.Kind) ([]Row, error)

	// FetchAllIDs returns every local id for kind, used by the orphan
	// sweep.
	FetchAllIDs(ctx context.Context, kind entitykind.Kind) ([]string, error)

	// Upsert inserts or overwrites a row by id.
	Upsert(ctx context.Context, kind entitykind.Kind, row Row) error

	// Delete removes a row by id (hard delete).
	Delete(ctx context.Context, kind entitykind.Kind, id string) error

	// Save commits the batched writes accumulated during the current
	// sync run in one commit at the end of the pass.
	Save(ctx context.Context) error

	// GetSetting/SetSetting persist durable engine settings: watermarks
	// and lastSyncTime.
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
	SetSetting(ctx context.Context, key, value string) error

	// RecordConflict and RecentConflicts implement the observational
	// conflict history surfaced to operators; never read by engine logic.
	RecordConflict(ctx context.Context, kind entitykind.Kind, id string, local, remote Row, at time.Time) error
	RecentConflicts(ctx context.Context, limit int) ([]ConflictRecord, error)
}

// ConflictRecord is one logged local-authoritative overwrite suppression.
type ConflictRecord struct {
	Kind          entitykind.Kind
	ID            string
	Local, Remote Row
	At            time.Time
}
