// Package ports declares the external-collaborator interfaces the sync
// engine depends on but does not implement: authentication,
// REST/realtime transport, object storage, local persistence, logging,
// and the version-compat RPC. The view layer and image normalization
// have no interface here.
// The engine is constructed from these interfaces alone; every
// implementation (production or fake) lives outside it.
package ports

import (
	"context"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
)

// Principal provides the current authenticated user id. Authentication
// itself happens elsewhere; the engine only needs the id for self-echo
// filtering and admin-gated passes.
type Principal interface {
	CurrentUserID() string
	IsAdmin() bool
}

// Row is a decoded remote record: entity kind plus an opaque field map.
// Entity handlers (internal/entitysync) operate on this map directly —
// scalar columns and sync metadata alike — rather than decoding it
// into a per-entity typed struct; see internal/entitysync/fields.go.
type Row struct {
	Kind   entitykind.Kind
	Fields map[string]any
}

// Reserved Fields keys carrying a row's sync-engine-private metadata
// alongside its scalar domain columns. Leading underscore keeps them out
// of the way of real column names and out of what gets pushed over the
// wire (internal/entitysync strips them before a RemoteTable write).
// "updatedAt" itself is deliberately NOT one of these: it is both the
// ordinary domain mutation timestamp and the field mirrored from remote
// on accept — one column, not two.
const (
	MetaSyncState        = "_sync_state"
	MetaLastSyncError    = "_last_sync_error"
	MetaRetryCount       = "_retry_count"
	MetaSyncedAt         = "_synced_at"
	MetaLastResetAttempt = "_last_reset_attempt"
)

// RemoteTable is the REST-like table API. Implementations provide
// the per-table query/mutation primitives; the engine never talks to a
// network socket directly.
type RemoteTable interface {
	// SelectSince returns rows with updated_at > since, ordered by
	// updated_at ascending.
	SelectSince(ctx context.Context, kind entitykind.Kind, since time.Time) ([]Row, error)

	// SelectIDs returns every remote id for kind, used by the
	// reconcile-missing pass and the first-sync orphan sweep.
	SelectIDs(ctx context.Context, kind entitykind.Kind) ([]string, error)

	// SelectByIDs batch-fetches specific rows, used by reconcile-missing.
	SelectByIDs(ctx context.Context, kind entitykind.Kind, ids []string) ([]Row, error)

	// Upsert writes rows keyed by id, ON CONFLICT(id) DO UPDATE semantics.
	Upsert(ctx context.Context, kind entitykind.Kind, rows []Row) error

	// Insert writes new rows only (used where the server enforces an
	// insert-first column-grant policy, e.g. notes).
	Insert(ctx context.Context, kind entitykind.Kind, rows []Row) error

	// UpdateByID applies a column-restricted partial update (notes only).
	UpdateByID(ctx context.Context, kind entitykind.Kind, id string, fields map[string]any) error
}

// ChangeEvent is a row-change stream item.
type ChangeEvent struct {
	Kind      entitykind.Kind
	Type      string // "insert" | "update" | "delete"
	Record    map[string]any
	OldRecord map[string]any
}

// BroadcastPayload is the application-level change envelope's inner
// payload.
type BroadcastPayload struct {
	Table        string
	Type         string // "insert" | "update" | "delete"
	Record       map[string]any
	OldRecord    map[string]any
	EventVersion int
	OriginUserID string
}

// ConnectionState is the realtime connection state surfaced to the UI.
type ConnectionState string

const (
	ConnConnected    ConnectionState = "connected"
	ConnReconnecting ConnectionState = "reconnecting"
	ConnDegraded     ConnectionState = "degraded"
	ConnDisconnected ConnectionState = "disconnected"
)

// RealtimeClient is the realtime transport: subscribe to per-table
// row-change streams and to the broadcast channel, with status updates.
type RealtimeClient interface {
	// Subscribe opens the channel and begins delivering ChangeEvents and
	// raw broadcast envelopes (as opaque bytes, decoded by
	// internal/realtime's parser) until ctx is canceled or Unsubscribe is
	// called. statusCh receives connection-state transitions observed by
	// the transport itself (distinct from the lifecycle manager's own
	// reconnect-attempt state).
	Subscribe(ctx context.Context) (changes <-chan ChangeEvent, broadcasts <-chan []byte, status <-chan ConnectionState, err error)

	// Unsubscribe tears down the channel. Safe to call even if Subscribe
	// was never called or already failed.
	Unsubscribe() error
}

// ObjectStore is the binary-asset client: a single "avatars" bucket.
type ObjectStore interface {
	// Upload writes data to key with the given content type, upsert
	// semantics, and cacheControl in seconds.
	Upload(ctx context.Context, key string, data []byte, contentType string, cacheControl time.Duration) error

	// PublicURL returns the (assumed public-read) download URL for key.
	PublicURL(key string) string
}

// CompatStatus is the app-compatibility gate's decision.
type CompatStatus int

const (
	CompatCompatible CompatStatus = iota
	CompatUpdateAvailable
	CompatUpdateRequired
	CompatUnknown
)

// CompatClient is the version-compatibility RPC.
type CompatClient interface {
	CheckVersionCompat(ctx context.Context, platform, clientVersion string) (CompatStatus, error)
}

// Logger is the minimal structured-logging surface the engine needs;
// satisfied directly by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock is injected so the orchestrator, retry policy, and breaker are
// deterministically testable.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
