package localstore

// schema creates the generic row store plus settings and conflict-history
// tables. Entity scalars are held as a JSON blob per row (the "fields"
// column) rather than one typed table per CRM entity: internal/entitysync
// already decodes/encodes through ports.Row{Kind, Fields}, and a generic
// row table lets the store stay kind-agnostic.
const schema = `
CREATE TABLE IF NOT EXISTS rows (
	kind              TEXT NOT NULL,
	id                TEXT NOT NULL,
	fields            TEXT NOT NULL DEFAULT '{}',
	sync_state        TEXT NOT NULL DEFAULT 'synced',
	last_sync_error   TEXT,
	retry_count       INTEGER NOT NULL DEFAULT 0,
	synced_at         TEXT,
	updated_at        TEXT NOT NULL,
	last_reset_attempt TEXT,
	PRIMARY KEY (kind, id)
);

CREATE INDEX IF NOT EXISTS idx_rows_kind_state ON rows(kind, sync_state);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_conflicts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	entity_id  TEXT NOT NULL,
	local_json   TEXT NOT NULL,
	remote_json  TEXT NOT NULL,
	overwritten_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conflicts_time ON sync_conflicts(overwritten_at DESC);
`
