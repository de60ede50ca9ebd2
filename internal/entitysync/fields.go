package entitysync

import (
	"time"

	"github.com/brightfield-crm/syncengine/internal/models"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

// rowMeta is the decoded form of a row's sync-private Fields keys
// (ports.Meta*), used for the local-authoritative decision.
type rowMeta struct {
	syncState  models.SyncState
	retryCount int
	updatedAt  time.Time
}

func decodeMeta(fields map[string]any) rowMeta {
	state, _ := fields[ports.MetaSyncState].(string)
	if state == "" {
		state = string(models.SyncSynced)
	}
	retryCount, _ := fields[ports.MetaRetryCount].(int)
	return rowMeta{
		syncState:  models.SyncState(state),
		retryCount: retryCount,
		updatedAt:  getTime(fields, "updatedAt"),
	}
}

// setMetaSynced stamps fields with the accepted-remote sync state: synced,
// retryCount reset, syncedAt=now, updatedAt mirrored from remote so the
// local copy always carries the server's mutation timestamp.
func setMetaSynced(fields map[string]any, remoteUpdatedAt, now time.Time) {
	fields["updatedAt"] = formatTime(remoteUpdatedAt)
	fields[ports.MetaSyncState] = string(models.SyncSynced)
	fields[ports.MetaRetryCount] = 0
	fields[ports.MetaSyncedAt] = formatTime(now)
	delete(fields, ports.MetaLastSyncError)
}

// setMetaFailed stamps fields with a push failure: state flips to failed
// with a user-facing message; retryCount is untouched here (only the
// manual/auto-recovery retry loop bumps it).
func setMetaFailed(fields map[string]any, userMessage string) {
	fields[ports.MetaSyncState] = string(models.SyncFailed)
	fields[ports.MetaLastSyncError] = userMessage
}

// cloneScalars copies every field of src, sync meta included, into a
// fresh map so callers never mutate a Row returned by a collaborator.
func cloneScalars(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// stripMeta returns a copy of fields with every sync-private key removed,
// for writing to the remote table; the push body never carries the
// client's own dirty-bit bookkeeping.
func stripMeta(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case ports.MetaSyncState, ports.MetaLastSyncError, ports.MetaRetryCount, ports.MetaSyncedAt, ports.MetaLastResetAttempt:
			continue
		}
		out[k] = v
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func getTime(fields map[string]any, key string) time.Time {
	v, ok := fields[key]
	if !ok || v == nil {
		return time.Time{}
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if t == "" {
			return time.Time{}
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, t)
			if err != nil {
				return time.Time{}
			}
		}
		return parsed
	default:
		return time.Time{}
	}
}

func getTimePtr(fields map[string]any, key string) *time.Time {
	t := getTime(fields, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

func getString(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}

func getStringPtr(fields map[string]any, key string) *string {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func getBool(fields map[string]any, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

func getIntPtr(fields map[string]any, key string) *int {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case int:
		return &n
	case float64:
		i := int(n)
		return &i
	default:
		return nil
	}
}
