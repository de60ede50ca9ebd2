package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/brightfield-crm/syncengine/internal/ports"
)

// Durable setting keys.
const (
	settingLastSyncTime              = "lastSyncTime"
	settingLastSyncListingTypes      = "lastSyncListingTypes"
	settingLastSyncActivityTemplates = "lastSyncActivityTemplates"
	settingLastSyncNotes             = "lastSyncNotes"
	settingLegacyUsersMigrated       = "legacyUsersMigrated"
)

// watermarkSafetyBuffer is subtracted from every watermark when forming
// `since` for a syncDown read, to tolerate server clock skew and
// same-second writes.
const watermarkSafetyBuffer = 2 * time.Second

func getSettingTime(ctx context.Context, store ports.LocalStore, key string) (t time.Time, found bool, err error) {
	v, ok, err := store.GetSetting(ctx, key)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get setting %s: %w", key, err)
	}
	if !ok || v == "" {
		return time.Time{}, false, nil
	}
	parsed, perr := time.Parse(time.RFC3339Nano, v)
	if perr != nil {
		return time.Time{}, false, fmt.Errorf("parse setting %s: %w", key, perr)
	}
	return parsed, true, nil
}

func setSettingTime(ctx context.Context, store ports.LocalStore, key string, t time.Time) error {
	if err := store.SetSetting(ctx, key, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// sinceFor applies the safety buffer to a watermark; an unset watermark
// (first sync) yields the zero time, fetching everything.
func sinceFor(t time.Time, found bool) time.Time {
	if !found {
		return time.Time{}
	}
	return t.Add(-watermarkSafetyBuffer)
}

// watermark reads the named setting and returns the buffered `since`
// value for a syncDown read.
func watermark(ctx context.Context, store ports.LocalStore, key string) (time.Time, error) {
	t, found, err := getSettingTime(ctx, store, key)
	if err != nil {
		return time.Time{}, err
	}
	return sinceFor(t, found), nil
}
