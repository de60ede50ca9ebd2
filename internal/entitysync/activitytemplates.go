package entitysync

import (
	"context"
	"fmt"
	"time"
)

// SyncDownActivityTemplates pulls templates with two-pass FK resolution:
// a child (template) may
// arrive before its parent (listing type) in the same delta batch. First
// pass upserts every template whose listingTypeId already resolves
// locally; second pass retries the remainder against the now-updated
// local listing-type set, so templates that only needed their sibling
// from the SAME batch still land without waiting for next sync().
func SyncDownActivityTemplates(ctx context.Context, deps *Deps, since time.Time) error {
	rows, err := deps.Remote.SelectSince(ctx, ActivityTemplatesSpec.Kind, since)
	if err != nil {
		return fmt.Errorf("syncDown activityTemplates: select since: %w", err)
	}

	var deferred []int
	for i, row := range rows {
		fk := getStringPtr(row.Fields, ActivityTemplatesSpec.ParentFK)
		if fk == nil {
			deferred = append(deferred, i)
			continue
		}
		_, ok, err := deps.Store.FetchByID(ctx, ActivityTemplatesSpec.ParentFKKind, *fk)
		if err != nil {
			return fmt.Errorf("syncDown activityTemplates: parent lookup: %w", err)
		}
		if !ok {
			deferred = append(deferred, i)
			continue
		}
		if err := Upsert(ctx, deps, ActivityTemplatesSpec, row); err != nil {
			return fmt.Errorf("syncDown activityTemplates: %w", err)
		}
	}

	for _, i := range deferred {
		if err := Upsert(ctx, deps, ActivityTemplatesSpec, rows[i]); err != nil {
			return fmt.Errorf("syncDown activityTemplates (deferred pass): %w", err)
		}
	}
	return nil
}
