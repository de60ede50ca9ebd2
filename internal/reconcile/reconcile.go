// Package reconcile implements the post-syncDown relationship and orphan
// reconciliation pass: healing deferred foreign keys that
// internal/entitysync's syncDown logged as warnings, and (first-sync
// only) sweeping local rows absent from the remote id set.
package reconcile

import (
	"context"
	"fmt"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/entitysync"
)

// Relationships handles the two deferred-FK cases that matter to the
// UI: a listing's owner and a listing's property link. Both are
// implemented as a dictionary pass — one membership-set of parent ids
// built from FetchAllIDs, checked against every listing — rather than one
// parent lookup per listing. A resolvable owner is written back to the
// listing; a property link is only checked, and logged while unresolved.
func Relationships(ctx context.Context, deps *entitysync.Deps) error {
	if err := resolveOwners(ctx, deps); err != nil {
		return fmt.Errorf("reconcile relationships: owners: %w", err)
	}
	if err := resolveProperties(ctx, deps); err != nil {
		return fmt.Errorf("reconcile relationships: properties: %w", err)
	}
	return nil
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func resolveOwners(ctx context.Context, deps *entitysync.Deps) error {
	userIDs, err := deps.Store.FetchAllIDs(ctx, entitykind.Users)
	if err != nil {
		return fmt.Errorf("fetch user ids: %w", err)
	}
	users := idSet(userIDs)

	listingIDs, err := deps.Store.FetchAllIDs(ctx, entitykind.Listings)
	if err != nil {
		return fmt.Errorf("fetch listing ids: %w", err)
	}

	for _, id := range listingIDs {
		row, ok, err := deps.Store.FetchByID(ctx, entitykind.Listings, id)
		if err != nil {
			return fmt.Errorf("fetch listing %s: %w", id, err)
		}
		if !ok {
			continue
		}
		if deletedAt, _ := row.Fields["deletedAt"].(string); deletedAt != "" {
			continue
		}
		ownerID, _ := row.Fields["ownerId"].(string)
		if ownerID != "" {
			continue
		}
		ownedBy, _ := row.Fields["ownedBy"].(string)
		if ownedBy == "" {
			continue
		}
		if _, ok := users[ownedBy]; !ok {
			deps.Log.Warn("reconcile: owner still unresolved", "listing", id, "ownedBy", ownedBy)
			continue
		}
		row.Fields["ownerId"] = ownedBy
		if err := deps.Store.Upsert(ctx, entitykind.Listings, row); err != nil {
			return fmt.Errorf("link owner for listing %s: %w", id, err)
		}
	}
	return nil
}

func resolveProperties(ctx context.Context, deps *entitysync.Deps) error {
	propertyIDs, err := deps.Store.FetchAllIDs(ctx, entitykind.Properties)
	if err != nil {
		return fmt.Errorf("fetch property ids: %w", err)
	}
	properties := idSet(propertyIDs)

	listingIDs, err := deps.Store.FetchAllIDs(ctx, entitykind.Listings)
	if err != nil {
		return fmt.Errorf("fetch listing ids: %w", err)
	}

	for _, id := range listingIDs {
		row, ok, err := deps.Store.FetchByID(ctx, entitykind.Listings, id)
		if err != nil {
			return fmt.Errorf("fetch listing %s: %w", id, err)
		}
		if !ok {
			continue
		}
		propertyID, _ := row.Fields["propertyId"].(string)
		if propertyID == "" {
			continue
		}
		if _, ok := properties[propertyID]; !ok {
			deps.Log.Warn("reconcile: property link still unresolved", "listing", id, "propertyId", propertyID)
			continue
		}
		// The FK is already on the row (syncDown stores it unconditionally
		// on arrival); this pass only needed to confirm it now resolves. No
		// further mutation is required once the property exists locally.
	}
	return nil
}

// orphanSweepKinds are the entity kinds swept for local-only rows on a
// first-ever sync. Join rows (assignees) are not swept: their kinds are
// not listed here, and deleting a parent row does not remove its
// assignee rows.
var orphanSweepKinds = []entitykind.Kind{
	entitykind.ListingTypeDefinitions,
	entitykind.ActivityTemplates,
	entitykind.Users,
	entitykind.Properties,
	entitykind.Listings,
	entitykind.Tasks,
	entitykind.Activities,
	entitykind.Notes,
}

// OrphanSweep deletes local rows absent from the remote id set. Callers
// must only invoke this when lastSyncTime was nil at pass start — that
// gate lives in the orchestrator, not here, since this package has no
// notion of "first sync".
func OrphanSweep(ctx context.Context, deps *entitysync.Deps) error {
	for _, kind := range orphanSweepKinds {
		if err := entitysync.OrphanSweep(ctx, deps, kind); err != nil {
			return fmt.Errorf("orphan sweep %s: %w", kind, err)
		}
	}
	return nil
}
