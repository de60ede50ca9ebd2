// Package conflict implements the conflict resolver: per-entity-kind
// in-flight id tracking and the local-authoritative decision that
// underpins last-writer-wins with local-edit preservation. There is no
// CRDT or operational-transform merging anywhere in the engine.
package conflict

import (
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/models"
)

// Resolver holds one in-flight id set per tracked entity kind. All
// reads/writes happen from the orchestrator's single logical executor,
// so no internal locking is needed. The zero value is unusable;
// construct with New.
type Resolver struct {
	inFlight map[entitykind.Kind]map[string]struct{}
}

// New constructs a Resolver with an empty set for every tracked kind.
func New() *Resolver {
	r := &Resolver{inFlight: make(map[entitykind.Kind]map[string]struct{})}
	for _, k := range entitykind.Tracked() {
		r.inFlight[k] = make(map[string]struct{})
	}
	return r
}

// Mark records ids as in-flight for kind, before any network I/O begins
// for the push batch that references them.
func (r *Resolver) Mark(kind entitykind.Kind, ids []string) {
	set, ok := r.inFlight[kind]
	if !ok {
		set = make(map[string]struct{})
		r.inFlight[kind] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

// Clear removes the entire in-flight set for kind, called on every exit
// path (success or failure) of the push batch that marked it.
func (r *Resolver) Clear(kind entitykind.Kind) {
	if set, ok := r.inFlight[kind]; ok {
		for id := range set {
			delete(set, id)
		}
	}
}

// IsInFlight reports whether id is currently being pushed for kind.
func (r *Resolver) IsInFlight(kind entitykind.Kind, id string) bool {
	set, ok := r.inFlight[kind]
	if !ok {
		return false
	}
	_, present := set[id]
	return present
}

// IsLocalAuthoritative decides whether the local row's scalars must be
// preserved against an incoming remote write (syncDown or broadcast),
// by a four-way rule:
//
//   - inFlight            => true  (we just sent this)
//   - state == failed     => true  (must retry; never overwrite)
//   - state == synced     => false (accept remote)
//   - state == pending    => localUpdatedAt > remoteUpdatedAt (timestamp wins)
func IsLocalAuthoritative(state models.SyncState, localUpdatedAt, remoteUpdatedAt time.Time, inFlight bool) bool {
	if inFlight {
		return true
	}
	switch state {
	case models.SyncFailed:
		return true
	case models.SyncSynced:
		return false
	case models.SyncPending:
		return localUpdatedAt.After(remoteUpdatedAt)
	default:
		return false
	}
}
