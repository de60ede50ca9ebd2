// Package realtime implements the broadcast event parser, the channel
// lifecycle manager, and their composition into a single ingress
// coordinator the orchestrator depends on. This package never talks to a
// socket itself, only to the ports.RealtimeClient it's handed.
package realtime

import (
	"context"
	"fmt"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/entitysync"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

// Dispatcher routes a decoded row-change or broadcast event to the correct
// per-kind entitysync handler. The per-kind deviations apply here too:
// notes and assignees don't go through the plain generic path.
type Dispatcher struct {
	Deps *entitysync.Deps
}

func specFor(kind entitykind.Kind) (entitysync.Spec, bool) {
	switch kind {
	case entitykind.ListingTypeDefinitions:
		return entitysync.ListingTypeDefsSpec, true
	case entitykind.ActivityTemplates:
		return entitysync.ActivityTemplatesSpec, true
	case entitykind.Users:
		return entitysync.UsersSpec, true
	case entitykind.Properties:
		return entitysync.PropertiesSpec, true
	case entitykind.Listings:
		return entitysync.ListingsSpec, true
	case entitykind.Tasks:
		return entitysync.TasksSpec, true
	case entitykind.Activities:
		return entitysync.ActivitiesSpec, true
	case entitykind.TaskAssignees:
		return entitysync.TaskAssigneesSpec, true
	case entitykind.ActivityAssignees:
		return entitysync.ActivityAssigneesSpec, true
	default:
		return entitysync.Spec{}, false
	}
}

// upsert dispatches a decoded record into the entity kind's own ingress
// path.
func (d *Dispatcher) upsert(ctx context.Context, kind entitykind.Kind, row ports.Row) error {
	switch kind {
	case entitykind.Notes:
		return entitysync.UpsertNote(ctx, d.Deps, row)
	case entitykind.TaskAssignees:
		return entitysync.UpsertTaskAssignee(ctx, d.Deps, row)
	case entitykind.ActivityAssignees:
		return entitysync.UpsertActivityAssignee(ctx, d.Deps, row)
	default:
		spec, ok := specFor(kind)
		if !ok {
			return fmt.Errorf("realtime: unknown entity kind %q", kind)
		}
		return entitysync.Upsert(ctx, d.Deps, spec, row)
	}
}

// delete dispatches a hard delete.
func (d *Dispatcher) delete(ctx context.Context, kind entitykind.Kind, id string) error {
	if kind == entitykind.Notes {
		return entitysync.DeleteNote(ctx, d.Deps, id)
	}
	return entitysync.Delete(ctx, d.Deps, kind, id)
}
