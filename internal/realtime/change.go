package realtime

import (
	"context"

	"github.com/brightfield-crm/syncengine/internal/ports"
)

// HandleChange dispatches one row-change stream item straight to the
// matching entity handler. Row-change events carry no originUserId and
// are never self-echo filtered (only the broadcast channel carries that
// envelope field); the in-flight protection here comes solely from
// entitysync.Upsert's own local-authoritative check.
func (d *Dispatcher) HandleChange(ctx context.Context, ev ports.ChangeEvent) error {
	if ev.Type == "delete" {
		id, _ := ev.OldRecord["id"].(string)
		if id == "" {
			return nil
		}
		return d.delete(ctx, ev.Kind, id)
	}
	return d.upsert(ctx, ev.Kind, ports.Row{Kind: ev.Kind, Fields: ev.Record})
}
