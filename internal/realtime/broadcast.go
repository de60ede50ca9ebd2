package realtime

import (
	"context"

	"github.com/brightfield-crm/syncengine/internal/conflict"
	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

// supportedEventVersion is the only broadcast payload shape this parser
// understands. A mismatch is logged and processing continues best-effort
// rather than rejecting the message outright.
const supportedEventVersion = 1

// inFlightFilteredKinds are the entity kinds the in-flight filter applies
// to for broadcast ingress. Other
// tracked kinds are still protected against an in-flight overwrite by
// entitysync.Upsert's own local-authoritative check (conflict.IsLocalAuthoritative
// treats inFlight as always-authoritative); this filter exists to skip the
// dispatch entirely for these three kinds, avoiding redundant work and log
// noise on the hot path.
var inFlightFilteredKinds = map[entitykind.Kind]bool{
	entitykind.Tasks:      true,
	entitykind.Activities: true,
	entitykind.Notes:      true,
}

// HandleBroadcast is the broadcast event parser, end to end:
// decode, version check, self-echo filter, in-flight filter, dispatch. It
// never returns an error for a malformed or filtered message — a bad
// broadcast must not take down the ingress loop, so problems are logged
// and swallowed; only a dispatch failure from the entity handler itself
// propagates.
func (d *Dispatcher) HandleBroadcast(ctx context.Context, raw []byte, currentUserID string, resolver *conflict.Resolver, log ports.Logger) error {
	envelope, err := decodeEnvelope(raw)
	if err != nil {
		log.Warn("realtime: malformed broadcast envelope, dropping", "err", err)
		return nil
	}

	payload := envelope.Payload
	if payload.EventVersion != supportedEventVersion {
		log.Info("realtime: broadcast event version mismatch, processing best-effort", "eventVersion", payload.EventVersion)
	}

	if payload.OriginUserID != "" && payload.OriginUserID == currentUserID {
		log.Debug("realtime: dropping self-echo broadcast", "table", payload.Table)
		return nil
	}

	kind, ok := entitykind.Normalize(payload.Table)
	if !ok {
		log.Warn("realtime: broadcast for unknown table, dropping", "table", payload.Table)
		return nil
	}

	if payload.Type != "delete" && inFlightFilteredKinds[kind] {
		if id, _ := payload.Record["id"].(string); id != "" && resolver.IsInFlight(kind, id) {
			log.Debug("realtime: dropping broadcast for in-flight row", "kind", kind, "id", id)
			return nil
		}
	}

	if payload.Type == "delete" {
		id, _ := payload.OldRecord["id"].(string)
		if id == "" {
			log.Warn("realtime: delete broadcast missing oldRecord.id, dropping", "kind", kind)
			return nil
		}
		return d.delete(ctx, kind, id)
	}

	return d.upsert(ctx, kind, ports.Row{Kind: kind, Fields: payload.Record})
}
