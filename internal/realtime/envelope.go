package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/brightfield-crm/syncengine/internal/ports"
)

// wireEnvelope and wirePayload mirror the wire shape exactly: {event,
// type, payload: {table, type, record, oldRecord, eventVersion,
// originUserId}, meta}. Kept private to this file so the ports package
// stays free of JSON-tag wire concerns; ports only describes the decoded
// shape.
type wireEnvelope struct {
	Event   string          `json:"event"`
	Type    string          `json:"type"`
	Payload wirePayload     `json:"payload"`
	Meta    json.RawMessage `json:"meta"`
}

type wirePayload struct {
	Table        string         `json:"table"`
	Type         string         `json:"type"`
	Record       map[string]any `json:"record"`
	OldRecord    map[string]any `json:"oldRecord"`
	EventVersion int            `json:"eventVersion"`
	OriginUserID string         `json:"originUserId"`
}

type decodedEnvelope struct {
	Event   string
	Type    string
	Payload ports.BroadcastPayload
}

func decodeEnvelope(raw []byte) (decodedEnvelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return decodedEnvelope{}, fmt.Errorf("decode broadcast envelope: %w", err)
	}
	return decodedEnvelope{
		Event: w.Event,
		Type:  w.Type,
		Payload: ports.BroadcastPayload{
			Table:        w.Payload.Table,
			Type:         w.Payload.Type,
			Record:       w.Payload.Record,
			OldRecord:    w.Payload.OldRecord,
			EventVersion: w.Payload.EventVersion,
			OriginUserID: w.Payload.OriginUserID,
		},
	}, nil
}
