// Package synctest provides a deterministic in-memory implementation of
// every internal/ports interface plus a Harness that wires them into a
// syncengine.Engine running in syncengine.ModeTest: one simulated client
// against one simulated server, driven without timers or network.
package synctest

import (
	"context"
	"testing"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/syncengine"
)

// Harness bundles one simulated client (Store, fake realtime connection)
// against one simulated server (Remote, fake object bucket) behind a single
// Engine, plus the fakes a test needs direct handles to for injection and
// assertions.
type Harness struct {
	t *testing.T

	Remote    *Remote
	Store     *Store
	Realtime  *RealtimeClient
	Objects   *ObjectStore
	Compat    *CompatClient
	Clock     *Clock
	Principal *Principal

	Engine *syncengine.Engine
}

// NewHarness constructs a Harness with a fresh fake server/client pair and
// an Engine in syncengine.ModeTest, with realtime wired.
func NewHarness(t *testing.T, userID string, start time.Time) *Harness {
	t.Helper()

	h := &Harness{
		t:         t,
		Remote:    NewRemote(),
		Store:     NewStore(),
		Realtime:  NewRealtimeClient(),
		Objects:   NewObjectStore(),
		Compat:    NewCompatClient(),
		Clock:     NewClock(start),
		Principal: &Principal{UserID: userID, Admin: true},
	}

	h.Engine = syncengine.New(syncengine.Config{
		Remote:        h.Remote,
		Store:         h.Store,
		Realtime:      h.Realtime,
		Objects:       h.Objects,
		Compat:        h.Compat,
		Principal:     h.Principal,
		Clock:         h.Clock,
		Platform:      "test",
		ClientVersion: "0.0.0-test",
		Mode:          syncengine.ModeTest,
	})

	return h
}

// Start begins the engine's realtime subscription under ctx.
func (h *Harness) Start(ctx context.Context) {
	h.Engine.Start(ctx)
}

// Sync runs one coalesced sync pass to completion, blocking until the
// engine's request loop has drained. ModeTest never sleeps on real timers
// internally, so the bound here only covers goroutine scheduling, not
// simulated backoff delays.
func (h *Harness) Sync(ctx context.Context) {
	h.t.Helper()
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	h.Engine.RequestSyncAndWait(waitCtx)
	if waitCtx.Err() != nil {
		h.t.Fatal("synctest: sync did not converge within deadline")
	}
}

// Shutdown stops the engine, enforcing ModeTest's quiescence timeout.
func (h *Harness) Shutdown(ctx context.Context) {
	h.Engine.Shutdown(ctx)
}

// AssertConverged fails the test if the local store and remote table
// disagree on the live id set for kind (ignoring sync-private meta fields,
// which never exist server-side).
func (h *Harness) AssertConverged(kind entitykind.Kind) {
	h.t.Helper()

	localIDs, err := h.Store.FetchAllIDs(context.Background(), kind)
	if err != nil {
		h.t.Fatalf("synctest: fetch local ids: %v", err)
	}
	remoteIDs, err := h.Remote.SelectIDs(context.Background(), kind)
	if err != nil {
		h.t.Fatalf("synctest: fetch remote ids: %v", err)
	}

	local := toSet(localIDs)
	remote := toSet(remoteIDs)
	for id := range local {
		if !remote[id] {
			h.t.Fatalf("synctest: %s/%s exists locally but not on remote", kind, id)
		}
	}
	for id := range remote {
		if !local[id] {
			h.t.Fatalf("synctest: %s/%s exists on remote but not locally", kind, id)
		}
	}

	for id := range local {
		localRow, _ := h.Store.Get(kind, id)
		if state := localRow.Fields[ports.MetaSyncState]; state != "" && state != "synced" {
			h.t.Fatalf("synctest: %s/%s not fully synced, state=%v", kind, id, state)
		}
	}
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
