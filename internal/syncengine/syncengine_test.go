package syncengine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brightfield-crm/syncengine/internal/breaker"
	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/ports"
	"github.com/brightfield-crm/syncengine/internal/synctest"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Scenario: an offline local edit round-trips to the server once sync runs.
func TestOfflineEditRoundTrip(t *testing.T) {
	h := synctest.NewHarness(t, "user-1", epoch)
	h.Store.PutPending(entitykind.Properties, map[string]any{"id": "p1", "name": "Offline Edit"}, epoch)

	h.Sync(context.Background())
	h.AssertConverged(entitykind.Properties)

	remoteRow, ok := h.Remote.Get(entitykind.Properties, "p1")
	if !ok || remoteRow.Fields["name"] != "Offline Edit" {
		t.Fatalf("expected offline edit pushed to remote, got ok=%v row=%v", ok, remoteRow)
	}
}

// Scenario: remote already has a newer write than a still-pending local
// edit; the remote write must win once it's no longer in flight.
func TestRemoteNewerThanLocalPendingWins(t *testing.T) {
	h := synctest.NewHarness(t, "user-1", epoch)
	h.Store.PutPending(entitykind.Properties, map[string]any{"id": "p1", "name": "Stale Local"}, epoch)
	h.Remote.Seed(entitykind.Properties, ports.Row{Kind: entitykind.Properties, Fields: map[string]any{
		"id": "p1", "name": "Stale Local", "updatedAt": epoch.Format(time.RFC3339Nano),
	}})

	// Advance the clock so a fresh remote write (pushed by another device,
	// simulated here as a direct Seed) postdates the local pending edit.
	later := h.Clock.Advance(time.Hour)
	h.Remote.Seed(entitykind.Properties, ports.Row{Kind: entitykind.Properties, Fields: map[string]any{
		"id": "p1", "name": "Newer Remote", "updatedAt": later.Format(time.RFC3339Nano),
	}})

	h.Sync(context.Background())

	local, ok := h.Store.Get(entitykind.Properties, "p1")
	if !ok || local.Fields["name"] != "Newer Remote" {
		t.Fatalf("expected newer remote write to win, got ok=%v row=%v", ok, local)
	}
}

// Scenario: repeated push failures trip the circuit breaker, which then
// blocks further sync attempts until its cooldown elapses.
func TestCircuitBreakerTripsOnRepeatedPushFailure(t *testing.T) {
	h := synctest.NewHarness(t, "user-1", epoch)
	h.Remote.FailUpsert[entitykind.Properties] = true
	h.Store.PutPending(entitykind.Properties, map[string]any{"id": "p1", "name": "retry"}, epoch)

	// The row stays dirty (failed) after each push attempt, so five
	// consecutive sync() runs each observe a failure and record one.
	for i := 0; i < 5; i++ {
		h.Sync(context.Background())
	}

	if got := h.Engine.Status().BreakerState; got != breaker.Open {
		t.Fatalf("breaker state = %v, want Open after 5 consecutive push failures", got)
	}
}

// Scenario: the Channel Lifecycle Manager reconnects with backoff after an
// initial subscribe failure and resumes delivering realtime events.
func TestReconnectAfterSubscribeFailureResumesIngress(t *testing.T) {
	h := synctest.NewHarness(t, "user-1", epoch)
	h.Realtime.SubscribeErr = errors.New("simulated transient subscribe failure")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && h.Engine.Status().Connection != ports.ConnConnected {
		time.Sleep(time.Millisecond)
	}
	if h.Engine.Status().Connection != ports.ConnConnected {
		t.Fatal("expected connection to recover to connected after the retry loop resubscribes")
	}

	h.Shutdown(context.Background())
}

// Scenario: on a first-ever sync (no prior lastSyncTime watermark), local
// rows absent from the remote id set are swept.
func TestOrphanSweepOnFirstSyncOnly(t *testing.T) {
	h := synctest.NewHarness(t, "user-1", epoch)
	h.Store.Seed(entitykind.Tasks, ports.Row{Kind: entitykind.Tasks, Fields: map[string]any{"id": "orphan", "updatedAt": epoch}})

	h.Sync(context.Background())

	if _, ok := h.Store.Get(entitykind.Tasks, "orphan"); ok {
		t.Error("expected orphaned local task to be swept on the first sync")
	}
}
