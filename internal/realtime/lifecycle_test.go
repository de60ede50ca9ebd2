package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brightfield-crm/syncengine/internal/conflict"
	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/ports"
	. "github.com/brightfield-crm/syncengine/internal/realtime"
	"github.com/brightfield-crm/syncengine/internal/synctest"
)

// stateRecorder collects OnStateChange transitions emitted from the
// lifecycle's retry goroutine without racing the test's own reads.
type stateRecorder struct {
	mu     sync.Mutex
	states []ConnState
}

func (r *stateRecorder) record(cs ConnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, cs)
}

func (r *stateRecorder) snapshot() []ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConnState, len(r.states))
	copy(out, r.states)
	return out
}

func TestStartListeningEmitsConnectedOnSuccess(t *testing.T) {
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	client := synctest.NewRealtimeClient()
	d := newDispatcher(store, remote, conflict.New())
	principal := &synctest.Principal{UserID: "me"}

	lc := NewLifecycle(client, d, conflict.New(), principal, noopLog{}, true)

	rec := &stateRecorder{}
	lc.OnStateChange(rec.record)

	lc.StartListening(context.Background())
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	if states := rec.snapshot(); states[0].Status != ports.ConnConnected {
		t.Fatalf("states = %v, want [connected]", states)
	}

	lc.StopListening()
}

func TestRetryLoopReconnectsAfterSubscribeFailure(t *testing.T) {
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	client := synctest.NewRealtimeClient()
	client.SubscribeErr = errors.New("transient network error")
	d := newDispatcher(store, remote, conflict.New())
	principal := &synctest.Principal{UserID: "me"}

	lc := NewLifecycle(client, d, conflict.New(), principal, noopLog{}, true)

	rec := &stateRecorder{}
	lc.OnStateChange(rec.record)

	lc.StartListening(context.Background())
	waitFor(t, func() bool {
		for _, s := range rec.snapshot() {
			if s.Status == ports.ConnConnected {
				return true
			}
		}
		return false
	})

	states := rec.snapshot()
	if states[0].Status != ports.ConnReconnecting || states[0].Attempt != 1 {
		t.Fatalf("first transition = %+v, want reconnecting attempt 1", states[0])
	}
	final := states[len(states)-1]
	if final.Status != ports.ConnConnected {
		t.Fatalf("final transition = %+v, want connected once resubscribe succeeds", final)
	}

	lc.StopListening()
}

func TestReadChangesDispatchesToHandler(t *testing.T) {
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	client := synctest.NewRealtimeClient()
	d := newDispatcher(store, remote, conflict.New())
	principal := &synctest.Principal{UserID: "me"}

	lc := NewLifecycle(client, d, conflict.New(), principal, noopLog{}, true)
	lc.StartListening(context.Background())
	defer lc.StopListening()

	client.PushChange(ports.ChangeEvent{
		Kind: entitykind.Properties,
		Type: "insert",
		Record: map[string]any{
			"id": "p1", "name": "Via Change Stream", "updatedAt": time.Now().Format(time.RFC3339Nano),
		},
	})

	waitFor(t, func() bool {
		_, ok, _ := store.FetchByID(context.Background(), entitykind.Properties, "p1")
		return ok
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
