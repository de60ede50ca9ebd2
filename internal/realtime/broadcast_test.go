package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/brightfield-crm/syncengine/internal/conflict"
	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/entitysync"
	"github.com/brightfield-crm/syncengine/internal/ports"
	. "github.com/brightfield-crm/syncengine/internal/realtime"
	"github.com/brightfield-crm/syncengine/internal/synctest"
)

type noopLog struct{}

func (noopLog) Debug(string, ...any) {}
func (noopLog) Info(string, ...any)  {}
func (noopLog) Warn(string, ...any)  {}
func (noopLog) Error(string, ...any) {}

func newDispatcher(store *synctest.Store, remote *synctest.Remote, resolver *conflict.Resolver) *Dispatcher {
	clock := synctest.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return &Dispatcher{Deps: &entitysync.Deps{Remote: remote, Store: store, Resolver: resolver, Clock: clock, Log: noopLog{}}}
}

func TestHandleBroadcastDropsSelfEcho(t *testing.T) {
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	d := newDispatcher(store, remote, conflict.New())
	client := synctest.NewRealtimeClient()

	_, broadcasts, _, err := client.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	client.PushBroadcast(entitykind.Properties, "insert", map[string]any{"id": "p1", "name": "from me"}, "me")
	raw := <-broadcasts

	if err := d.HandleBroadcast(context.Background(), raw, "me", conflict.New(), noopLog{}); err != nil {
		t.Fatalf("HandleBroadcast: %v", err)
	}
	if _, ok, _ := store.FetchByID(context.Background(), entitykind.Properties, "p1"); ok {
		t.Error("expected self-echoed broadcast to be dropped, not applied")
	}
}

func TestHandleBroadcastDropsInFlightForFilteredKind(t *testing.T) {
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	resolver := conflict.New()
	d := newDispatcher(store, remote, resolver)
	client := synctest.NewRealtimeClient()

	resolver.Mark(entitykind.Tasks, []string{"t1"})
	_, broadcasts, _, _ := client.Subscribe(context.Background())
	client.PushBroadcast(entitykind.Tasks, "update", map[string]any{"id": "t1", "title": "from someone else"}, "other-user")
	raw := <-broadcasts

	if err := d.HandleBroadcast(context.Background(), raw, "me", resolver, noopLog{}); err != nil {
		t.Fatalf("HandleBroadcast: %v", err)
	}
	if _, ok, _ := store.FetchByID(context.Background(), entitykind.Tasks, "t1"); ok {
		t.Error("expected in-flight task broadcast to be dropped")
	}
}

func TestHandleBroadcastAppliesUpsertForOtherUser(t *testing.T) {
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	resolver := conflict.New()
	d := newDispatcher(store, remote, resolver)
	client := synctest.NewRealtimeClient()

	_, broadcasts, _, _ := client.Subscribe(context.Background())
	client.PushBroadcast(entitykind.Properties, "insert", map[string]any{
		"id": "p1", "name": "New Property", "updatedAt": time.Now().Format(time.RFC3339Nano),
	}, "other-user")
	raw := <-broadcasts

	if err := d.HandleBroadcast(context.Background(), raw, "me", resolver, noopLog{}); err != nil {
		t.Fatalf("HandleBroadcast: %v", err)
	}
	row, ok, _ := store.FetchByID(context.Background(), entitykind.Properties, "p1")
	if !ok || row.Fields["name"] != "New Property" {
		t.Errorf("expected property upserted from broadcast, got ok=%v row=%v", ok, row)
	}
}

func TestHandleBroadcastDelete(t *testing.T) {
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	resolver := conflict.New()
	d := newDispatcher(store, remote, resolver)
	client := synctest.NewRealtimeClient()

	store.Seed(entitykind.Properties, ports.Row{Kind: entitykind.Properties, Fields: map[string]any{"id": "p1"}})

	_, broadcasts, _, _ := client.Subscribe(context.Background())
	client.PushBroadcast(entitykind.Properties, "delete", map[string]any{"id": "p1"}, "other-user")
	raw := <-broadcasts

	if err := d.HandleBroadcast(context.Background(), raw, "me", resolver, noopLog{}); err != nil {
		t.Fatalf("HandleBroadcast: %v", err)
	}
	if _, ok, _ := store.FetchByID(context.Background(), entitykind.Properties, "p1"); ok {
		t.Error("expected row removed by delete broadcast")
	}
}

func TestHandleBroadcastMalformedEnvelopeIsSwallowed(t *testing.T) {
	store := synctest.NewStore()
	remote := synctest.NewRemote()
	d := newDispatcher(store, remote, conflict.New())

	if err := d.HandleBroadcast(context.Background(), []byte("not json"), "me", conflict.New(), noopLog{}); err != nil {
		t.Fatalf("HandleBroadcast should swallow malformed input, got err: %v", err)
	}
}
