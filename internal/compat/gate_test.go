package compat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brightfield-crm/syncengine/internal/ports"
)

type fakeClient struct {
	status ports.CompatStatus
	err    error
	calls  int
}

func (f *fakeClient) CheckVersionCompat(ctx context.Context, platform, clientVersion string) (ports.CompatStatus, error) {
	f.calls++
	return f.status, f.err
}

func TestCheckThrottlesToOncePerInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &now
	client := &fakeClient{status: ports.CompatCompatible}
	g := New(client, ports.ClockFunc(func() time.Time { return *clock }), "ios", "1.0.0")

	if _, ok := g.Check(context.Background()); !ok {
		t.Fatal("expected canProceed = true for compatible status")
	}
	if _, ok := g.Check(context.Background()); !ok {
		t.Fatal("expected canProceed = true on a throttled re-check")
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (second check within the window should be throttled)", client.calls)
	}

	*clock = clock.Add(3601 * time.Second)
	g.Check(context.Background())
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2 after the throttle window elapses", client.calls)
	}
}

func TestUpdateRequiredBlocksSync(t *testing.T) {
	client := &fakeClient{status: ports.CompatUpdateRequired}
	g := New(client, nil, "ios", "0.1.0")

	status, ok := g.Check(context.Background())
	if status != ports.CompatUpdateRequired {
		t.Errorf("status = %v, want CompatUpdateRequired", status)
	}
	if ok {
		t.Error("canProceed = true, want false when an update is required")
	}
}

func TestUpdateAvailableDoesNotBlockSync(t *testing.T) {
	client := &fakeClient{status: ports.CompatUpdateAvailable}
	g := New(client, nil, "ios", "0.9.0")

	_, ok := g.Check(context.Background())
	if !ok {
		t.Error("canProceed = false, want true for update-available (non-blocking)")
	}
}

func TestNetworkErrorFailsOpen(t *testing.T) {
	client := &fakeClient{err: errors.New("network down")}
	g := New(client, nil, "ios", "1.0.0")

	status, ok := g.Check(context.Background())
	if status != ports.CompatUnknown {
		t.Errorf("status = %v, want CompatUnknown on network error", status)
	}
	if !ok {
		t.Error("canProceed = false, want true (fail-open) on network error")
	}
}
