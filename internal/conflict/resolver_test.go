package conflict

import (
	"testing"
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/models"
)

func TestMarkClearInFlight(t *testing.T) {
	r := New()
	if r.IsInFlight(entitykind.Tasks, "t1") {
		t.Fatal("t1 should not be in-flight before Mark")
	}
	r.Mark(entitykind.Tasks, []string{"t1", "t2"})
	if !r.IsInFlight(entitykind.Tasks, "t1") || !r.IsInFlight(entitykind.Tasks, "t2") {
		t.Fatal("t1 and t2 should be in-flight after Mark")
	}
	r.Clear(entitykind.Tasks)
	if r.IsInFlight(entitykind.Tasks, "t1") {
		t.Fatal("t1 should not be in-flight after Clear")
	}
}

func TestIsLocalAuthoritative(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier := base.Add(-time.Minute)
	later := base.Add(time.Minute)

	cases := []struct {
		name     string
		state    models.SyncState
		local    time.Time
		remote   time.Time
		inFlight bool
		want     bool
	}{
		{"in-flight always wins", models.SyncSynced, base, later, true, true},
		{"failed always wins", models.SyncFailed, earlier, later, false, true},
		{"synced never wins", models.SyncSynced, later, earlier, false, false},
		{"pending newer local wins", models.SyncPending, later, base, false, true},
		{"pending older local loses", models.SyncPending, earlier, base, false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := IsLocalAuthoritative(c.state, c.local, c.remote, c.inFlight)
			if got != c.want {
				t.Errorf("IsLocalAuthoritative(%v, %v, %v, %v) = %v, want %v",
					c.state, c.local, c.remote, c.inFlight, got, c.want)
			}
		})
	}
}
