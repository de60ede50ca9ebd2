package breaker

import (
	"testing"
	"time"
)

func TestTripAfterFiveFailures(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New(func() time.Time { return now })

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		if b.State() != Closed {
			t.Fatalf("after %d failures, state = %v, want Closed", i+1, b.State())
		}
	}
	b.RecordFailure() // 5th
	if b.State() != Open {
		t.Fatalf("after 5 failures, state = %v, want Open", b.State())
	}
	if b.ShouldAllowSync() {
		t.Error("ShouldAllowSync() = true immediately after trip, want false")
	}
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &now
	b := New(func() time.Time { return *clock })

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want Open", b.State())
	}

	*clock = clock.Add(31 * time.Second)
	if !b.ShouldAllowSync() {
		t.Fatal("ShouldAllowSync() = false after cooldown elapsed, want true")
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}

	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("state = %v, want Closed", b.State())
	}
	if b.TripCount() != 0 {
		t.Fatalf("trip count = %d, want 0 after recovery", b.TripCount())
	}
}

func TestEscalatingCooldownOnRepeatedTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &now
	b := New(func() time.Time { return *clock })

	trip := func() {
		for i := 0; i < 5; i++ {
			b.RecordFailure()
		}
	}

	trip()
	if b.TripCount() != 1 {
		t.Fatalf("trip count = %d, want 1", b.TripCount())
	}
	*clock = clock.Add(31 * time.Second)
	if !b.ShouldAllowSync() {
		t.Fatal("expected half-open probe allowed after 30s cooldown")
	}
	// Probe fails -> re-open with escalated (60s) cooldown.
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("state = %v, want Open after half-open failure", b.State())
	}
	if b.TripCount() != 2 {
		t.Fatalf("trip count = %d, want 2", b.TripCount())
	}

	*clock = clock.Add(31 * time.Second)
	if b.ShouldAllowSync() {
		t.Fatal("ShouldAllowSync() = true after only 31s on a 60s cooldown, want false")
	}
	*clock = clock.Add(30 * time.Second) // total 61s
	if !b.ShouldAllowSync() {
		t.Fatal("ShouldAllowSync() = false after 61s on a 60s cooldown, want true")
	}
}

func TestCooldownCapsAtMax(t *testing.T) {
	if got := cooldownForTrip(1); got != 30*time.Second {
		t.Errorf("cooldownForTrip(1) = %v, want 30s", got)
	}
	if got := cooldownForTrip(4); got != 240*time.Second {
		t.Errorf("cooldownForTrip(4) = %v, want 240s", got)
	}
	if got := cooldownForTrip(5); got != 300*time.Second {
		t.Errorf("cooldownForTrip(5) = %v, want 300s (capped)", got)
	}
	if got := cooldownForTrip(20); got != 300*time.Second {
		t.Errorf("cooldownForTrip(20) = %v, want 300s (capped)", got)
	}
}

func TestStateChangeSignal(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New(func() time.Time { return now })

	var seen []State
	b.OnStateChange(func(s State) { seen = append(seen, s) })

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if len(seen) != 1 || seen[0] != Open {
		t.Fatalf("state changes = %v, want [Open]", seen)
	}
}
