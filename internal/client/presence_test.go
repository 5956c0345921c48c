package client

import (
	"testing"
	"time"
)

func waitNames(t *testing.T, tr *TypingTracker, want int) []string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		names := tr.ActiveNames()
		if len(names) == want {
			return names
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("active set never reached %d entries (have %v)", want, tr.ActiveNames())
	return nil
}

func TestTrackerObserveAndExpire(t *testing.T) {
	tr := NewTypingTracker("self", 60*time.Millisecond, nil)
	defer tr.Stop()

	tr.Observe("u2", "bob")
	if names := tr.ActiveNames(); len(names) != 1 || names[0] != "bob" {
		t.Fatalf("names = %v", names)
	}
	waitNames(t, tr, 0)
}

func TestTrackerRepeatSignalExtendsNotStacks(t *testing.T) {
	tr := NewTypingTracker("self", 80*time.Millisecond, nil)
	defer tr.Stop()

	tr.Observe("u2", "bob")
	time.Sleep(50 * time.Millisecond)
	// Refresh just before expiry; bob must survive past the original
	// deadline and still be listed exactly once.
	tr.Observe("u2", "bob")
	time.Sleep(50 * time.Millisecond)

	if names := tr.ActiveNames(); len(names) != 1 {
		t.Fatalf("names = %v, want bob still present once", names)
	}
	waitNames(t, tr, 0)
}

func TestTrackerIgnoresSelf(t *testing.T) {
	tr := NewTypingTracker("self", time.Second, nil)
	defer tr.Stop()

	tr.Observe("self", "me")
	if names := tr.ActiveNames(); len(names) != 0 {
		t.Fatalf("own signal surfaced: %v", names)
	}
}

func TestTrackerClearOnMessage(t *testing.T) {
	changes := make(chan struct{}, 16)
	tr := NewTypingTracker("self", time.Minute, func() { changes <- struct{}{} })
	defer tr.Stop()

	tr.Observe("u2", "bob")
	tr.Observe("u3", "carol")
	if names := tr.ActiveNames(); len(names) != 2 || names[0] != "bob" {
		t.Fatalf("names = %v, want observation order", names)
	}

	tr.Clear("u2")
	if names := tr.ActiveNames(); len(names) != 1 || names[0] != "carol" {
		t.Fatalf("names = %v after clear", names)
	}
	// Clearing an absent user changes nothing.
	before := len(changes)
	tr.Clear("ghost")
	if len(changes) != before {
		t.Fatal("no-op clear fired onChange")
	}
}

func TestTrackerStopCancelsTimers(t *testing.T) {
	tr := NewTypingTracker("self", 30*time.Millisecond, nil)
	tr.Observe("u2", "bob")
	tr.Stop()

	if names := tr.ActiveNames(); len(names) != 0 {
		t.Fatalf("names = %v after stop", names)
	}
	tr.Observe("u3", "carol")
	if names := tr.ActiveNames(); len(names) != 0 {
		t.Fatal("stopped tracker accepted an observation")
	}
}
