package recording

import (
	"sync"
	"testing"
	"time"
)

func TestSetBumpsSessionOnlyOnRisingEdge(t *testing.T) {
	s := New()

	if snap := s.Set(true); snap.Session != 1 || !snap.Recording {
		t.Fatalf("unexpected snapshot after first begin: %+v", snap)
	}
	if snap := s.Set(true); snap.Session != 1 {
		t.Fatalf("double begin started a new session: %+v", snap)
	}
	if snap := s.Set(false); snap.Session != 1 || snap.Recording {
		t.Fatalf("unexpected snapshot after end: %+v", snap)
	}
	if snap := s.Set(false); snap.Session != 1 {
		t.Fatalf("redundant end changed session: %+v", snap)
	}
	if snap := s.Set(true); snap.Session != 2 {
		t.Fatalf("expected session 2, got %+v", snap)
	}
	if s.Load().Version != 5 {
		t.Fatalf("version = %d, want 5", s.Load().Version)
	}
}

func TestWatcherChangedFiresOnSet(t *testing.T) {
	s := New()
	w := s.Subscribe()

	select {
	case <-w.Changed():
		t.Fatal("fresh watcher should not see a change")
	default:
	}

	done := make(chan struct{})
	go func() {
		<-w.Changed()
		close(done)
	}()

	s.Set(true)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher was not woken")
	}

	snap, changed := w.Observe()
	if !changed || !snap.Recording {
		t.Fatalf("Observe() = %+v, %v", snap, changed)
	}

	select {
	case <-w.Changed():
		t.Fatal("observed watcher should not report a pending change")
	default:
	}
}

func TestWatcherSeesCoalescedSessions(t *testing.T) {
	s := New()
	w := s.Subscribe()

	s.Set(true)
	w.Observe()

	// End and begin again before the reader looks.
	s.Set(false)
	s.Set(true)

	snap, changed := w.Observe()
	if !changed {
		t.Fatal("expected a change for the new session")
	}
	if !snap.Recording || snap.Session != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestRedundantSetIsNotALogicalChange(t *testing.T) {
	s := New()
	w := s.Subscribe()

	s.Set(false)
	select {
	case <-w.Changed():
	default:
		t.Fatal("expected Changed to fire on any Set")
	}
	if _, changed := w.Observe(); changed {
		t.Fatal("false to false should not be a logical change")
	}
}

func TestIndependentWatchers(t *testing.T) {
	s := New()
	a, b := s.Subscribe(), s.Subscribe()

	s.Set(true)
	if _, changed := a.Observe(); !changed {
		t.Fatal("watcher a missed the change")
	}
	select {
	case <-b.Changed():
	default:
		t.Fatal("watcher b should still see the pending change")
	}
	if b.Peek().Recording != true || b.Seen().Recording {
		t.Fatal("Peek should not mark the snapshot seen")
	}
}

func TestConcurrentSetAndObserve(t *testing.T) {
	s := New()
	w := s.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			s.Set(i%2 == 0)
		}
	}()

	var last uint64
	for s.Load().Version < 1000 {
		<-w.Changed()
		snap, _ := w.Observe()
		if snap.Session < last {
			t.Fatalf("session went backwards: %d -> %d", last, snap.Session)
		}
		last = snap.Session
	}
	wg.Wait()

	if got := s.Load().Session; got != 500 {
		t.Fatalf("session = %d, want 500", got)
	}
}
