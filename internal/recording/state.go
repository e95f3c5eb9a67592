// Package recording holds the shared recording flag. One writer flips it;
// any number of readers either read the latest value or wait for a change.
package recording

import "sync"

// Snapshot is one observed value of the state.
type Snapshot struct {
	Recording bool
	// Session increments on every false to true transition, so two sessions
	// separated by a quick stop/start are never confused even if a reader
	// misses the intermediate false.
	Session uint64
	// Version increments on every Set, including redundant ones.
	Version uint64
}

// State is a watch cell for the recording flag. It is safe for concurrent use.
type State struct {
	mu     sync.Mutex
	snap   Snapshot
	notify chan struct{}
}

func New() *State {
	return &State{notify: make(chan struct{})}
}

// Set stores v and wakes all watchers. Setting the current value again is a
// no-op apart from the version bump.
func (s *State) Set(v bool) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v && !s.snap.Recording {
		s.snap.Session++
	}
	s.snap.Recording = v
	s.snap.Version++

	close(s.notify)
	s.notify = make(chan struct{})
	return s.snap
}

// Load returns the latest snapshot.
func (s *State) Load() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// IsRecording reports the latest value.
func (s *State) IsRecording() bool {
	return s.Load().Recording
}

func (s *State) wait() (Snapshot, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.notify
}

// Subscribe returns a Watcher that has already seen the current value.
func (s *State) Subscribe() *Watcher {
	snap, _ := s.wait()
	return &Watcher{state: s, seen: snap}
}

// Watcher tracks the last snapshot one reader has observed. A Watcher is not
// safe for concurrent use; give each reader its own.
type Watcher struct {
	state *State
	seen  Snapshot
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Changed returns a channel that is closed once the state differs from what
// this watcher last observed. It is already closed if a change is pending.
func (w *Watcher) Changed() <-chan struct{} {
	snap, notify := w.state.wait()
	if snap.Version != w.seen.Version {
		return closedCh
	}
	return notify
}

// Observe marks the latest snapshot as seen and reports whether the recording
// flag or session differ from the previously seen one.
func (w *Watcher) Observe() (Snapshot, bool) {
	snap := w.state.Load()
	changed := snap.Recording != w.seen.Recording || snap.Session != w.seen.Session
	w.seen = snap
	return snap, changed
}

// Peek returns the latest snapshot without marking it seen.
func (w *Watcher) Peek() Snapshot {
	return w.state.Load()
}

// Seen returns the last snapshot this watcher observed.
func (w *Watcher) Seen() Snapshot {
	return w.seen
}
