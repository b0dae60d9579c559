// Package statestore holds the single immutable snapshot of derived runtime
// state that the control socket and CLI read from: overlay connectivity,
// share-scan progress, daemon version, and pending-action flags. Updates
// are atomic swap-and-broadcast — a writer builds the next Snapshot value
// in full, swaps it in under a pointer, and every subscriber receives the
// new snapshot. Readers never observe a partially-updated snapshot.
package statestore

import (
	"sync"
	"sync/atomic"
	"time"
)

// Connectivity mirrors the overlay session controller's coarse state, for
// display purposes (the controller's own FSM carries the authoritative,
// finer-grained state).
type Connectivity string

const (
	Disconnected Connectivity = "disconnected"
	Connecting   Connectivity = "connecting"
	Connected    Connectivity = "connected"
	LoggingIn    Connectivity = "logging_in"
	LoggedIn     Connectivity = "logged_in"
)

// ShareScan reports the shared-file index's current Refill progress.
type ShareScan struct {
	Filling      bool
	FillProgress float64 // 0..1
	Directories  int
	Files        int
	Faulted      bool
}

// Snapshot is the full observable state of the running daemon at one point
// in time. Snapshot values are never mutated after being published — every
// change produces a new Snapshot.
type Snapshot struct {
	Connectivity   Connectivity
	Version        string
	ShareScan      ShareScan
	PendingActions []string
	UpdatedAt      time.Time
}

// Store holds the current Snapshot behind an atomic pointer and fans out
// every update to subscribers.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu   sync.Mutex
	subs []chan Snapshot
}

// New creates a Store seeded with an initial, disconnected snapshot.
func New(version string) *Store {
	s := &Store{}
	s.current.Store(&Snapshot{
		Connectivity: Disconnected,
		Version:      version,
		UpdatedAt:    time.Now(),
	})
	return s
}

// Current returns the current snapshot. The returned value is safe to read
// without synchronization — it is never mutated in place.
func (s *Store) Current() Snapshot {
	return *s.current.Load()
}

// Update applies mutate to a copy of the current snapshot, stamps
// UpdatedAt, atomically swaps it in, and broadcasts the new snapshot to
// every subscriber. mutate must not retain the pointer it is given.
func (s *Store) Update(mutate func(*Snapshot)) Snapshot {
	prev := s.current.Load()
	next := *prev
	mutate(&next)
	next.UpdatedAt = time.Now()
	s.current.Store(&next)
	s.broadcast(next)
	return next
}

// Subscribe returns a channel that receives every snapshot published after
// the call, buffered by 1: a slow subscriber sees only the latest snapshot
// rather than blocking publishers or queuing stale ones.
func (s *Store) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes ch from the subscriber list.
func (s *Store) Unsubscribe(ch <-chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.subs {
		if c == ch {
			s.subs[i] = s.subs[len(s.subs)-1]
			s.subs = s.subs[:len(s.subs)-1]
			break
		}
	}
}

func (s *Store) broadcast(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
			// Drop the stale snapshot so the fresh one takes its slot.
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
