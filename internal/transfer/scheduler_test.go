package transfer

import (
	"testing"
	"time"
)

func newQueuedTransfer(username, group string, enqueuedAt time.Time) *Transfer {
	t := newTransfer("id-"+username+"-"+enqueuedAt.String(), Upload, username, group, "f.bin", "/tmp/f.bin", 10)
	t.enqueuedAt = enqueuedAt
	return t
}

func TestPickIndex_FirstInFirstOut_PicksOldestEnqueued(t *testing.T) {
	base := time.Now()
	gp := GroupPolicy{Name: "default", Mode: FirstInFirstOut}
	candidates := []*Transfer{
		newQueuedTransfer("bob", "default", base.Add(2*time.Second)),
		newQueuedTransfer("alice", "default", base),
		newQueuedTransfer("carol", "default", base.Add(1*time.Second)),
	}

	idx := pickIndex(gp, candidates, map[string]time.Time{})
	if candidates[idx].Username != "alice" {
		t.Errorf("expected FIFO to pick the oldest-enqueued transfer (alice), got %s", candidates[idx].Username)
	}
}

func TestPickIndex_RoundRobin_PrefersLeastRecentlyServed(t *testing.T) {
	base := time.Now()
	gp := GroupPolicy{Name: "default", Mode: RoundRobin}
	candidates := []*Transfer{
		newQueuedTransfer("alice", "default", base),
		newQueuedTransfer("bob", "default", base),
	}
	lastServed := map[string]time.Time{
		"alice": base,                      // served recently
		"bob":   base.Add(-10 * time.Second), // served longer ago
	}

	idx := pickIndex(gp, candidates, lastServed)
	if candidates[idx].Username != "bob" {
		t.Errorf("expected round-robin to prefer the least-recently-served user (bob), got %s", candidates[idx].Username)
	}
}

func TestPickIndex_RoundRobin_TiebreaksOnEnqueuedAt(t *testing.T) {
	base := time.Now()
	gp := GroupPolicy{Name: "default", Mode: RoundRobin}
	candidates := []*Transfer{
		newQueuedTransfer("alice", "default", base.Add(1*time.Second)),
		newQueuedTransfer("bob", "default", base),
	}
	// Neither has ever been served; both map to the zero time.
	idx := pickIndex(gp, candidates, map[string]time.Time{})
	if candidates[idx].Username != "bob" {
		t.Errorf("expected a tie on lastServed to break toward earlier enqueuedAt (bob), got %s", candidates[idx].Username)
	}
}

func TestScheduler_SimulateOrder_DoesNotMutateRealFairnessState(t *testing.T) {
	e := New(Config{Resolver: &fakeResolver{}, Transport: &fakeTransport{}})
	defer e.Stop()

	s := e.schedulers[Upload]
	s.lastServedAt["alice"] = time.Now().Add(-time.Minute)

	t1 := newQueuedTransfer("alice", "default", time.Now())
	s.enqueue(t1)
	// Give the background scheduler goroutine no chance to admit (no slots
	// configured means it would admit immediately); call placeOf directly to
	// exercise simulateOrder against the queue snapshot instead.
	s.mu.Lock()
	before := s.lastServedAt["alice"]
	_ = s.simulateOrder()
	after := s.lastServedAt["alice"]
	s.mu.Unlock()

	if !before.Equal(after) {
		t.Error("simulateOrder must not mutate the scheduler's real lastServedAt bookkeeping")
	}
}
