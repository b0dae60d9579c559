package transfer

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/overlayd/overlayd/internal/errs"
	"github.com/overlayd/overlayd/internal/events"
	"github.com/overlayd/overlayd/internal/util/buffers"
)

// scheduler is one direction's admission loop (§4.1 "Scheduling"): it holds
// every transfer in QueuedLocal for its direction and, on each admission
// event, walks groups in descending priority order admitting candidates
// until slots or bandwidth run out.
type scheduler struct {
	dir    Direction
	engine *Engine

	mu           sync.Mutex
	queued       []*Transfer
	lastServedAt map[string]time.Time // per username, for round-robin fairness

	wake chan struct{}
	stop chan struct{}
}

func newScheduler(dir Direction, e *Engine) *scheduler {
	return &scheduler{
		dir:          dir,
		engine:       e,
		lastServedAt: make(map[string]time.Time),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
}

func (s *scheduler) run() {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		case <-ticker.C:
		}
		s.admit()
	}
}

func (s *scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *scheduler) enqueue(t *Transfer) {
	s.mu.Lock()
	s.queued = append(s.queued, t)
	s.mu.Unlock()
	s.signal()
}

// remove drops a transfer from the queue without admitting it (used when a
// still-queued transfer is cancelled).
func (s *scheduler) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.queued {
		if t.ID == id {
			s.queued = append(s.queued[:i], s.queued[i+1:]...)
			return
		}
	}
}

// placeOf returns the 1-based position id would be admitted in if
// scheduling ran right now, per §4.1's definition: a single simulated pass
// over the current queue contents, no bandwidth check (admission order, not
// admission feasibility).
func (s *scheduler) placeOf(username, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.simulateOrder()
	for i, t := range order {
		if t.ID == id && t.Username == username {
			return i + 1, nil
		}
	}
	return 0, errs.New(errs.NotFound, "transfer not queued: "+id)
}

// simulateOrder walks the same group/picking logic as admit but only to
// determine order, consuming a scratch copy of lastServedAt so repeated
// calls to placeOf don't perturb real fairness bookkeeping.
func (s *scheduler) simulateOrder() []*Transfer {
	lastServed := make(map[string]time.Time, len(s.lastServedAt))
	for k, v := range s.lastServedAt {
		lastServed[k] = v
	}

	byGroup := make(map[string][]*Transfer)
	for _, t := range s.queued {
		byGroup[t.Group] = append(byGroup[t.Group], t)
	}

	var order []*Transfer
	for _, gp := range s.engine.activeGroups().All() {
		candidates := byGroup[gp.Name]
		for len(candidates) > 0 {
			idx := pickIndex(gp, candidates, lastServed)
			if idx < 0 {
				break
			}
			chosen := candidates[idx]
			order = append(order, chosen)
			lastServed[chosen.Username] = time.Now()
			candidates = append(candidates[:idx], candidates[idx+1:]...)
		}
	}
	return order
}

// pickIndex selects the next candidate to admit from a single group's
// queued transfers, per the group's scheduling mode.
func pickIndex(gp GroupPolicy, candidates []*Transfer, lastServed map[string]time.Time) int {
	if len(candidates) == 0 {
		return -1
	}
	if gp.Mode == RoundRobin {
		best := 0
		for i := 1; i < len(candidates); i++ {
			bi, ci := candidates[best], candidates[i]
			lb, lc := lastServed[bi.Username], lastServed[ci.Username]
			switch {
			case lc.Before(lb):
				best = i
			case lc.Equal(lb) && ci.EnqueuedAt().Before(bi.EnqueuedAt()):
				best = i
			}
		}
		return best
	}
	// FirstInFirstOut: smallest enqueuedAt globally within the group.
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].EnqueuedAt().Before(candidates[best].EnqueuedAt()) {
			best = i
		}
	}
	return best
}

// admit runs one scheduling pass: for each group in priority order, keep
// admitting candidates while slots and bandwidth allow.
func (s *scheduler) admit() {
	s.mu.Lock()
	byGroup := make(map[string][]*Transfer)
	for _, t := range s.queued {
		byGroup[t.Group] = append(byGroup[t.Group], t)
	}

	var toAdmit []*Transfer
	for _, gp := range s.engine.activeGroups().All() {
		candidates := byGroup[gp.Name]
		s.engine.slots[s.dir].setGroupLimit(gp.Name, gp.SlotLimit)
		for {
			idx := pickIndex(gp, candidates, s.lastServedAt)
			if idx < 0 {
				break
			}
			cand := candidates[idx]

			if s.engine.cfg.Governor != nil && !s.engine.cfg.Governor.HasBudget(gp.Name, governorDirection(s.dir)) {
				break
			}
			if !s.engine.slots[s.dir].tryAcquire(cand.ID, gp.Name) {
				break
			}

			toAdmit = append(toAdmit, cand)
			s.lastServedAt[cand.Username] = time.Now()
			candidates = append(candidates[:idx], candidates[idx+1:]...)
		}
		byGroup[gp.Name] = candidates
	}

	// Rebuild s.queued from whatever remains in byGroup, preserving relative
	// order within each group bucket.
	remaining := s.queued[:0:0]
	admitted := make(map[string]bool, len(toAdmit))
	for _, t := range toAdmit {
		admitted[t.ID] = true
	}
	for _, t := range s.queued {
		if !admitted[t.ID] {
			remaining = append(remaining, t)
		}
	}
	s.queued = remaining
	s.mu.Unlock()

	for _, t := range toAdmit {
		s.engine.start(t)
	}
}

// start transitions an admitted transfer to Initializing and spawns its
// execution goroutine.
func (e *Engine) start(t *Transfer) {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	t.setState(Initializing)
	e.persist(t)
	e.publish(events.EventTransferInitializing, t, nil)

	go e.execute(ctx, t)
}

// execute copies bytes from the transfer's source to its sink, governed by
// the bandwidth governor, until EOF, cancellation, or a stream error.
func (e *Engine) execute(ctx context.Context, t *Transfer) {
	defer e.slots[t.Direction].release(t.ID)
	defer e.schedulers[t.Direction].signal()

	src, sink, err := e.openStreams(ctx, t)
	if err != nil {
		t.setErr(classifyTransferErr(err), err)
		e.persist(t)
		e.publish(events.EventTransferFailed, t, err)
		return
	}
	defer src.Close()
	defer sink.Close()

	bufPtr := buffers.Get()
	defer buffers.Put(bufPtr)
	buf := *bufPtr
	first := true
	lastPersist := time.Now()

	for {
		select {
		case <-ctx.Done():
			t.setState(CompletedCancelled)
			e.persist(t)
			e.publish(events.EventTransferCancelled, t, nil)
			return
		default:
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if e.cfg.Governor != nil {
				if gerr := e.cfg.Governor.Acquire(ctx, t.Group, governorDirection(t.Direction), int64(n)); gerr != nil {
					t.setErr(classifyTransferErr(gerr), gerr)
					e.persist(t)
					e.publish(events.EventTransferFailed, t, gerr)
					return
				}
			}
			if _, werr := sink.Write(buf[:n]); werr != nil {
				t.setErr(classifyTransferErr(werr), werr)
				e.persist(t)
				e.publish(events.EventTransferFailed, t, werr)
				return
			}
			t.addBytes(int64(n))
			if first {
				t.setState(InProgress)
				e.publish(events.EventTransferStarted, t, nil)
				first = false
			} else {
				e.publish(events.EventTransferProgress, t, nil)
			}
			if time.Since(lastPersist) >= 5*time.Second {
				e.persist(t)
				lastPersist = time.Now()
			}
		}

		if rerr == io.EOF {
			t.setState(CompletedSucceeded)
			e.persist(t)
			e.publish(events.EventTransferCompleted, t, nil)
			return
		}
		if rerr != nil {
			t.setErr(classifyTransferErr(rerr), rerr)
			e.persist(t)
			e.publish(events.EventTransferFailed, t, rerr)
			return
		}
	}
}

// openStreams resolves the source and sink for a transfer based on
// direction: an upload reads the local (or agent-backed) file and writes to
// the overlay peer; a download reads the overlay peer and writes locally.
func (e *Engine) openStreams(ctx context.Context, t *Transfer) (io.ReadCloser, io.WriteCloser, error) {
	switch t.Direction {
	case Upload:
		src, err := e.cfg.Source.Open(ctx, t)
		if err != nil {
			return nil, nil, err
		}
		sink, err := e.cfg.Transport.OpenUploadStream(ctx, t.Username, t.RemoteFilename, t.Size)
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		return src, sink, nil
	default:
		src, err := e.cfg.Transport.OpenDownloadStream(ctx, t.Username, t.RemoteFilename)
		if err != nil {
			return nil, nil, err
		}
		sink, err := e.cfg.Sink.Open(ctx, t)
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		return src, sink, nil
	}
}
