package transfer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/overlayd/overlayd/internal/errs"
	"github.com/overlayd/overlayd/internal/events"
	"github.com/overlayd/overlayd/internal/ratelimit"
	"github.com/overlayd/overlayd/internal/util/paths"
	"github.com/overlayd/overlayd/internal/validation"
)

// ShareResolver resolves a remote filename an upload was requested for to a
// local path, per the shared-file index (§4.2 Resolve). A NotFound-kind
// error means the file isn't shared.
type ShareResolver interface {
	Resolve(remoteFilename string) (localPath string, err error)
}

// BlacklistChecker reports whether a counterparty is blocked, per §6.
type BlacklistChecker interface {
	Blocked(username string) bool
}

// Config wires the engine's collaborators. Transport and Resolver are
// required; everything else has a workable zero value or default (a nil
// Store becomes NoopStore).
type Config struct {
	Transport   PeerTransport
	Resolver    ShareResolver // required to admit uploads
	Store       Store
	Groups      Groups
	Governor    *ratelimit.Governor
	Bus         *events.Bus
	Blacklist   BlacklistChecker
	Source      ByteSource // defaults to LocalFileSource
	Sink        ByteSink   // defaults to LocalFileSink
	DownloadDir string     // base directory downloads land under
	GlobalSlots int        // 0 = unlimited, per direction
	ResumePolicy
}

// Engine is the transfer engine described in §4.1: it owns every Transfer
// from Requested through a terminal state, two independent per-direction
// schedulers, and the bandwidth governor and slot accounting that decide
// when a queued transfer is admitted.
type Engine struct {
	cfg Config

	mu    sync.RWMutex
	byID  map[string]*Transfer
	order []string // stable creation order, for List()

	groupsMu sync.RWMutex // guards cfg.Groups, swapped on a Groups hot-reload
	groups   Groups

	schedulers map[Direction]*scheduler
	slots      map[Direction]*slotPool
}

// New constructs an Engine and starts its two scheduler loops. Call Resume
// before accepting new work if non-terminal transfers from a previous run
// should be reconciled.
func New(cfg Config) *Engine {
	if cfg.Source == nil {
		cfg.Source = LocalFileSource{}
	}
	if cfg.Sink == nil {
		cfg.Sink = LocalFileSink{}
	}
	if cfg.Store == nil {
		cfg.Store = NoopStore{}
	}
	if cfg.Groups == nil {
		cfg.Groups = NewStaticGroups(nil, nil, GroupPolicy{Name: "default", Mode: FirstInFirstOut})
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus(0)
	}
	if cfg.ResumePolicy == "" {
		cfg.ResumePolicy = ResumeErrored
	}

	e := &Engine{
		cfg:        cfg,
		groups:     cfg.Groups,
		byID:       make(map[string]*Transfer),
		schedulers: make(map[Direction]*scheduler),
		slots:      make(map[Direction]*slotPool),
	}
	for _, dir := range []Direction{Upload, Download} {
		e.slots[dir] = newSlotPool(cfg.GlobalSlots)
		s := newScheduler(dir, e)
		e.schedulers[dir] = s
		go s.run()
	}
	return e
}

// SetGroups swaps the scheduling policy used for transfers enqueued from
// now on. Transfers already queued or running keep the Group fixed at
// their own enqueue time.
func (e *Engine) SetGroups(groups Groups) {
	e.groupsMu.Lock()
	defer e.groupsMu.Unlock()
	e.groups = groups
}

func (e *Engine) activeGroups() Groups {
	e.groupsMu.RLock()
	defer e.groupsMu.RUnlock()
	return e.groups
}

// Stop halts both scheduler loops. It does not cancel in-flight transfers.
func (e *Engine) Stop() {
	for _, s := range e.schedulers {
		close(s.stop)
	}
}

// Resume loads non-terminal transfers left behind by a previous run and
// applies cfg.ResumePolicy to each: uploads always move straight to
// CompletedErrored("interrupted"); downloads are re-enqueued unless the
// policy is ResumeErrored (the default).
func (e *Engine) Resume() error {
	snapshots, err := e.cfg.Store.LoadNonTerminal()
	if err != nil {
		return err
	}
	for _, snap := range snapshots {
		if snap.Direction == Upload || e.cfg.ResumePolicy == ResumeErrored {
			t := newTransfer(snap.ID, snap.Direction, snap.Username, snap.Group, snap.RemoteFilename, snap.LocalPath, snap.Size)
			t.setErr(CompletedErrored, errs.New(errs.Internal, "interrupted"))
			e.track(t)
			e.persist(t)
			continue
		}
		// Download, requeue: re-run admission from QueuedLocal.
		t := newTransfer(snap.ID, snap.Direction, snap.Username, snap.Group, snap.RemoteFilename, snap.LocalPath, snap.Size)
		t.setState(QueuedLocal)
		e.track(t)
		e.persist(t)
		e.schedulers[Download].enqueue(t)
	}
	return nil
}

// Enqueue admits a new transfer request, per §4.1.
func (e *Engine) Enqueue(direction Direction, username, remoteFilename string, size int64) (*Transfer, error) {
	if e.cfg.Blacklist != nil && e.cfg.Blacklist.Blocked(username) {
		return nil, errs.New(errs.Blacklisted, "counterparty is blacklisted: "+username)
	}

	e.mu.RLock()
	for _, id := range e.order {
		t := e.byID[id]
		if t.Direction == direction && t.Username == username && t.RemoteFilename == remoteFilename && !t.State().Terminal() {
			e.mu.RUnlock()
			return nil, errs.New(errs.AlreadyExists, "already queued: "+remoteFilename)
		}
	}
	e.mu.RUnlock()

	id := generateID()

	var localPath string
	switch direction {
	case Upload:
		resolved, err := e.cfg.Resolver.Resolve(remoteFilename)
		if err != nil {
			return nil, errs.Wrap(errs.NotFound, err, "not shared: "+remoteFilename)
		}
		localPath = resolved
	case Download:
		if e.cfg.DownloadDir == "" {
			return nil, errs.New(errs.Configuration, "no download directory configured")
		}
		if err := validation.ValidateFilename(username); err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, err, "bad counterparty name")
		}
		candidate := filepath.Join(e.cfg.DownloadDir, username, filepath.Base(remoteFilename))
		if err := validation.ValidatePathInDirectory(candidate, e.cfg.DownloadDir); err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, err, "remote filename escapes download directory")
		}
		localPath = paths.ResolveCollision(candidate, e.claimedDownloadPaths(), id)
	default:
		return nil, errs.New(errs.InvalidArgument, "unknown direction")
	}

	group := e.activeGroups().Resolve(username).Name
	t := newTransfer(id, direction, username, group, remoteFilename, localPath, size)
	t.setState(QueuedLocal)

	e.track(t)
	e.persist(t)
	e.publish(events.EventTransferQueued, t, nil)
	e.schedulers[direction].enqueue(t)
	return t, nil
}

// claimedDownloadPaths returns the local paths already claimed by a
// non-terminal download, so a newly admitted one can be disambiguated
// against them before it starts writing.
func (e *Engine) claimedDownloadPaths() map[string]bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	claimed := make(map[string]bool, len(e.order))
	for _, id := range e.order {
		t := e.byID[id]
		if t.Direction == Download && !t.State().Terminal() {
			claimed[t.LocalPath] = true
		}
	}
	return claimed
}

func (e *Engine) track(t *Transfer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID[t.ID] = t
	e.order = append(e.order, t.ID)
}

// Cancel cancels a transfer by id. If remove is set the record is also
// dropped from List() immediately, without waiting for a running
// transfer's goroutine to observe the cancellation.
func (e *Engine) Cancel(direction Direction, username, id string, remove bool) error {
	e.mu.RLock()
	t, ok := e.byID[id]
	e.mu.RUnlock()
	if !ok || t.Direction != direction || t.Username != username {
		return errs.New(errs.NotFound, "transfer not found: "+id)
	}

	if !t.State().Terminal() {
		t.mu.Lock()
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		} else {
			// Never left QueuedLocal, so no goroutine will observe ctx.Done().
			t.setState(CompletedCancelled)
			e.persist(t)
			e.publish(events.EventTransferCancelled, t, nil)
			e.schedulers[direction].remove(id)
		}
	}

	if remove {
		e.mu.Lock()
		delete(e.byID, id)
		for i, oid := range e.order {
			if oid == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
		e.mu.Unlock()
	}
	return nil
}

// GetPlaceInQueue returns the 1-based position id would occupy if
// scheduling ran immediately with no further admissions.
func (e *Engine) GetPlaceInQueue(direction Direction, username, id string) (int, error) {
	return e.schedulers[direction].placeOf(username, id)
}

// List returns a stable-ordered snapshot of every transfer matching filter
// (nil matches everything) for the given direction.
func (e *Engine) List(direction Direction, filter func(*Transfer) bool) []Transfer {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Transfer
	for _, id := range e.order {
		t := e.byID[id]
		if t.Direction != direction {
			continue
		}
		if filter != nil && !filter(t) {
			continue
		}
		out = append(out, *t.clone())
	}
	return out
}

// CompletedDownloadCount returns how many downloads from username this
// engine has completed successfully, used as the "shared file count" proxy
// for the leecher-threshold check in StaticGroups.Resolve: the daemon has
// no channel to ask a peer its actual share count, so it falls back on its
// own history of successful transfers with that peer.
func (e *Engine) CompletedDownloadCount(username string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	count := 0
	for _, id := range e.order {
		t := e.byID[id]
		if t.Direction == Download && t.Username == username && t.State() == CompletedSucceeded {
			count++
		}
	}
	return count
}

// TotalUploadSpeed sums the current EMA transfer speed (bytes/sec) of every
// in-progress upload, for reporting to the overlay server via
// PeerProtocol.SendUploadSpeedAsync.
func (e *Engine) TotalUploadSpeed() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var total float64
	for _, id := range e.order {
		t := e.byID[id]
		if t.Direction != Upload || t.State().Terminal() {
			continue
		}
		_, speed := t.Progress()
		total += speed
	}
	return int64(total)
}

// clone copies the fields callers are allowed to read without holding t.mu,
// for safe use outside the engine.
func (t *Transfer) clone() *Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := *t
	c.mu = sync.Mutex{}
	return &c
}

// SubscribeProgress returns a channel of every transfer lifecycle and
// progress event the engine publishes.
func (e *Engine) SubscribeProgress() <-chan events.Event {
	return e.cfg.Bus.SubscribeAll()
}

func (e *Engine) persist(t *Transfer) {
	_ = e.cfg.Store.SaveSnapshot(t.snapshot())
}

func (e *Engine) publish(eventType events.EventType, t *Transfer, err error) {
	bytesTransferred, speed := t.Progress()
	e.cfg.Bus.Publish(&events.TransferEvent{
		BaseEvent: events.NewBaseEvent(eventType),
		TransferID: t.ID,
		Direction:  string(t.Direction),
		Username:   t.Username,
		Filename:   t.RemoteFilename,
		Size:       t.Size,
		Offset:     bytesTransferred,
		Speed:      speed,
		Err:        err,
	})
}

// classifyTransferErr maps a byte-stream error to a terminal state per
// §4.1 "Failure semantics" and spec.md:77 ("classified by the peer-protocol
// layer as TimedOut, Rejected, or Errored"): context cancellation maps to
// Cancelled; a deadline or an errs.Timeout-kind error (the transport timing
// out waiting on the peer) maps to TimedOut; an errs.PeerRejected-kind error
// (the peer declined the transfer) maps to Rejected; everything else is
// Errored.
func classifyTransferErr(err error) State {
	switch {
	case errors.Is(err, context.Canceled):
		return CompletedCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CompletedTimedOut
	}
	switch errs.KindOf(err) {
	case errs.Timeout:
		return CompletedTimedOut
	case errs.PeerRejected:
		return CompletedRejected
	default:
		return CompletedErrored
	}
}

func governorDirection(d Direction) ratelimit.Direction {
	if d == Upload {
		return ratelimit.Upload
	}
	return ratelimit.Download
}
