// Package transfer implements the admission, scheduling, execution,
// persistence, and reporting of upload and download transfers described in
// §4.1: two independent per-direction schedulers drawing from group and
// global token buckets, a transfer FSM with typed terminal states, and
// synchronous snapshot persistence on every transition.
package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Direction distinguishes an upload (we send bytes to a peer) from a
// download (we receive bytes from a peer).
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// State is a transfer's position in the FSM described in §4.1. States whose
// name starts with "completed_" are terminal.
type State string

const (
	Requested          State = "requested"
	QueuedLocal        State = "queued_local"
	QueuedRemote       State = "queued_remote"
	Initializing       State = "initializing"
	InProgress         State = "in_progress"
	CompletedSucceeded State = "completed_succeeded"
	CompletedRejected  State = "completed_rejected"
	CompletedTimedOut  State = "completed_timed_out"
	CompletedErrored   State = "completed_errored"
	CompletedCancelled State = "completed_cancelled"
)

// Terminal reports whether s is one of the FSM's terminal states.
func (s State) Terminal() bool {
	switch s {
	case CompletedSucceeded, CompletedRejected, CompletedTimedOut, CompletedErrored, CompletedCancelled:
		return true
	default:
		return false
	}
}

// Transfer is a single upload or download tracked by the engine. All
// mutable fields are guarded by mu; callers only ever see a clone().
type Transfer struct {
	ID             string
	Direction      Direction
	Username       string // overlay counterparty
	Group          string // effective group for Username, fixed at enqueue
	RemoteFilename string
	LocalPath      string // resolved share path, or an agent ticket reference
	Size           int64

	mu               sync.Mutex
	state            State
	bytesTransferred int64
	speed            float64 // EMA, bytes/sec
	err              error

	enqueuedAt    time.Time
	startedAt     time.Time
	completedAt   time.Time
	lastPersistAt time.Time
	lastSpeedAt   time.Time
	lastSpeedN    int64

	cancel context.CancelFunc
}

func newTransfer(id string, dir Direction, username, group, remoteFilename, localPath string, size int64) *Transfer {
	return &Transfer{
		ID:             id,
		Direction:      dir,
		Username:       username,
		Group:          group,
		RemoteFilename: remoteFilename,
		LocalPath:      localPath,
		Size:           size,
		state:          Requested,
		enqueuedAt:     time.Now(),
	}
}

// State returns the transfer's current FSM state.
func (t *Transfer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Progress returns bytes transferred and the EMA transfer speed in bytes/sec.
func (t *Transfer) Progress() (bytesTransferred int64, speed float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytesTransferred, t.speed
}

// Err returns the failure cause, if the transfer ended in an errored state.
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// EnqueuedAt returns when the transfer was first admitted to the queue.
func (t *Transfer) EnqueuedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enqueuedAt
}

// setState transitions the transfer and stamps the appropriate timestamp.
// Every non-terminal state may move to CompletedCancelled; Rejected is only
// reachable from Requested; Errored/TimedOut only from Initializing or
// InProgress — callers enforce those rules, this just records the move.
func (t *Transfer) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
	now := time.Now()
	switch {
	case s == Initializing:
		t.startedAt = now
	case s.Terminal():
		t.completedAt = now
	}
}

func (t *Transfer) setErr(s State, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
	t.err = err
	t.completedAt = time.Now()
}

// addBytes advances the byte counter and recomputes the EMA speed, at most
// once every 100ms to keep the estimate from being dominated by small reads.
func (t *Transfer) addBytes(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bytesTransferred += n
	t.lastSpeedN += n

	now := time.Now()
	if t.lastSpeedAt.IsZero() {
		t.lastSpeedAt = now
		return
	}
	elapsed := now.Sub(t.lastSpeedAt).Seconds()
	if elapsed < 0.1 {
		return
	}
	instant := float64(t.lastSpeedN) / elapsed
	if t.speed == 0 {
		t.speed = instant
	} else {
		const alpha = 0.25
		t.speed = alpha*instant + (1-alpha)*t.speed
	}
	t.lastSpeedAt = now
	t.lastSpeedN = 0
}

// Snapshot is the durable, wire-safe view of a Transfer persisted by the
// engine's Store on every transition and every 5s of InProgress wall time.
type Snapshot struct {
	ID               string
	Direction        Direction
	Username         string
	Group            string
	RemoteFilename   string
	LocalPath        string
	Size             int64
	BytesTransferred int64
	State            State
	Err              string
	EnqueuedAt       time.Time
	StartedAt        time.Time
	CompletedAt      time.Time
}

func (t *Transfer) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	errMsg := ""
	if t.err != nil {
		errMsg = t.err.Error()
	}
	return Snapshot{
		ID:               t.ID,
		Direction:        t.Direction,
		Username:         t.Username,
		Group:            t.Group,
		RemoteFilename:   t.RemoteFilename,
		LocalPath:        t.LocalPath,
		Size:             t.Size,
		BytesTransferred: t.bytesTransferred,
		State:            t.state,
		Err:              errMsg,
		EnqueuedAt:       t.enqueuedAt,
		StartedAt:        t.startedAt,
		CompletedAt:      t.completedAt,
	}
}

func (t *Transfer) String() string {
	bytesTransferred, speed := t.Progress()
	return fmt.Sprintf("Transfer[%s %s %s->%s state=%s %d/%d @%.0fB/s]",
		t.ID, t.Direction, t.Username, t.RemoteFilename, t.State(), bytesTransferred, t.Size, speed)
}

func generateID() string {
	return "xfer-" + uuid.NewString()
}
