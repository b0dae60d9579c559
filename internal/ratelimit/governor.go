package ratelimit

import (
	"context"
	"fmt"
	"sync"
)

// Direction identifies which global bucket a transfer draws from.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// Governor is the transfer engine's bandwidth governance layer: one
// Limiter per user group, and one Limiter per direction acting as the
// final process-wide cap. Acquire draws from the group bucket first and
// then from the direction bucket, so the global ceiling is the binding
// constraint whenever it is tighter than the group's own rate.
type Governor struct {
	mu        sync.Mutex
	groups    map[string]*Limiter
	direction map[Direction]*Limiter
}

// NewGovernor creates an empty Governor. Direction limiters are created
// lazily via SetDirectionLimit; until set, a direction has no cap.
func NewGovernor() *Governor {
	return &Governor{
		groups:    make(map[string]*Limiter),
		direction: make(map[Direction]*Limiter),
	}
}

// SetGroupLimit creates or reconfigures the named group's token bucket.
// bytesPerSecond <= 0 means unlimited.
func (g *Governor) SetGroupLimit(group string, bytesPerSecond float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.groups[group]
	if !ok {
		if bytesPerSecond <= 0 {
			l = Unlimited()
		} else {
			l = New(bytesPerSecond, bytesPerSecond) // capacity = rate × 1s
		}
		g.groups[group] = l
		return
	}
	l.Reconfigure(bytesPerSecond, bytesPerSecond)
}

// SetDirectionLimit creates or reconfigures the process-wide cap for a
// direction. bytesPerSecond <= 0 means unlimited.
func (g *Governor) SetDirectionLimit(dir Direction, bytesPerSecond float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.direction[dir]
	if !ok {
		if bytesPerSecond <= 0 {
			l = Unlimited()
		} else {
			l = New(bytesPerSecond, bytesPerSecond)
		}
		g.direction[dir] = l
		return
	}
	l.Reconfigure(bytesPerSecond, bytesPerSecond)
}

func (g *Governor) groupLimiter(group string) *Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.groups[group]
	if !ok {
		l = Unlimited()
		g.groups[group] = l
	}
	return l
}

func (g *Governor) directionLimiter(dir Direction) *Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.direction[dir]
	if !ok {
		l = Unlimited()
		g.direction[dir] = l
	}
	return l
}

// Acquire drains n bytes from both the named group's bucket and the
// direction's global bucket, suspending the caller (a transfer's byte
// stream) until both have tokens. The direction bucket is the final cap:
// it is always consulted, regardless of how generous the group's own rate
// is. Partial reads are expected — callers call Acquire once per chunk
// read from the wire, not once for the whole file.
func (g *Governor) Acquire(ctx context.Context, group string, dir Direction, n int64) error {
	if err := g.groupLimiter(group).AcquireN(ctx, float64(n)); err != nil {
		return fmt.Errorf("group %q bandwidth wait: %w", group, err)
	}
	if err := g.directionLimiter(dir).AcquireN(ctx, float64(n)); err != nil {
		return fmt.Errorf("%s bandwidth wait: %w", dir, err)
	}
	return nil
}

// DrainGroup empties a group's bucket immediately — used when a group is
// suspended by the operator.
func (g *Governor) DrainGroup(group string) {
	g.groupLimiter(group).Drain()
}

// HasBudget reports whether group's bucket and dir's bucket both currently
// have a positive remainder, without consuming any tokens. The scheduler
// uses this as its non-blocking admission check (§4.1: "bandwidth budget
// for the group has a positive remainder in the current 250ms bucket").
func (g *Governor) HasBudget(group string, dir Direction) bool {
	return g.groupLimiter(group).CurrentTokens() > 0 && g.directionLimiter(dir).CurrentTokens() > 0
}
