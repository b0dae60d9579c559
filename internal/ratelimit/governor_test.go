package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestGovernor_UnconfiguredGroupAndDirectionAreUnlimited(t *testing.T) {
	g := NewGovernor()
	start := time.Now()
	if err := g.Acquire(context.Background(), "default", Download, 10<<20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("expected unconfigured governor to never block, took %v", elapsed)
	}
}

func TestGovernor_DirectionCapIsTighterThanGroup(t *testing.T) {
	g := NewGovernor()
	g.SetGroupLimit("default", 1_000_000) // generous
	g.SetDirectionLimit(Download, 100)     // tight global ceiling

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := g.Acquire(ctx, "default", Download, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Acquire(ctx, "default", Download, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)

	// Second 100-byte acquire must wait for the direction bucket to refill
	// even though the group bucket had plenty of headroom.
	if elapsed < 500*time.Millisecond {
		t.Errorf("expected the direction cap to be binding, only waited %v", elapsed)
	}
}

func TestGovernor_GroupCapIsTighterThanDirection(t *testing.T) {
	g := NewGovernor()
	g.SetGroupLimit("leechers", 100)
	g.SetDirectionLimit(Upload, 1_000_000)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	g.Acquire(ctx, "leechers", Upload, 100)
	g.Acquire(ctx, "leechers", Upload, 100)
	elapsed := time.Since(start)

	if elapsed < 500*time.Millisecond {
		t.Errorf("expected the group cap to be binding, only waited %v", elapsed)
	}
}

func TestGovernor_DrainGroupForcesNextAcquireToWait(t *testing.T) {
	g := NewGovernor()
	g.SetGroupLimit("default", 100)
	g.DrainGroup("default")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := g.Acquire(ctx, "default", Download, 100); err == nil {
		t.Error("expected drained group to block past the short deadline")
	}
}
