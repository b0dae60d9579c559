package transfer

import "testing"

func TestSlotPool_GlobalLimit(t *testing.T) {
	p := newSlotPool(2)

	if !p.tryAcquire("t1", "a") {
		t.Fatal("expected first acquire to succeed")
	}
	if !p.tryAcquire("t2", "b") {
		t.Fatal("expected second acquire to succeed")
	}
	if p.tryAcquire("t3", "c") {
		t.Fatal("expected third acquire to fail, global limit is 2")
	}

	p.release("t1")
	if !p.tryAcquire("t3", "c") {
		t.Fatal("expected acquire to succeed after a release")
	}
}

func TestSlotPool_Unlimited(t *testing.T) {
	p := newSlotPool(0)
	for i := 0; i < 50; i++ {
		if !p.tryAcquire(string(rune('a'+i%26))+"-unique", "group") {
			t.Fatalf("expected unlimited pool to admit transfer %d", i)
		}
	}
}

func TestSlotPool_GroupLimit(t *testing.T) {
	p := newSlotPool(0)
	p.setGroupLimit("limited", 1)

	if !p.tryAcquire("t1", "limited") {
		t.Fatal("expected first acquire in group to succeed")
	}
	if p.tryAcquire("t2", "limited") {
		t.Fatal("expected second acquire in a group at its limit to fail")
	}
	if !p.tryAcquire("t3", "other") {
		t.Fatal("expected a different group to be unaffected")
	}
}

func TestSlotPool_ReleaseUnknownIsNoop(t *testing.T) {
	p := newSlotPool(1)
	p.release("never-acquired")
	if !p.tryAcquire("t1", "a") {
		t.Fatal("releasing an unknown id should not corrupt accounting")
	}
}

func TestSlotPool_Stats(t *testing.T) {
	p := newSlotPool(3)
	p.tryAcquire("t1", "a")
	p.tryAcquire("t2", "a")

	stats := p.stats()
	if stats.GlobalLimit != 3 || stats.GlobalInUse != 2 {
		t.Errorf("expected limit=3 inUse=2, got %+v", stats)
	}
}
