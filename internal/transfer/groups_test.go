package transfer

import "testing"

func TestStaticGroups_ResolveMembership(t *testing.T) {
	g := NewStaticGroups(
		[]GroupPolicy{
			{Name: "vip", Priority: 10, Mode: RoundRobin},
			{Name: "default", Priority: 0, Mode: FirstInFirstOut},
		},
		map[string]string{"alice": "vip"},
		GroupPolicy{Name: "default", Priority: 0, Mode: FirstInFirstOut},
	)

	if got := g.Resolve("alice").Name; got != "vip" {
		t.Errorf("expected alice in vip, got %s", got)
	}
	if got := g.Resolve("stranger").Name; got != "default" {
		t.Errorf("expected unmatched username to fall back to default, got %s", got)
	}
}

func TestStaticGroups_PriorityOrder(t *testing.T) {
	g := NewStaticGroups(
		[]GroupPolicy{
			{Name: "low", Priority: 1},
			{Name: "high", Priority: 100},
			{Name: "mid", Priority: 50},
		},
		nil,
		GroupPolicy{Name: "default"},
	)

	all := g.All()
	var names []string
	for _, p := range all {
		names = append(names, p.Name)
	}
	want := []string{"high", "mid", "low", "default"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected priority order %v, got %v", want, names)
			break
		}
	}
}

func TestStaticGroups_FallbackNotDuplicated(t *testing.T) {
	g := NewStaticGroups(
		[]GroupPolicy{{Name: "default", Priority: 5}},
		nil,
		GroupPolicy{Name: "default", Priority: 5},
	)
	all := g.All()
	if len(all) != 1 {
		t.Fatalf("expected fallback already present in policies to not be duplicated, got %d entries", len(all))
	}
}

func TestStaticGroups_EmptyConfig_StillExposesFallback(t *testing.T) {
	g := NewStaticGroups(nil, nil, GroupPolicy{Name: "default", Mode: FirstInFirstOut})
	all := g.All()
	if len(all) != 1 || all[0].Name != "default" {
		t.Fatalf("expected a zero-configuration Groups to still expose its fallback in All(), got %v", all)
	}
}

func newThreeTierGroups() *StaticGroups {
	return NewStaticGroups(
		[]GroupPolicy{
			{Name: "vip", Priority: 100},
			{Name: "leechers", Priority: 10},
			{Name: "default", Priority: 50},
		},
		map[string]string{"alice": "vip"},
		GroupPolicy{Name: "default", Priority: 50},
	)
}

func TestStaticGroups_ExplicitMembershipWinsOverThreshold(t *testing.T) {
	g := newThreeTierGroups()
	g.SetLeecherThreshold(5, func(string) int { return 0 })

	if got := g.Resolve("alice").Name; got != "vip" {
		t.Errorf("expected explicit membership to win over the leecher check, got %s", got)
	}
}

func TestStaticGroups_UnmatchedBelowThresholdResolvesToLeechers(t *testing.T) {
	g := newThreeTierGroups()
	g.SetLeecherThreshold(5, func(username string) int {
		if username == "newbie" {
			return 1
		}
		return 100
	})

	if got := g.Resolve("newbie").Name; got != "leechers" {
		t.Errorf("expected below-threshold unmatched username to resolve to leechers, got %s", got)
	}
}

func TestStaticGroups_UnmatchedAboveThresholdFallsBackToDefault(t *testing.T) {
	g := newThreeTierGroups()
	g.SetLeecherThreshold(5, func(string) int { return 100 })

	if got := g.Resolve("veteran").Name; got != "default" {
		t.Errorf("expected above-threshold unmatched username to fall back to default, got %s", got)
	}
}

func TestStaticGroups_LeecherThresholdDisabledByDefault(t *testing.T) {
	g := newThreeTierGroups()

	if got := g.Resolve("stranger").Name; got != "default" {
		t.Errorf("expected plain two-tier lookup when SetLeecherThreshold was never called, got %s", got)
	}
}
