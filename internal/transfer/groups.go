package transfer

// SchedulingMode selects how a group's scheduler picks the next candidate
// among its queued transfers, per §4.1.
type SchedulingMode string

const (
	RoundRobin      SchedulingMode = "round-robin"
	FirstInFirstOut SchedulingMode = "first-in-first-out"
)

// GroupPolicy is the admission policy for one user group: how its queued
// transfers are ordered, how many concurrent slots it gets, and its
// token-bucket rate. Priority is walked descending; ties keep the order
// Groups.All() returns them in.
type GroupPolicy struct {
	Name           string
	Priority       int
	Mode           SchedulingMode
	SlotLimit      int     // 0 = unlimited
	BytesPerSecond float64 // 0 = unlimited
}

// Groups resolves a counterparty username to its effective group and
// exposes every configured group in priority order (highest first).
type Groups interface {
	Resolve(username string) GroupPolicy
	All() []GroupPolicy
}

// leecherGroupName is the reserved group name spec.md §3 names alongside
// "default" and "blacklisted" for the auto-demotion tier.
const leecherGroupName = "leechers"

// StaticGroups is a Groups implementation backed by a fixed membership map
// and a fixed, pre-sorted policy list — the shape config.Snapshot's
// [groups.<name>] sections resolve into at load time.
type StaticGroups struct {
	policies []GroupPolicy // priority descending
	members  map[string]string
	fallback GroupPolicy

	minSharedFiles  int
	sharedFileCount func(username string) int
}

// NewStaticGroups builds a Groups from policies (any order; sorted by
// Priority descending internally), a username->group membership map, and
// the policy applied to usernames with no explicit membership. The fallback
// is appended to the policy list (unless a policy of the same name already
// exists) so All() — and therefore the scheduler's per-group admission
// walk — always includes the group every unmatched username resolves into.
func NewStaticGroups(policies []GroupPolicy, members map[string]string, fallback GroupPolicy) *StaticGroups {
	sorted := make([]GroupPolicy, len(policies))
	copy(sorted, policies)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Priority < sorted[j].Priority; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	hasFallback := false
	for _, p := range sorted {
		if p.Name == fallback.Name {
			hasFallback = true
			break
		}
	}
	if !hasFallback {
		sorted = append(sorted, fallback)
	}

	m := make(map[string]string, len(members))
	for k, v := range members {
		m[k] = v
	}
	return &StaticGroups{policies: sorted, members: m, fallback: fallback}
}

// SetLeecherThreshold configures the third tier of spec.md §3's group
// lookup rule ("first user-defined group containing the name, else leecher
// if below thresholds, else default"): a username with no explicit
// membership whose sharedFileCount is below minSharedFiles resolves into
// the "leechers" policy instead of falling straight to the fallback. A
// minSharedFiles of 0, or a nil sharedFileCount, disables the check
// (Resolve behaves as the plain two-tier lookup).
func (g *StaticGroups) SetLeecherThreshold(minSharedFiles int, sharedFileCount func(username string) int) {
	g.minSharedFiles = minSharedFiles
	g.sharedFileCount = sharedFileCount
}

func (g *StaticGroups) Resolve(username string) GroupPolicy {
	if name, ok := g.members[username]; ok {
		for _, p := range g.policies {
			if p.Name == name {
				return p
			}
		}
	} else if g.minSharedFiles > 0 && g.sharedFileCount != nil && g.sharedFileCount(username) < g.minSharedFiles {
		for _, p := range g.policies {
			if p.Name == leecherGroupName {
				return p
			}
		}
	}
	return g.fallback
}

func (g *StaticGroups) All() []GroupPolicy {
	out := make([]GroupPolicy, len(g.policies))
	copy(out, g.policies)
	return out
}
