package daemon

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/overlayd/overlayd/internal/blacklist"
	"github.com/overlayd/overlayd/internal/config"
	"github.com/overlayd/overlayd/internal/transfer"
)

func TestSchedulingMode(t *testing.T) {
	require.Equal(t, transfer.FirstInFirstOut, schedulingMode("fifo"))
	require.Equal(t, transfer.RoundRobin, schedulingMode("round-robin"))
	require.Equal(t, transfer.RoundRobin, schedulingMode("anything-else"))
	require.Equal(t, transfer.RoundRobin, schedulingMode(""))
}

func TestBuildGroups_FallbackIsLowestPriority(t *testing.T) {
	groups, leecherThreshold, err := buildGroups([]config.GroupConfig{
		{Name: "premium", Priority: 10, Mode: "fifo", Members: []string{"alice"}},
		{Name: "default", Priority: 0, Mode: "round-robin", Members: []string{"bob"}},
		{Name: "guests", Priority: 5, Mode: "round-robin"},
	})
	require.NoError(t, err)
	require.Zero(t, leecherThreshold)

	require.Equal(t, "premium", groups.Resolve("alice").Name)
	require.Equal(t, "default", groups.Resolve("bob").Name)
	// unmatched username resolves to the lowest-priority configured group
	require.Equal(t, "default", groups.Resolve("nobody").Name)
}

func TestBuildGroups_NoGroupsConfiguredUsesBareDefault(t *testing.T) {
	groups, leecherThreshold, err := buildGroups(nil)
	require.NoError(t, err)
	require.Zero(t, leecherThreshold)

	policy := groups.Resolve("anyone")
	require.Equal(t, "default", policy.Name)
	require.Equal(t, transfer.RoundRobin, policy.Mode)
}

func TestBuildGroups_LeecherThresholdExtracted(t *testing.T) {
	_, leecherThreshold, err := buildGroups([]config.GroupConfig{
		{Name: "default", Priority: 50, Mode: "round-robin"},
		{Name: "leechers", Priority: 10, Mode: "round-robin", MinSharedFiles: 5},
	})
	require.NoError(t, err)
	require.Equal(t, 5, leecherThreshold)
}

func TestUsernameBlacklist_NoResolverNeverBlocks(t *testing.T) {
	list := blacklist.New()
	list.Add(blacklist.Range{Start: 0, End: 0xFFFFFFFF, Label: "everything"})

	ub := newUsernameBlacklist(list)
	require.False(t, ub.Blocked("anyone"))
}

func TestUsernameBlacklist_ResolverAndContainment(t *testing.T) {
	list := blacklist.New()
	ip := netip.MustParseAddr("10.0.0.5")
	b := ip.As4()
	addr := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	list.Add(blacklist.Range{Start: addr, End: addr, Label: "blocked-peer"})

	ub := newUsernameBlacklist(list)
	ub.SetResolver(func(username string) (string, bool) {
		if username == "badactor" {
			return "10.0.0.5", true
		}
		return "", false
	})

	require.True(t, ub.Blocked("badactor"))
	require.False(t, ub.Blocked("gooduser"))
}

func TestCredentialSource_UpdateThenCurrent(t *testing.T) {
	cs := &credentialSource{}
	user, pass := cs.Current()
	require.Empty(t, user)
	require.Empty(t, pass)

	cs.update("alice", "hunter2")
	user, pass = cs.Current()
	require.Equal(t, "alice", user)
	require.Equal(t, "hunter2", pass)
}

func TestCompileFilters(t *testing.T) {
	compiled, err := compileFilters([]string{`\.nfo$`, `(?i)sample`})
	require.NoError(t, err)
	require.Len(t, compiled, 2)

	_, err = compileFilters([]string{"("})
	require.Error(t, err)
}
