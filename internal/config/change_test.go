package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/overlayd/overlayd/internal/shareindex"
)

func TestDiff_NoChangeReturnsFalse(t *testing.T) {
	snap := Default()
	_, changed := Diff(snap, snap)
	require.False(t, changed)
}

func TestDiff_NetworkChangeOnlyTouchesNetwork(t *testing.T) {
	oldSnap := Default()
	newSnap := oldSnap
	newSnap.Server.Address = "other.example.org:2242"

	change, changed := Diff(oldSnap, newSnap)
	require.True(t, changed)
	require.Equal(t, []SubsystemName{SubsystemNetwork}, change.Subsystems)
	require.True(t, change.Touches(SubsystemNetwork))
	require.False(t, change.Touches(SubsystemGroups))
}

func TestDiff_SharesRootsAndFiltersAreIndependentSubsystems(t *testing.T) {
	oldSnap := Default()
	newSnap := oldSnap
	newSnap.Shares.Roots = []shareindex.Root{{Alias: "Music", Path: "/music"}}

	change, changed := Diff(oldSnap, newSnap)
	require.True(t, changed)
	require.True(t, change.Touches(SubsystemSharesPaths))
	require.False(t, change.Touches(SubsystemSharesFilters))

	newSnap2 := oldSnap
	newSnap2.Shares.FilterPatterns = []string{`\.tmp$`}
	change2, changed2 := Diff(oldSnap, newSnap2)
	require.True(t, changed2)
	require.True(t, change2.Touches(SubsystemSharesFilters))
	require.False(t, change2.Touches(SubsystemSharesPaths))
}

func TestDiff_GroupsChangeDetectsMemberEdits(t *testing.T) {
	oldSnap := Default()
	newSnap := oldSnap
	newSnap.Groups = append([]GroupConfig{}, oldSnap.Groups...)
	newSnap.Groups[0].Members = []string{"alice"}

	change, changed := Diff(oldSnap, newSnap)
	require.True(t, changed)
	require.True(t, change.Touches(SubsystemGroups))
}

func TestConfigChange_EventNamesSubsystems(t *testing.T) {
	change := ConfigChange{Subsystems: []SubsystemName{SubsystemNetwork, SubsystemAgents}}
	evt := change.Event()
	require.ElementsMatch(t, []string{"Network", "Agents"}, evt.Subsystems)
}
