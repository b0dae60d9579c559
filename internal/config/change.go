package config

import (
	"github.com/overlayd/overlayd/internal/events"
	"github.com/overlayd/overlayd/internal/shareindex"
)

// SubsystemName names one of the fixed set of reloadable subsystems a
// ConfigChange can touch. Network covers the overlay session controller's
// connection settings; Web is carried for completeness even though the web
// frontend is out of scope.
type SubsystemName string

const (
	SubsystemNetwork       SubsystemName = "Network"
	SubsystemSharesPaths   SubsystemName = "Shares.Paths"
	SubsystemSharesFilters SubsystemName = "Shares.Filters"
	SubsystemGroups        SubsystemName = "Groups"
	SubsystemAgents        SubsystemName = "Agents"
	SubsystemWeb           SubsystemName = "Web"
)

// Classification is a subsystem's answer to "what does this change cost
// me": whether it needs a full process restart, a fresh overlay session
// (reconnect), a share-index rescan, or can just be applied in place.
type Classification struct {
	RequiresRestart   bool
	RequiresReconnect bool
	RequiresRescan    bool
	ApplyNow          bool
}

// Subsystem is implemented by daemon-level adapters wrapping the engine,
// share index, overlay controller and agent fabric. ApplyChange receives
// the new snapshot plus the change that triggered it and reports back
// what it needed to do; it never holds a pointer to the config owner.
type Subsystem interface {
	ApplyChange(ConfigSnapshot, ConfigChange) Classification
}

// ConfigChange is the diff pass's result, naming which subsystems differ
// between Old and New. A reload that validates but changes nothing
// observable produces no ConfigChange (see Diff's second return value).
type ConfigChange struct {
	Subsystems []SubsystemName
	Old        ConfigSnapshot
	New        ConfigSnapshot
}

// Event converts a ConfigChange into the events.ConfigChangedEvent
// published on the bus, so subscribers that only care "something
// reloaded" don't need to import this package's Subsystem/Classification
// machinery.
func (c ConfigChange) Event() events.ConfigChangedEvent {
	names := make([]string, len(c.Subsystems))
	for i, s := range c.Subsystems {
		names[i] = string(s)
	}
	return events.ConfigChangedEvent{
		BaseEvent:  events.NewBaseEvent(events.EventConfigChanged),
		Subsystems: names,
	}
}

// Diff compares two snapshots and reports which subsystems differ. The
// second return value is false if nothing changed, in which case callers
// should not publish a ConfigChange.
func Diff(oldSnap, newSnap ConfigSnapshot) (ConfigChange, bool) {
	var touched []SubsystemName

	if oldSnap.Server != newSnap.Server {
		touched = append(touched, SubsystemNetwork)
	}
	if !equalRoots(oldSnap.Shares.Roots, newSnap.Shares.Roots) {
		touched = append(touched, SubsystemSharesPaths)
	}
	if !equalStrings(oldSnap.Shares.FilterPatterns, newSnap.Shares.FilterPatterns) {
		touched = append(touched, SubsystemSharesFilters)
	}
	if !equalGroups(oldSnap.Groups, newSnap.Groups) {
		touched = append(touched, SubsystemGroups)
	}
	if oldSnap.Agents != newSnap.Agents {
		touched = append(touched, SubsystemAgents)
	}
	if oldSnap.Web != newSnap.Web {
		touched = append(touched, SubsystemWeb)
	}

	if len(touched) == 0 {
		return ConfigChange{}, false
	}

	return ConfigChange{
		Subsystems: touched,
		Old:        oldSnap,
		New:        newSnap,
	}, true
}

// Touches reports whether a ConfigChange names the given subsystem, the
// check every Subsystem.ApplyChange implementation starts with before
// doing any work.
func (c ConfigChange) Touches(name SubsystemName) bool {
	for _, s := range c.Subsystems {
		if s == name {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalRoots(a, b []shareindex.Root) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalGroups(a, b []GroupConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name ||
			a[i].Priority != b[i].Priority ||
			a[i].Mode != b[i].Mode ||
			a[i].SlotLimit != b[i].SlotLimit ||
			a[i].SpeedLimit != b[i].SpeedLimit ||
			a[i].MinSharedFiles != b[i].MinSharedFiles ||
			!equalStrings(a[i].Members, b[i].Members) {
			return false
		}
	}
	return true
}
