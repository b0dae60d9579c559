// Package config implements daemon.conf parsing and the hot-reload
// classification scheme described in §4.5.2 and §9's ConfigChange design
// note: typed sections loaded via gopkg.in/ini.v1 into an immutable
// ConfigSnapshot, plus a diff pass that figures out which subsystems a
// reload touched.
package config

import "github.com/overlayd/overlayd/internal/shareindex"

// ServerConfig is the overlay session's connection settings ("Network" in
// the hot-reload subsystem set).
type ServerConfig struct {
	Username            string
	Password            string
	Address             string // host:port of the overlay network's server
	DownloadDir         string
	GlobalUploadSlots   int // 0 = unlimited
	GlobalDownloadSlots int // 0 = unlimited
}

// SharesConfig bundles the two independently-reloadable halves of the
// shared-file index's configuration: which directories are shared
// ("Shares.Paths") and which files within them are excluded
// ("Shares.Filters"). Roots reuses shareindex.Root directly so a loaded
// ConfigSnapshot needs no conversion step to become a shareindex.Config.
type SharesConfig struct {
	Roots          []shareindex.Root
	FilterPatterns []string // regex source text; compiled by the daemon wiring layer
}

// GroupConfig is one user group's scheduling policy ("Groups"), matching
// spec.md §3's "User group" entity.
type GroupConfig struct {
	Name       string
	Priority   int
	Mode       string // "round-robin" or "fifo"
	SlotLimit  int    // 0 = unlimited
	SpeedLimit float64
	Members    []string

	// MinSharedFiles only applies to the "leechers" group (§3's "leecher if
	// below thresholds" tier): an unmatched username whose observed shared
	// file count is below this resolves here instead of the fallback group.
	// 0 disables the threshold check entirely.
	MinSharedFiles int
}

// AgentsConfig is the agent fabric's listener and shared secret
// ("Agents").
type AgentsConfig struct {
	Enabled       bool
	ListenAddress string
	Secret        string
}

// WebConfig is parsed but inert: the HTTP/REST frontend is out of scope
// (spec.md §1), but the section is still recognized so a daemon.conf
// written for that frontend doesn't fail to parse ("Web").
type WebConfig struct {
	Enabled bool
}

// ConfigSnapshot is the full, immutable configuration in effect at one
// point in time. A reload produces a new ConfigSnapshot rather than
// mutating this one in place — callers that hold a ConfigSnapshot value
// never see it change underneath them.
type ConfigSnapshot struct {
	Server ServerConfig
	Shares SharesConfig
	Groups []GroupConfig
	Agents AgentsConfig
	Web    WebConfig
}

// Default returns a ConfigSnapshot with the same conservative defaults
// the teacher's NewDaemonConfig ships (auto-download-style features off
// until an operator opts in; scheduling defaults that work without
// further configuration).
func Default() ConfigSnapshot {
	return ConfigSnapshot{
		Server: ServerConfig{
			Address:             "server.slsknet.org:2242",
			GlobalUploadSlots:   0,
			GlobalDownloadSlots: 0,
		},
		Groups: []GroupConfig{
			{Name: "default", Priority: 50, Mode: "round-robin", SlotLimit: 2},
			{Name: "leechers", Priority: 10, Mode: "round-robin", SlotLimit: 1, MinSharedFiles: 1},
		},
		Agents: AgentsConfig{Enabled: false, ListenAddress: "127.0.0.1:9870"},
	}
}
