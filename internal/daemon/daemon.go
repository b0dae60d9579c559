// Package daemon is the composition root: it wires internal/config's
// ConfigSnapshot into concrete internal/transfer, internal/shareindex,
// internal/overlay and internal/agentfabric instances, serves the control
// socket, and applies hot-reloads via the config.Subsystem protocol.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/overlayd/overlayd/internal/agentfabric"
	"github.com/overlayd/overlayd/internal/blacklist"
	"github.com/overlayd/overlayd/internal/config"
	"github.com/overlayd/overlayd/internal/controlsock"
	"github.com/overlayd/overlayd/internal/events"
	"github.com/overlayd/overlayd/internal/logging"
	"github.com/overlayd/overlayd/internal/overlay"
	"github.com/overlayd/overlayd/internal/shareindex"
	"github.com/overlayd/overlayd/internal/statestore"
	"github.com/overlayd/overlayd/internal/store"
	"github.com/overlayd/overlayd/internal/transfer"
)

// Daemon owns every long-lived subsystem and the current ConfigSnapshot.
// Exactly one Daemon runs per overlayd process (spec.md §1's "single
// operator, single session" scope).
type Daemon struct {
	log *logging.Logger
	bus *events.Bus

	mu  sync.RWMutex
	cfg config.ConfigSnapshot

	states        *statestore.Store
	transferStore *store.TransferStore
	searchStore   *store.SearchStore
	blacklist     *blacklist.List

	index      *shareindex.Index
	engine     *transfer.Engine
	controller *overlay.Controller
	fabric     *agentfabric.Fabric
	agentSrv   *agentfabric.Server
	agentLn    net.Listener
	control    *controlsock.Server
	logs       *LogBuffer

	creds *credentialSource

	subsystems map[config.SubsystemName]config.Subsystem
}

// Dirs bundles the on-disk locations a Daemon needs. StateDir holds the
// sqlite stores; overlayd doesn't otherwise write to disk except into
// configured share roots and the download directory.
type Dirs struct {
	StateDir string
}

// DefaultStateDir returns ~/.local/state/overlayd, the XDG-style location
// controlsock.DefaultSocketPath's fallback already anchors to.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "overlayd")
	}
	return filepath.Join(home, ".local", "state", "overlayd")
}

// New wires every subsystem from cfg. protocol is the overlay peer-protocol
// library implementation (§6: "implemented outside this repository;
// Controller only drives it") — callers (cmd/overlayd) supply it.
func New(cfg config.ConfigSnapshot, protocol overlay.PeerProtocol, log *logging.Logger, dirs Dirs) (*Daemon, error) {
	if dirs.StateDir == "" {
		dirs.StateDir = DefaultStateDir()
	}
	if err := os.MkdirAll(dirs.StateDir, 0700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	bus := log.Bus()
	if bus == nil {
		bus = events.NewBus(256)
	}

	transferStore, err := store.OpenTransferStore(filepath.Join(dirs.StateDir, "transfers.db"))
	if err != nil {
		return nil, fmt.Errorf("open transfer store: %w", err)
	}
	searchStore, err := store.OpenSearchStore(filepath.Join(dirs.StateDir, "search.db"))
	if err != nil {
		return nil, fmt.Errorf("open search store: %w", err)
	}

	d := &Daemon{
		log:           log,
		bus:           bus,
		cfg:           cfg,
		states:        statestore.New(versionString()),
		transferStore: transferStore,
		searchStore:   searchStore,
		blacklist:     blacklist.New(),
		creds:         &credentialSource{},
		logs:          NewLogBuffer(1000),
	}
	d.creds.update(cfg.Server.Username, cfg.Server.Password)
	d.logs.AttachToBus(bus)

	d.index = shareindex.New(shareindex.Config{
		Roots:          cfg.Shares.Roots,
		FilterPatterns: nil, // compiled by applySharesFilters below
		Storage:        shareindex.OnDisk,
		DBPath:         filepath.Join(dirs.StateDir, "shares.db"),
		Bus:            bus,
		States:         d.states,
	})
	if err := d.applySharesFilters(cfg.Shares.FilterPatterns); err != nil {
		return nil, fmt.Errorf("compile share filters: %w", err)
	}

	groups, leecherThreshold, err := buildGroups(cfg.Groups)
	if err != nil {
		return nil, fmt.Errorf("build groups: %w", err)
	}

	d.engine = transfer.New(transfer.Config{
		Transport:   newProtocolTransport(protocol, filepath.Join(dirs.StateDir, "staging")),
		Resolver:    d.index,
		Store:       transferStore,
		Groups:      groups,
		Bus:         bus,
		Blacklist:   newUsernameBlacklist(d.blacklist),
		DownloadDir: cfg.Server.DownloadDir,
		GlobalSlots: cfg.Server.GlobalUploadSlots,
	})
	groups.SetLeecherThreshold(leecherThreshold, d.engine.CompletedDownloadCount)

	d.controller = overlay.New(overlay.Config{
		Protocol:    protocol,
		Credentials: d.creds,
		Shares:      d.index,
		States:      d.states,
		Bus:         bus,
		Resolvers:   d.resolvers(),
		UploadSpeed: d.engine,
	})

	d.fabric = agentfabric.New(agentfabric.Config{
		Secret: []byte(cfg.Agents.Secret),
		Bus:    bus,
	})
	d.agentSrv = agentfabric.NewServer(d.fabric, log.Zerolog())
	d.fabric.SetPush(d.agentSrv)

	d.control = controlsock.NewServer(&controlHandler{d: d}, log.Zerolog())

	d.subsystems = map[config.SubsystemName]config.Subsystem{
		config.SubsystemNetwork:       networkSubsystem{d: d},
		config.SubsystemSharesPaths:   sharesPathsSubsystem{d: d},
		config.SubsystemSharesFilters: sharesFiltersSubsystem{d: d},
		config.SubsystemGroups:        groupsSubsystem{d: d},
		config.SubsystemAgents:        agentsSubsystem{d: d},
		config.SubsystemWeb:           noopSubsystem{},
	}

	return d, nil
}

func (d *Daemon) applySharesFilters(patterns []string) error {
	compiled, err := compileFilters(patterns)
	if err != nil {
		return err
	}
	d.mu.RLock()
	roots := d.cfg.Shares.Roots
	d.mu.RUnlock()
	d.index.Reconfigure(roots, compiled)
	return nil
}

// Start begins every long-running loop: the overlay controller's connect
// loop, the agent fabric's listener (if enabled), and the control socket.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.index.Refill(); err != nil {
		d.log.Warnf("initial share scan failed: %v", err)
	}
	if err := d.engine.Resume(); err != nil {
		d.log.Warnf("resume non-terminal transfers failed: %v", err)
	}
	if err := d.controller.Start(ctx); err != nil {
		return fmt.Errorf("start overlay controller: %w", err)
	}

	d.mu.RLock()
	agentsCfg := d.cfg.Agents
	d.mu.RUnlock()
	if agentsCfg.Enabled {
		if err := d.startAgentListener(agentsCfg.ListenAddress); err != nil {
			return err
		}
	}

	if err := d.control.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	return nil
}

// rescanShares runs Refill in the background after a Shares.Paths or
// Shares.Filters reload, logging rather than propagating a scan failure
// since the caller has already committed to the new configuration.
func (d *Daemon) rescanShares() {
	if err := d.index.Refill(); err != nil {
		d.log.Warnf("rescan after reload failed: %v", err)
	}
}

func (d *Daemon) stopAgentListener() {
	if d.agentLn == nil {
		return
	}
	d.agentLn.Close()
	d.agentSrv.Wait()
	d.agentLn = nil
}

func (d *Daemon) startAgentListener(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen agents on %s: %w", addr, err)
	}
	d.agentLn = ln
	go func() {
		if err := d.agentSrv.Serve(ln); err != nil {
			d.log.Debugf("agent listener stopped: %v", err)
		}
	}()
	return nil
}

// Stop tears every subsystem down in roughly reverse construction order.
func (d *Daemon) Stop() {
	d.control.Stop()
	d.stopAgentListener()
	d.controller.Stop()
	d.engine.Stop()
	d.transferStore.Close()
	d.searchStore.Close()
}

// Reload validates newCfg, diffs it against the current snapshot, and
// applies the change to every touched subsystem. A validation failure
// rejects the patch and leaves the running configuration untouched
// (§4.5.2, §7 "configuration errors at hot-reload are non-fatal").
func (d *Daemon) Reload(newCfg config.ConfigSnapshot) error {
	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("reject reload: %w", err)
	}

	d.mu.Lock()
	oldCfg := d.cfg
	d.mu.Unlock()

	change, changed := config.Diff(oldCfg, newCfg)
	if !changed {
		return nil
	}

	for _, name := range change.Subsystems {
		sub, ok := d.subsystems[name]
		if !ok {
			continue
		}
		sub.ApplyChange(newCfg, change)
	}

	d.mu.Lock()
	d.cfg = newCfg
	d.mu.Unlock()

	d.bus.Publish(change.Event())
	return nil
}

// CurrentConfig returns the ConfigSnapshot currently in effect.
func (d *Daemon) CurrentConfig() config.ConfigSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func versionString() string { return "overlayd" }
