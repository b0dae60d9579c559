package daemon

import "github.com/overlayd/overlayd/internal/config"

// networkSubsystem applies §4.5.2's "Network" classification: credential
// changes take effect on the overlay controller's next reconnect attempt,
// so applying it is just swapping the CredentialSource's cached pair.
type networkSubsystem struct{ d *Daemon }

func (s networkSubsystem) ApplyChange(newCfg config.ConfigSnapshot, _ config.ConfigChange) config.Classification {
	s.d.creds.update(newCfg.Server.Username, newCfg.Server.Password)
	return config.Classification{RequiresReconnect: true}
}

// sharesPathsSubsystem applies §4.5.2's "Shares.Paths": new roots take
// effect on the next scan, triggered immediately here.
type sharesPathsSubsystem struct{ d *Daemon }

func (s sharesPathsSubsystem) ApplyChange(newCfg config.ConfigSnapshot, _ config.ConfigChange) config.Classification {
	s.d.index.Reconfigure(newCfg.Shares.Roots, s.d.index.ActiveFilters())
	go s.d.rescanShares()
	return config.Classification{RequiresRescan: true}
}

// sharesFiltersSubsystem applies §4.5.2's "Shares.Filters": same rescan
// trigger as Shares.Paths, but recompiling only the filter list.
type sharesFiltersSubsystem struct{ d *Daemon }

func (s sharesFiltersSubsystem) ApplyChange(newCfg config.ConfigSnapshot, _ config.ConfigChange) config.Classification {
	if err := s.d.applySharesFilters(newCfg.Shares.FilterPatterns); err != nil {
		s.d.log.Warnf("reload: invalid share filters ignored: %v", err)
		return config.Classification{}
	}
	go s.d.rescanShares()
	return config.Classification{RequiresRescan: true}
}

// groupsSubsystem applies §4.5.2's "Groups": scheduling policy takes
// effect for transfers enqueued after the change; transfers already
// running keep the group they were assigned at enqueue time.
type groupsSubsystem struct{ d *Daemon }

func (s groupsSubsystem) ApplyChange(newCfg config.ConfigSnapshot, _ config.ConfigChange) config.Classification {
	groups, leecherThreshold, err := buildGroups(newCfg.Groups)
	if err != nil {
		s.d.log.Warnf("reload: invalid group configuration ignored: %v", err)
		return config.Classification{}
	}
	groups.SetLeecherThreshold(leecherThreshold, s.d.engine.CompletedDownloadCount)
	s.d.engine.SetGroups(groups)
	return config.Classification{ApplyNow: true}
}

// agentsSubsystem applies §4.5.2's "Agents": starting or stopping the
// agent fabric's listener, or rotating its shared secret.
type agentsSubsystem struct{ d *Daemon }

func (s agentsSubsystem) ApplyChange(newCfg config.ConfigSnapshot, _ config.ConfigChange) config.Classification {
	s.d.fabric.SetSecret([]byte(newCfg.Agents.Secret))

	running := s.d.agentLn != nil
	switch {
	case newCfg.Agents.Enabled && !running:
		if err := s.d.startAgentListener(newCfg.Agents.ListenAddress); err != nil {
			s.d.log.Warnf("reload: starting agent listener failed: %v", err)
		}
	case !newCfg.Agents.Enabled && running:
		s.d.stopAgentListener()
	}
	return config.Classification{ApplyNow: true}
}

// noopSubsystem backs SubsystemWeb, which this core doesn't implement
// (§1 Non-goals: the web UI is out of scope; only its enabled flag is
// tracked so a reload doesn't reject a daemon.conf written by tooling
// that still expects a [web] section).
type noopSubsystem struct{}

func (noopSubsystem) ApplyChange(config.ConfigSnapshot, config.ConfigChange) config.Classification {
	return config.Classification{ApplyNow: true}
}
