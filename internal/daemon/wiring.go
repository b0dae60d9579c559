package daemon

import (
	"context"
	"net/netip"
	"regexp"
	"sync"

	"github.com/overlayd/overlayd/internal/blacklist"
	"github.com/overlayd/overlayd/internal/config"
	"github.com/overlayd/overlayd/internal/overlay"
	"github.com/overlayd/overlayd/internal/shareindex"
	"github.com/overlayd/overlayd/internal/transfer"
)

// compileFilters turns the regex source text a ConfigSnapshot carries into
// the compiled patterns shareindex.Config wants.
func compileFilters(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func schedulingMode(mode string) transfer.SchedulingMode {
	if mode == "fifo" {
		return transfer.FirstInFirstOut
	}
	return transfer.RoundRobin
}

// buildGroups turns the ordered []GroupConfig a ConfigSnapshot carries into
// a transfer.StaticGroups, with the lowest-priority configured group (or a
// bare "default" policy if none are configured) as the fallback unmatched
// usernames resolve to.
// buildGroups also returns the "leechers" group's configured MinSharedFiles,
// 0 if no such group is configured, for the caller to wire into
// StaticGroups.SetLeecherThreshold once a live engine exists to source the
// shared-file-count proxy from.
func buildGroups(groups []config.GroupConfig) (*transfer.StaticGroups, int, error) {
	policies := make([]transfer.GroupPolicy, 0, len(groups))
	members := make(map[string]string)
	fallback := transfer.GroupPolicy{Name: "default", Mode: transfer.RoundRobin}
	leecherThreshold := 0

	lowestPriority := 0
	first := true
	for _, g := range groups {
		policy := transfer.GroupPolicy{
			Name:           g.Name,
			Priority:       g.Priority,
			Mode:           schedulingMode(g.Mode),
			SlotLimit:      g.SlotLimit,
			BytesPerSecond: g.SpeedLimit,
		}
		policies = append(policies, policy)
		for _, member := range g.Members {
			members[member] = g.Name
		}
		if g.Name == "leechers" {
			leecherThreshold = g.MinSharedFiles
		}
		if first || g.Priority < lowestPriority {
			fallback = policy
			lowestPriority = g.Priority
			first = false
		}
	}

	return transfer.NewStaticGroups(policies, members, fallback), leecherThreshold, nil
}

// credentialSource implements overlay.CredentialSource over a
// mutex-guarded pair, updated by networkSubsystem on reload.
type credentialSource struct {
	mu       sync.RWMutex
	username string
	password string
}

func (c *credentialSource) Current() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username, c.password
}

func (c *credentialSource) update(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.password = password
}

// usernameBlacklist adapts the IP-range blacklist.List to
// transfer.BlacklistChecker's username-keyed Blocked check. Username-to-IP
// mapping is a peer-protocol-layer concern (§6): until the protocol
// implementation supplies one via SetResolver, Blocked conservatively
// allows everyone rather than guessing.
type usernameBlacklist struct {
	list *blacklist.List

	mu       sync.RWMutex
	resolver func(username string) (netIP string, ok bool)
}

func newUsernameBlacklist(list *blacklist.List) *usernameBlacklist {
	return &usernameBlacklist{list: list}
}

// SetResolver installs the username->IP lookup the peer-protocol
// implementation provides once a peer has connected at least once.
func (b *usernameBlacklist) SetResolver(resolver func(username string) (string, bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolver = resolver
}

func (b *usernameBlacklist) Blocked(username string) bool {
	b.mu.RLock()
	resolver := b.resolver
	b.mu.RUnlock()
	if resolver == nil {
		return false
	}
	ipStr, ok := resolver(username)
	if !ok {
		return false
	}
	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return false
	}
	return b.list.Contains(addr)
}

// resolvers wires overlay.Resolvers to d.index, giving the overlay
// controller's peer-protocol implementation the callbacks it invokes when
// a remote peer asks something of this node (§6 "resolver hooks").
func (d *Daemon) resolvers() overlay.Resolvers {
	return overlay.Resolvers{
		Browse: func(ctx context.Context) (overlay.BrowseResult, error) {
			return overlay.BrowseResult{Directories: d.index.BrowseVisible()}, nil
		},
		Directory: func(ctx context.Context, path string) (shareindex.Directory, error) {
			return d.index.ListVisible(path)
		},
		UserInfo: func(ctx context.Context, username string) (overlay.UserInfo, error) {
			return overlay.UserInfo{
				Description:     "overlayd",
				UploadSlotsFree: 0, // engine does not yet expose per-peer slot accounting
				QueueLength:     0,
			}, nil
		},
		EnqueueDownload: func(ctx context.Context, peer, filename string, size int64) error {
			_, err := d.engine.Enqueue(transfer.Download, peer, filename, size)
			return err
		},
		SearchResponse: func(ctx context.Context, query string) ([]shareindex.File, error) {
			return d.index.SearchVisible(query), nil
		},
	}
}
