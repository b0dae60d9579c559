package config

import (
	"errors"
	"fmt"
	"regexp"
)

// Validation errors, mirroring the teacher's sentinel-error-per-rule style
// so callers can errors.Is against a specific failure.
var (
	ErrMissingUsername     = errors.New("server.username is required")
	ErrMissingAddress      = errors.New("server.address is required")
	ErrDuplicateRootAlias  = errors.New("duplicate share root alias")
	ErrDuplicateGroupName  = errors.New("duplicate group name")
	ErrInvalidGroupMode    = errors.New("group mode must be \"round-robin\" or \"fifo\"")
	ErrNegativeSlotLimit   = errors.New("slot_limit must not be negative")
	ErrNegativeMinShared   = errors.New("min_shared_files must not be negative")
	ErrAgentsMissingListen = errors.New("agents.listen_address is required when agents are enabled")
)

// Validate checks a ConfigSnapshot for errors that should block startup or
// reject a reload outright (§4.5.2: "a rejected reload leaves the running
// configuration untouched"). It does not check filesystem reachability of
// share roots — Refill surfaces that at scan time instead.
func (snap ConfigSnapshot) Validate() error {
	if snap.Server.Username == "" {
		return ErrMissingUsername
	}
	if snap.Server.Address == "" {
		return ErrMissingAddress
	}

	seenAlias := make(map[string]bool, len(snap.Shares.Roots))
	for _, root := range snap.Shares.Roots {
		if seenAlias[root.Alias] {
			return fmt.Errorf("%w: %s", ErrDuplicateRootAlias, root.Alias)
		}
		seenAlias[root.Alias] = true
	}

	for _, pattern := range snap.Shares.FilterPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("filters.patterns %q: %w", pattern, err)
		}
	}

	seenGroup := make(map[string]bool, len(snap.Groups))
	for _, group := range snap.Groups {
		if seenGroup[group.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateGroupName, group.Name)
		}
		seenGroup[group.Name] = true

		if group.Mode != "round-robin" && group.Mode != "fifo" {
			return fmt.Errorf("%w: group %s has mode %q", ErrInvalidGroupMode, group.Name, group.Mode)
		}
		if group.SlotLimit < 0 {
			return fmt.Errorf("%w: group %s", ErrNegativeSlotLimit, group.Name)
		}
		if group.MinSharedFiles < 0 {
			return fmt.Errorf("%w: group %s", ErrNegativeMinShared, group.Name)
		}
	}

	if snap.Agents.Enabled && snap.Agents.ListenAddress == "" {
		return ErrAgentsMissingListen
	}

	return nil
}
