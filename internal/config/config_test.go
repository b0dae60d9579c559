package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/overlayd/overlayd/internal/shareindex"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	snap, err := Load(filepath.Join(t.TempDir(), "no-such.conf"))
	require.NoError(t, err)
	require.Equal(t, Default().Groups, snap.Groups)
	require.NotEmpty(t, snap.Server.DownloadDir)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.conf")
	shareDir := t.TempDir()

	snap := Default()
	snap.Server.Username = "alice"
	snap.Server.Password = "hunter2"
	snap.Server.Address = "server.example.org:2242"
	snap.Shares.Roots = []shareindex.Root{{Alias: "Music", Path: shareDir}}
	snap.Shares.FilterPatterns = []string{`\.tmp$`, `^\.`}
	snap.Agents.Enabled = true
	snap.Agents.ListenAddress = "127.0.0.1:9870"
	snap.Agents.Secret = "s3cret"
	snap.Web.Enabled = true

	require.NoError(t, Save(snap, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, snap.Server.Username, loaded.Server.Username)
	require.Equal(t, snap.Server.Address, loaded.Server.Address)
	require.Len(t, loaded.Shares.Roots, 1)
	require.Equal(t, "Music", loaded.Shares.Roots[0].Alias)
	require.ElementsMatch(t, snap.Shares.FilterPatterns, loaded.Shares.FilterPatterns)
	require.True(t, loaded.Agents.Enabled)
	require.Equal(t, "s3cret", loaded.Agents.Secret)
	require.True(t, loaded.Web.Enabled)

	foundDefault, foundLeechers := false, false
	for _, g := range loaded.Groups {
		if g.Name == "default" {
			foundDefault = true
		}
		if g.Name == "leechers" {
			foundLeechers = true
		}
	}
	require.True(t, foundDefault)
	require.True(t, foundLeechers)
}

func TestLoad_ParsesGroupSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.conf")
	content := `[server]
username = bob
address = server.example.org:2242

[groups.vip]
priority = 90
mode = fifo
slot_limit = 10
members = bob,carol
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	snap, err := Load(path)
	require.NoError(t, err)
	require.Len(t, snap.Groups, 1)
	require.Equal(t, "vip", snap.Groups[0].Name)
	require.Equal(t, "fifo", snap.Groups[0].Mode)
	require.Equal(t, 10, snap.Groups[0].SlotLimit)
	require.Equal(t, []string{"bob", "carol"}, snap.Groups[0].Members)
}

func TestValidate_RejectsMissingUsername(t *testing.T) {
	snap := Default()
	snap.Server.Address = "server.example.org:2242"
	require.ErrorIs(t, snap.Validate(), ErrMissingUsername)
}

func TestValidate_RejectsInvalidGroupMode(t *testing.T) {
	snap := Default()
	snap.Server.Username = "alice"
	snap.Groups = []GroupConfig{{Name: "x", Mode: "bogus"}}
	require.ErrorIs(t, snap.Validate(), ErrInvalidGroupMode)
}

func TestValidate_RejectsDuplicateGroupName(t *testing.T) {
	snap := Default()
	snap.Server.Username = "alice"
	snap.Groups = []GroupConfig{
		{Name: "dup", Mode: "fifo"},
		{Name: "dup", Mode: "fifo"},
	}
	require.ErrorIs(t, snap.Validate(), ErrDuplicateGroupName)
}

func TestValidate_RejectsMalformedFilterPattern(t *testing.T) {
	snap := Default()
	snap.Server.Username = "alice"
	snap.Shares.FilterPatterns = []string{"["}
	require.Error(t, snap.Validate())
}

func TestValidate_AcceptsDefault(t *testing.T) {
	snap := Default()
	snap.Server.Username = "alice"
	require.NoError(t, snap.Validate())
}
