package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/overlayd/overlayd/internal/pathutil"
	"github.com/overlayd/overlayd/internal/shareindex"
)

// DefaultConfigPath returns ~/.config/overlayd/daemon.conf, the Unix
// config location the teacher's DefaultDaemonConfigPath resolves to
// (this module drops the Windows %APPDATA% branch: overlayd targets
// Unix-style deployment, per the control socket's XDG_RUNTIME_DIR use).
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "overlayd", "daemon.conf"), nil
}

// DefaultDownloadDir returns ~/Downloads/overlayd, the Unix analogue of
// the teacher's DefaultDownloadFolder.
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/overlayd"
	}
	return filepath.Join(home, "Downloads", "overlayd")
}

// Load reads daemon.conf from path. An empty path resolves via
// DefaultConfigPath. A missing file is not an error: Load returns
// Default() with DownloadDir filled in, exactly as LoadDaemonConfig
// treats a missing daemon.conf as "first run."
func Load(path string) (ConfigSnapshot, error) {
	snap := Default()
	snap.Server.DownloadDir = DefaultDownloadDir()

	if path == "" {
		resolved, err := DefaultConfigPath()
		if err != nil {
			return snap, nil
		}
		path = resolved
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return snap, nil
	}

	iniFile, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return ConfigSnapshot{}, fmt.Errorf("load %s: %w", path, err)
	}

	server := iniFile.Section("server")
	snap.Server.Username = server.Key("username").String()
	snap.Server.Password = server.Key("password").String()
	snap.Server.Address = server.Key("address").MustString(snap.Server.Address)
	snap.Server.DownloadDir = server.Key("download_dir").MustString(snap.Server.DownloadDir)
	snap.Server.GlobalUploadSlots = server.Key("global_upload_slots").MustInt(0)
	snap.Server.GlobalDownloadSlots = server.Key("global_download_slots").MustInt(0)

	shares := iniFile.Section("shares")
	snap.Shares.Roots = nil
	for _, v := range shares.Key("root").ValueWithShadows() {
		root, err := shareindex.ParseRootSpec(strings.TrimSpace(v))
		if err != nil {
			return ConfigSnapshot{}, fmt.Errorf("shares.root %q: %w", v, err)
		}
		resolved, err := pathutil.ResolveAbsolutePath(root.Path)
		if err != nil {
			return ConfigSnapshot{}, fmt.Errorf("shares.root %q: resolve path: %w", v, err)
		}
		root.Path = resolved
		snap.Shares.Roots = append(snap.Shares.Roots, root)
	}

	filters := iniFile.Section("filters")
	snap.Shares.FilterPatterns = splitNonEmpty(filters.Key("patterns").String(), ",")

	snap.Groups = nil
	for _, name := range iniFile.SectionStrings() {
		groupName, ok := strings.CutPrefix(name, "groups.")
		if !ok {
			continue
		}
		sec := iniFile.Section(name)
		snap.Groups = append(snap.Groups, GroupConfig{
			Name:           groupName,
			Priority:       sec.Key("priority").MustInt(50),
			Mode:           sec.Key("mode").MustString("round-robin"),
			SlotLimit:      sec.Key("slot_limit").MustInt(0),
			SpeedLimit:     sec.Key("speed_limit").MustFloat64(0),
			Members:        splitNonEmpty(sec.Key("members").String(), ","),
			MinSharedFiles: sec.Key("min_shared_files").MustInt(0),
		})
	}
	sort.Slice(snap.Groups, func(i, j int) bool { return snap.Groups[i].Name < snap.Groups[j].Name })

	agents := iniFile.Section("agents")
	snap.Agents.Enabled = agents.Key("enabled").MustBool(snap.Agents.Enabled)
	snap.Agents.ListenAddress = agents.Key("listen_address").MustString(snap.Agents.ListenAddress)
	snap.Agents.Secret = agents.Key("secret").String()

	web := iniFile.Section("web")
	snap.Web.Enabled = web.Key("enabled").MustBool(false)

	return snap, nil
}

// Save writes snap to path atomically (tmp file + rename, mode 0600),
// matching SaveDaemonConfig's pattern.
func Save(snap ConfigSnapshot, path string) error {
	if path == "" {
		resolved, err := DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("determine config path: %w", err)
		}
		path = resolved
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	iniFile := ini.Empty()

	server, err := iniFile.NewSection("server")
	if err != nil {
		return err
	}
	server.Key("username").SetValue(snap.Server.Username)
	server.Key("password").SetValue(snap.Server.Password)
	server.Key("address").SetValue(snap.Server.Address)
	server.Key("download_dir").SetValue(snap.Server.DownloadDir)
	server.Key("global_upload_slots").SetValue(strconv.Itoa(snap.Server.GlobalUploadSlots))
	server.Key("global_download_slots").SetValue(strconv.Itoa(snap.Server.GlobalDownloadSlots))

	shares, err := iniFile.NewSection("shares")
	if err != nil {
		return err
	}
	for _, root := range snap.Shares.Roots {
		if _, err := shares.NewKey("root", formatRootSpec(root)); err != nil {
			return err
		}
	}

	filters, err := iniFile.NewSection("filters")
	if err != nil {
		return err
	}
	filters.Key("patterns").SetValue(strings.Join(snap.Shares.FilterPatterns, ","))

	for _, group := range snap.Groups {
		sec, err := iniFile.NewSection("groups." + group.Name)
		if err != nil {
			return err
		}
		sec.Key("priority").SetValue(strconv.Itoa(group.Priority))
		sec.Key("mode").SetValue(group.Mode)
		sec.Key("slot_limit").SetValue(strconv.Itoa(group.SlotLimit))
		sec.Key("speed_limit").SetValue(strconv.FormatFloat(group.SpeedLimit, 'f', -1, 64))
		sec.Key("members").SetValue(strings.Join(group.Members, ","))
		sec.Key("min_shared_files").SetValue(strconv.Itoa(group.MinSharedFiles))
	}

	agents, err := iniFile.NewSection("agents")
	if err != nil {
		return err
	}
	agents.Key("enabled").SetValue(strconv.FormatBool(snap.Agents.Enabled))
	agents.Key("listen_address").SetValue(snap.Agents.ListenAddress)
	agents.Key("secret").SetValue(snap.Agents.Secret)

	web, err := iniFile.NewSection("web")
	if err != nil {
		return err
	}
	web.Key("enabled").SetValue(strconv.FormatBool(snap.Web.Enabled))

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("set config permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formatRootSpec(root shareindex.Root) string {
	prefix := ""
	if root.Hidden {
		prefix = "-"
	}
	return fmt.Sprintf("%s[%s]%s", prefix, root.Alias, root.Path)
}
