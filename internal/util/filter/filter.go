// Package filter provides client-side glob/search filtering over a share
// catalog listing already returned by the daemon, backing "shares list"'s
// --include/--exclude/--search/--path flags (§4.5.5).
package filter

import (
	"path/filepath"
	"strings"

	"github.com/overlayd/overlayd/internal/controlsock"
)

// Config holds filter configuration.
type Config struct {
	// Include patterns (glob-style) matched against the file's base name.
	// Empty means include all.
	Include []string

	// Exclude patterns (glob-style) matched against the file's base name.
	// Takes precedence over Include.
	Exclude []string

	// Search terms (case-insensitive substring match against the base
	// name). A file must match every term to be included.
	Search []string

	// PathInclude patterns match the file's full virtual path
	// ("directory/name"). Supports ** for multi-directory matching, e.g.
	// "**/*.flac" or "electronic/**".
	PathInclude []string
}

func (c Config) empty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0 && len(c.Search) == 0 && len(c.PathInclude) == 0
}

// ApplyToDirectories filters each directory's file list, dropping
// directories left with no matching files. The input is not modified; when
// cfg has no criteria the input slice itself is returned.
func ApplyToDirectories(dirs []controlsock.ShareDirectory, cfg Config) []controlsock.ShareDirectory {
	if cfg.empty() {
		return dirs
	}

	filtered := make([]controlsock.ShareDirectory, 0, len(dirs))
	for _, d := range dirs {
		files := make([]controlsock.ShareFile, 0, len(d.Files))
		for _, f := range d.Files {
			if len(cfg.PathInclude) > 0 {
				virtualPath := filepath.ToSlash(d.Path + "/" + f.Name)
				if !matchesPathFilter(virtualPath, cfg.PathInclude) {
					continue
				}
			}
			if matchesFilter(f.Name, cfg) {
				files = append(files, f)
			}
		}
		if len(files) > 0 {
			d.Files = files
			filtered = append(filtered, d)
		}
	}
	return filtered
}

func matchesFilter(name string, cfg Config) bool {
	for _, pattern := range cfg.Exclude {
		if matched, _ := filepath.Match(pattern, name); matched {
			return false
		}
	}

	if len(cfg.Include) > 0 {
		included := false
		for _, pattern := range cfg.Include {
			if matched, _ := filepath.Match(pattern, name); matched {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	lowerName := strings.ToLower(name)
	for _, term := range cfg.Search {
		if !strings.Contains(lowerName, strings.ToLower(term)) {
			return false
		}
	}

	return true
}

// matchesPathFilter reports whether filePath matches any of patterns.
func matchesPathFilter(filePath string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchPathPattern(filePath, filepath.ToSlash(pattern)) {
			return true
		}
	}
	return false
}

// matchPathPattern matches a single slash-separated path against a
// pattern, with ** expanded to match across directory boundaries.
func matchPathPattern(path, pattern string) bool {
	if strings.Contains(pattern, "**") {
		return matchDoubleStarPattern(path, pattern)
	}
	matched, err := filepath.Match(pattern, path)
	return err == nil && matched
}

func matchDoubleStarPattern(path, pattern string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		if matchPathPattern(path, suffix) {
			return true
		}
		parts := strings.Split(path, "/")
		for i := range parts {
			if matchPathPattern(strings.Join(parts[i:], "/"), suffix) {
				return true
			}
		}
		return false
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := pattern[:len(pattern)-3]
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
		parts := strings.Split(path, "/")
		for i := 1; i <= len(parts); i++ {
			if matched, _ := filepath.Match(prefix, strings.Join(parts[:i], "/")); matched {
				return true
			}
		}
		return false
	}

	if mid := strings.Index(pattern, "/**/"); mid != -1 {
		prefix := pattern[:mid]
		suffix := pattern[mid+4:]
		parts := strings.Split(path, "/")
		for i := 1; i < len(parts); i++ {
			if matched, _ := filepath.Match(prefix, strings.Join(parts[:i], "/")); matched {
				for j := i; j <= len(parts); j++ {
					if matchPathPattern(strings.Join(parts[j:], "/"), suffix) {
						return true
					}
				}
			}
		}
		return false
	}

	if pattern == "**" {
		return true
	}

	matched, _ := filepath.Match(strings.ReplaceAll(pattern, "**", "*"), path)
	return matched
}

// ParsePatternList parses a comma-separated list of patterns into a slice,
// trimming whitespace and dropping empty entries.
func ParsePatternList(patternStr string) []string {
	if patternStr == "" {
		return nil
	}
	parts := strings.Split(patternStr, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}
