// Package localfs provides filesystem walking primitives used by the
// shared-file index scanner.
package localfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileEntry represents a file or directory encountered while walking a root.
type FileEntry struct {
	Path    string      // full path
	Name    string      // base name
	Size    int64       // bytes (0 for directories)
	IsDir   bool
	ModTime time.Time
	Mode    fs.FileMode
}

// ListDirectory returns the immediate contents of a directory, filtered by
// opts. Entries the caller can't stat (permission errors, races with a
// deleting process) are silently skipped rather than failing the whole call.
func ListDirectory(path string, opts ListOptions) ([]FileEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !opts.IncludeHidden && IsHiddenName(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		result = append(result, FileEntry{
			Path:    filepath.Join(path, name),
			Name:    name,
			Size:    info.Size(),
			IsDir:   entry.IsDir(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
	}

	return result, nil
}

// WalkFunc is the callback signature for Walk. Returning filepath.SkipDir
// for a directory skips its contents; any other non-nil error stops the walk.
type WalkFunc func(entry FileEntry) error

// Walk traverses a directory tree depth-first, calling fn for every file and
// directory. Paths that error on stat (permission issues, races) are skipped
// rather than aborting the walk.
func Walk(root string, opts WalkOptions, fn WalkFunc) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		name := d.Name()
		if !opts.IncludeHidden && IsHiddenName(name) {
			if d.IsDir() && opts.SkipHiddenDirs {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		return fn(FileEntry{
			Path:    path,
			Name:    name,
			Size:    info.Size(),
			IsDir:   d.IsDir(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
	})
}

// WalkFiles is Walk restricted to regular files — the shared-file index
// scanner never needs directory entries themselves, only the leaves.
func WalkFiles(root string, opts WalkOptions, fn WalkFunc) error {
	return Walk(root, opts, func(entry FileEntry) error {
		if entry.IsDir {
			return nil
		}
		return fn(entry)
	})
}
