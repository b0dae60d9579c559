package localfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{".gitignore", true},
		{"visible.txt", false},
		{"normal", false},
		{"/path/to/.hidden", true},
		{"/path/to/visible.txt", false},
		{"../.hidden", true},
		{"../visible.txt", false},
		{"..", false},
		{".", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsHidden(tt.path); got != tt.expected {
				t.Errorf("IsHidden(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestIsHiddenName(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{".hidden", true},
		{".gitignore", true},
		{"visible.txt", false},
		{"normal", false},
		{"..", false},
		{".", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHiddenName(tt.name); got != tt.expected {
				t.Errorf("IsHiddenName(%q) = %v, want %v", tt.name, got, tt.expected)
			}
		})
	}
}

func TestListDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	for _, f := range []string{"visible.txt", ".hidden", "another.txt"} {
		os.WriteFile(filepath.Join(tmpDir, f), []byte("test"), 0o644)
	}
	os.Mkdir(filepath.Join(tmpDir, "subdir"), 0o755)
	os.Mkdir(filepath.Join(tmpDir, ".hiddendir"), 0o755)

	t.Run("exclude hidden", func(t *testing.T) {
		entries, err := ListDirectory(tmpDir, ListOptions{IncludeHidden: false})
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 3 {
			t.Errorf("got %d entries, want 3", len(entries))
		}
		for _, e := range entries {
			if IsHiddenName(e.Name) {
				t.Errorf("found hidden entry %q when IncludeHidden=false", e.Name)
			}
		}
	})

	t.Run("include hidden", func(t *testing.T) {
		entries, err := ListDirectory(tmpDir, ListOptions{IncludeHidden: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 5 {
			t.Errorf("got %d entries, want 5", len(entries))
		}
	})

	t.Run("nonexistent directory", func(t *testing.T) {
		if _, err := ListDirectory("/nonexistent/path", ListOptions{}); err == nil {
			t.Error("expected error for nonexistent directory")
		}
	})
}

func TestWalkFiles(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "file1.txt"), []byte("1"), 0o644)
	os.WriteFile(filepath.Join(tmpDir, ".hidden_file"), []byte("h"), 0o644)
	os.MkdirAll(filepath.Join(tmpDir, "subdir"), 0o755)
	os.WriteFile(filepath.Join(tmpDir, "subdir", "file2.txt"), []byte("2"), 0o644)
	os.MkdirAll(filepath.Join(tmpDir, ".hidden_dir"), 0o755)
	os.WriteFile(filepath.Join(tmpDir, ".hidden_dir", "file3.txt"), []byte("3"), 0o644)

	t.Run("skips hidden files and directories", func(t *testing.T) {
		var files []FileEntry
		err := WalkFiles(tmpDir, WalkOptions{IncludeHidden: false, SkipHiddenDirs: true}, func(e FileEntry) error {
			files = append(files, e)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 2 {
			t.Errorf("got %d files, want 2 (file1.txt, subdir/file2.txt)", len(files))
		}
		for _, e := range files {
			if IsHiddenName(e.Name) {
				t.Errorf("found hidden file %q", e.Name)
			}
		}
	})

	t.Run("includes hidden when requested", func(t *testing.T) {
		var files []FileEntry
		err := WalkFiles(tmpDir, WalkOptions{IncludeHidden: true}, func(e FileEntry) error {
			files = append(files, e)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 4 {
			t.Errorf("got %d files, want 4", len(files))
		}
	})
}
