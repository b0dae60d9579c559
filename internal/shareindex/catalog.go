package shareindex

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/overlayd/overlayd/internal/errs"
)

// indexedFile is a File plus the bookkeeping needed to resolve and search
// it, never exposed outside this package.
type indexedFile struct {
	File
	LocalPath string
}

// catalog is one immutable, fully-built snapshot of the shared-file index.
// Refill builds a new catalog and swaps it in atomically; an in-flight
// catalog is never mutated after newCatalog's caller hands it to
// buildCatalog.
type catalog struct {
	files         []indexedFile
	byVirtualPath map[string]int
	dirs          map[string]*Directory
	dirOrder      []string
	tokenIndex    map[string]map[int]struct{} // lowercased word -> file indices
	faulted       bool
}

func newCatalog() *catalog {
	return &catalog{
		byVirtualPath: make(map[string]int),
		dirs:          make(map[string]*Directory),
		tokenIndex:    make(map[string]map[int]struct{}),
	}
}

var wordPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

func tokenize(s string) []string {
	matches := wordPattern.FindAllString(strings.ToLower(s), -1)
	return matches
}

// buildCatalog assembles a catalog from a flat list of discovered files. The
// directory tree is derived from each file's virtual path: every path
// segment before the final one is a directory, lazily created as files are
// added.
func buildCatalog(found []indexedFile) *catalog {
	c := newCatalog()
	c.files = found

	for i, f := range found {
		c.byVirtualPath[f.VirtualPath] = i

		for _, tok := range tokenize(f.VirtualPath) {
			set, ok := c.tokenIndex[tok]
			if !ok {
				set = make(map[int]struct{})
				c.tokenIndex[tok] = set
			}
			set[i] = struct{}{}
		}

		dirPath := path.Dir(f.VirtualPath)
		c.ensureDir(dirPath, f.Hidden)
		d := c.dirs[dirPath]
		d.Files = append(d.Files, f.File)
	}

	sort.Strings(c.dirOrder)
	for _, d := range c.dirs {
		sort.Slice(d.Files, func(i, j int) bool { return d.Files[i].VirtualPath < d.Files[j].VirtualPath })
	}
	return c
}

// ensureDir creates dirPath and every ancestor not already present. hidden
// marks dirPath itself (never "/", which aggregates every root's top-level
// alias and so can never be hidden as a whole).
func (c *catalog) ensureDir(dirPath string, hidden bool) {
	if dirPath == "" || dirPath == "." {
		dirPath = "/"
	}
	if _, ok := c.dirs[dirPath]; ok {
		return
	}
	c.dirs[dirPath] = &Directory{VirtualPath: dirPath, Name: path.Base(dirPath), Hidden: hidden && dirPath != "/"}
	c.dirOrder = append(c.dirOrder, dirPath)

	if dirPath != "/" {
		c.ensureDir(path.Dir(dirPath), hidden)
	}
}

// search implements §4.2 "Search semantics": every token must appear as a
// whole word, case-insensitively, somewhere in the file's virtual path.
// includeHidden controls whether files under a hidden root are eligible.
func (c *catalog) search(query string, removeSingleChar bool, limit int, includeHidden bool) []File {
	tokens := tokenize(query)
	if removeSingleChar {
		filtered := tokens[:0]
		for _, t := range tokens {
			if len(t) > 1 {
				filtered = append(filtered, t)
			}
		}
		tokens = filtered
	}
	if len(tokens) == 0 {
		return nil
	}

	var candidates map[int]struct{}
	for _, tok := range tokens {
		set := c.tokenIndex[tok]
		if len(set) == 0 {
			return nil
		}
		if candidates == nil {
			candidates = make(map[int]struct{}, len(set))
			for i := range set {
				candidates[i] = struct{}{}
			}
			continue
		}
		for i := range candidates {
			if _, ok := set[i]; !ok {
				delete(candidates, i)
			}
		}
	}

	indices := make([]int, 0, len(candidates))
	for i := range candidates {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(i, j int) bool {
		return c.files[indices[i]].VirtualPath < c.files[indices[j]].VirtualPath
	})

	if !includeHidden {
		visible := indices[:0]
		for _, i := range indices {
			if !c.files[i].Hidden {
				visible = append(visible, i)
			}
		}
		indices = visible
	}

	if limit > 0 && len(indices) > limit {
		indices = indices[:limit]
	}

	out := make([]File, len(indices))
	for i, idx := range indices {
		out[i] = c.files[idx].File
	}
	return out
}

// browse returns every directory, or every non-hidden one when includeHidden
// is false.
func (c *catalog) browse(includeHidden bool) []Directory {
	out := make([]Directory, 0, len(c.dirOrder))
	for _, p := range c.dirOrder {
		d := c.dirs[p]
		if d.Hidden && !includeHidden {
			continue
		}
		out = append(out, *d)
	}
	return out
}

func (c *catalog) list(directoryPath string, includeHidden bool) (Directory, error) {
	if directoryPath == "" {
		directoryPath = "/"
	}
	d, ok := c.dirs[directoryPath]
	if !ok || (d.Hidden && !includeHidden) {
		return Directory{}, errs.New(errs.NotFound, "no such directory: "+directoryPath)
	}
	return *d, nil
}

func (c *catalog) resolve(virtualPath string) (string, error) {
	i, ok := c.byVirtualPath[virtualPath]
	if !ok {
		return "", errs.New(errs.NotFound, "not shared: "+virtualPath)
	}
	return c.files[i].LocalPath, nil
}

func (c *catalog) stats() (directories, files int) {
	return len(c.dirs), len(c.files)
}
