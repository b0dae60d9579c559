// Package shareindex implements the shared-file index described in §4.2: a
// queryable catalog of locally advertised files, built by scanning a set of
// configured roots in parallel and held behind a single atomic reference so
// readers never observe a partially-built catalog.
package shareindex

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/overlayd/overlayd/internal/errs"
	"github.com/overlayd/overlayd/internal/events"
	"github.com/overlayd/overlayd/internal/statestore"
	"github.com/overlayd/overlayd/internal/validation"
)

// Root is one configured share root, parsed from a "[alias]absolute-path"
// spec with an optional leading "!" or "-" marking it hidden (§4.2 "Path
// model"): a hidden root is searchable by the operator but never advertised
// to peers.
type Root struct {
	Alias  string
	Path   string // absolute, host-OS-separated
	Hidden bool
}

var rootSpecPattern = regexp.MustCompile(`^([!-])?\[([^\]]+)\](.+)$`)

// ParseRootSpec parses one "[alias]absolute-path" line from configuration.
func ParseRootSpec(spec string) (Root, error) {
	m := rootSpecPattern.FindStringSubmatch(spec)
	if m == nil {
		return Root{}, errs.New(errs.InvalidArgument, "malformed share root spec: "+spec)
	}
	if err := validation.ValidateDirectoryPath(m[3]); err != nil {
		return Root{}, errs.Wrap(errs.InvalidArgument, err, "bad share root path")
	}
	return Root{
		Alias:  m[2],
		Path:   m[3],
		Hidden: m[1] == "!" || m[1] == "-",
	}, nil
}

// File is a single advertised file, keyed by its virtual path (the alias
// followed by its path under the root, forward-slash separated
// internally — normalized to the host OS form for local use and to
// backslash for the overlay wire format by the peer-protocol layer).
type File struct {
	VirtualPath string
	Name        string
	Size        int64
	ModTime     time.Time
	Audio       *AudioMetadata // nil if not audio, or probing failed
	Hidden      bool           // inherited from its root; never set through peer-facing queries
}

// Directory is one directory's worth of files, keyed by its virtual path.
type Directory struct {
	VirtualPath string
	Name        string
	Files       []File
	Hidden      bool // every file under it belongs to the same hidden root
}

// StorageMode selects how the active catalog is held and queried.
type StorageMode string

const (
	InMemory StorageMode = "in-memory"
	OnDisk   StorageMode = "on-disk"
)

// Config configures a scan: the roots to walk, exclusion filters, and how
// the resulting catalog is stored and queried.
type Config struct {
	Roots                            []Root
	FilterPatterns                   []*regexp.Regexp // compiled exclude list; a match excludes the file
	WorkerCount                      int              // 0 = runtime.NumCPU()
	Storage                          StorageMode
	DBPath                           string // required when Storage == OnDisk
	ResponseLimit                    int    // 0 = unbounded
	RemoveSingleCharacterSearchTerms bool
	Bus                              *events.Bus
	States                           *statestore.Store
}

// Index is the shared-file index: one atomically-swapped catalog behind a
// small, mostly read-only API.
type Index struct {
	cfg     Config
	cfgMu   sync.RWMutex // guards Roots/FilterPatterns, the two fields Reconfigure can change live
	catalog atomic.Pointer[catalog]
}

// New constructs an Index with an empty catalog. Call Refill to populate it.
func New(cfg Config) *Index {
	if cfg.ResponseLimit <= 0 {
		cfg.ResponseLimit = 250
	}
	idx := &Index{cfg: cfg}
	idx.catalog.Store(newCatalog())
	return idx
}

// Search returns every file whose virtual path matches every token in
// query, per §4.2 "Search semantics", truncated to the configured response
// limit. Includes hidden roots; for the operator-only path (e.g. the CLI)
// rather than anything a peer can trigger.
func (idx *Index) Search(query string) []File {
	return idx.catalog.Load().search(query, idx.cfg.RemoveSingleCharacterSearchTerms, idx.cfg.ResponseLimit, true)
}

// SearchVisible is Search with every file belonging to a hidden root
// omitted — the peer-facing search response (§4.2: a hidden root is
// "searchable by the operator but never advertised to peers").
func (idx *Index) SearchVisible(query string) []File {
	return idx.catalog.Load().search(query, idx.cfg.RemoveSingleCharacterSearchTerms, idx.cfg.ResponseLimit, false)
}

// Browse returns every directory in the current catalog, including hidden
// roots.
func (idx *Index) Browse() []Directory {
	return idx.catalog.Load().browse(true)
}

// BrowseVisible is Browse with hidden-root directories omitted, for the
// peer-facing browse response.
func (idx *Index) BrowseVisible() []Directory {
	return idx.catalog.Load().browse(false)
}

// List returns the single directory at directoryPath, including a hidden
// root's directories.
func (idx *Index) List(directoryPath string) (Directory, error) {
	return idx.catalog.Load().list(directoryPath, true)
}

// ListVisible is List, reporting NotFound for a directory that belongs to a
// hidden root rather than revealing its existence to a peer.
func (idx *Index) ListVisible(directoryPath string) (Directory, error) {
	return idx.catalog.Load().list(directoryPath, false)
}

// Resolve maps a remote filename — as requested by a peer, backslash-
// separated per the overlay wire format (§4.2 "Path model") — back to its
// local filesystem path.
func (idx *Index) Resolve(remoteName string) (string, error) {
	virtualPath := strings.ReplaceAll(remoteName, `\`, "/")
	return idx.catalog.Load().resolve(virtualPath)
}

// Reconfigure replaces the roots and compiled filter patterns a future
// Refill walks. It takes effect on the next Refill; the currently active
// catalog is untouched until then (§4.5.2's "Shares.Paths"/"Shares.Filters"
// subsystems apply by triggering a rescan, not by mutating the live index).
func (idx *Index) Reconfigure(roots []Root, filters []*regexp.Regexp) {
	idx.cfgMu.Lock()
	defer idx.cfgMu.Unlock()
	idx.cfg.Roots = roots
	idx.cfg.FilterPatterns = filters
}

// ActiveFilters returns the filter patterns a future Refill will apply,
// for callers that need to change Roots via Reconfigure while keeping the
// currently configured filters untouched.
func (idx *Index) ActiveFilters() []*regexp.Regexp {
	return idx.filterPatterns()
}

func (idx *Index) roots() []Root {
	idx.cfgMu.RLock()
	defer idx.cfgMu.RUnlock()
	return idx.cfg.Roots
}

func (idx *Index) filterPatterns() []*regexp.Regexp {
	idx.cfgMu.RLock()
	defer idx.cfgMu.RUnlock()
	return idx.cfg.FilterPatterns
}

// Stats reports the size of the currently active catalog.
func (idx *Index) Stats() (directories, files int) {
	return idx.catalog.Load().stats()
}

// Load populates the catalog from the on-disk store without walking any
// configured root, for a warm daemon restart (§4.2 "Storage mode: on-disk").
// It is a no-op if Storage isn't OnDisk or no store exists yet at DBPath;
// callers still need an eventual Refill to pick up filesystem changes made
// while the daemon was down.
func (idx *Index) Load() error {
	if idx.cfg.Storage != OnDisk || idx.cfg.DBPath == "" {
		return nil
	}
	found, err := loadPersistedCatalog(idx.cfg.DBPath)
	if err != nil {
		return err
	}
	if found == nil {
		return nil
	}
	idx.catalog.Store(buildCatalog(found))
	return nil
}
