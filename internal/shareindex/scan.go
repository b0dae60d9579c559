package shareindex

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/overlayd/overlayd/internal/events"
	"github.com/overlayd/overlayd/internal/localfs"
	"github.com/overlayd/overlayd/internal/statestore"
)

// discovered is a file found during the directory-walk phase, before audio
// probing has run.
type discovered struct {
	localPath   string
	virtualPath string
	size        int64
	modTime     time.Time
	hidden      bool
}

// Refill scans every configured root and atomically swaps in the resulting
// catalog, per §4.2 "Atomic refill". Readers never observe a partially-built
// catalog: Search/Browse/List/Resolve calls concurrent with a Refill either
// see the old catalog in full or the new one in full.
func (idx *Index) Refill() error {
	if idx.cfg.Bus != nil {
		idx.cfg.Bus.Publish(&events.ShareScanEvent{BaseEvent: events.NewBaseEvent(events.EventShareScanStarted)})
	}
	idx.reportProgress(0, false)

	found, faulted := walkRoots(idx.roots(), idx.filterPatterns())

	workers := idx.cfg.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	files := probeAll(found, workers, func(fraction float64) {
		idx.reportProgress(fraction, false)
	})

	next := buildCatalog(files)
	next.faulted = faulted
	idx.catalog.Store(next)

	if idx.cfg.Storage == OnDisk && idx.cfg.DBPath != "" {
		if err := persistCatalog(idx.cfg.DBPath, files); err != nil {
			next.faulted = true
		}
	}

	dirs, fileCount := next.stats()
	idx.reportProgressFinal(dirs, fileCount, faulted)
	if idx.cfg.Bus != nil {
		idx.cfg.Bus.Publish(&events.ShareScanEvent{
			BaseEvent:    events.NewBaseEvent(events.EventShareScanComplete),
			FilesScanned: fileCount,
			FilesTotal:   fileCount,
			Done:         true,
		})
	}
	return nil
}

// walkRoots runs one worker per root (§4.2 "Scan"), walking each
// filesystem tree in parallel and excluding files that match the compiled
// filter list. A root that can't be walked at all (doesn't exist, no
// permission) is skipped and marks the result faulted, but never aborts the
// other roots.
func walkRoots(roots []Root, filters []*regexp.Regexp) ([]discovered, bool) {
	var (
		mu      sync.Mutex
		results []discovered
		faulted bool
		wg      sync.WaitGroup
	)

	for _, root := range roots {
		wg.Add(1)
		go func(root Root) {
			defer wg.Done()
			var local []discovered
			err := localfs.WalkFiles(root.Path, localfs.WalkOptions{}, func(e localfs.FileEntry) error {
				rel, relErr := filepath.Rel(root.Path, e.Path)
				if relErr != nil {
					return nil
				}
				virtual := path.Join(root.Alias, filepath.ToSlash(rel))
				if matchesAny(filters, virtual) {
					return nil
				}
				local = append(local, discovered{
					localPath:   e.Path,
					virtualPath: virtual,
					size:        e.Size,
					modTime:     e.ModTime,
					hidden:      root.Hidden,
				})
				return nil
			})
			if err == nil {
				// Walk skips unreadable entries silently, the root included.
				if f, openErr := os.Open(root.Path); openErr != nil {
					err = openErr
				} else {
					f.Close()
				}
			}

			mu.Lock()
			if err != nil {
				faulted = true
			}
			results = append(results, local...)
			mu.Unlock()
		}(root)
	}

	wg.Wait()
	return results, faulted
}

func matchesAny(filters []*regexp.Regexp, s string) bool {
	for _, f := range filters {
		if f.MatchString(s) {
			return true
		}
	}
	return false
}

// probeAll runs audio-metadata probing over found using a worker pool,
// invoking onProgress every time cumulative completion crosses a new 10%
// boundary. Probing failures are non-fatal: the file is retained without
// metadata (§4.2 "Scan").
func probeAll(found []discovered, workers int, onProgress func(fraction float64)) []indexedFile {
	total := len(found)
	if total == 0 {
		onProgress(1)
		return nil
	}
	if workers <= 0 {
		workers = 1
	}

	out := make([]indexedFile, total)
	jobs := make(chan int, total)
	for i := range found {
		jobs <- i
	}
	close(jobs)

	var processed int64
	var lastReported int64
	var progressMu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				d := found[i]
				out[i] = indexedFile{
					File: File{
						VirtualPath: d.virtualPath,
						Name:        path.Base(d.virtualPath),
						Size:        d.size,
						ModTime:     d.modTime,
						Audio:       probeAudio(d.localPath),
						Hidden:      d.hidden,
					},
					LocalPath: d.localPath,
				}

				n := atomic.AddInt64(&processed, 1)
				fraction := float64(n) / float64(total)
				bucket := int64(fraction * 10)

				progressMu.Lock()
				crossed := bucket > lastReported
				if crossed {
					lastReported = bucket
				}
				progressMu.Unlock()

				if crossed {
					onProgress(fraction)
				}
			}
		}()
	}
	wg.Wait()

	return out
}

func (idx *Index) reportProgress(fraction float64, faulted bool) {
	if idx.cfg.States == nil {
		return
	}
	idx.cfg.States.Update(func(s *statestore.Snapshot) {
		s.ShareScan.Filling = fraction < 1
		s.ShareScan.FillProgress = fraction
		s.ShareScan.Faulted = faulted
	})
}

func (idx *Index) reportProgressFinal(dirs, files int, faulted bool) {
	if idx.cfg.States == nil {
		return
	}
	idx.cfg.States.Update(func(s *statestore.Snapshot) {
		s.ShareScan.Filling = false
		s.ShareScan.FillProgress = 1
		s.ShareScan.Directories = dirs
		s.ShareScan.Files = files
		s.ShareScan.Faulted = faulted
	})
}
