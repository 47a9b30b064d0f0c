package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/shareindex/peer/internal/domain"
	"github.com/shareindex/peer/internal/domain/ports"
	"github.com/shareindex/peer/internal/fileinfo"
	"github.com/shareindex/peer/internal/hub"
	"github.com/shareindex/peer/internal/shareindex"
	"github.com/shareindex/peer/internal/share"
)

// channelCapacity is the bounded directory channel's capacity, per
// spec.md §4.3.2 step 8.
const channelCapacity = 1000

// skipEntryNames are directory/file basenames treated as system artifacts
// and never crawled into or indexed, grounded on the teacher's
// SkipDirectories list (internal/adapters/repository/types.go) but
// adjusted from VCS/build-tool noise to filesystem/OS noise, since a
// share root is an arbitrary user directory, not a source checkout.
var skipEntryNames = map[string]bool{
	"$RECYCLE.BIN":               true,
	"System Volume Information": true,
	".Trash":                    true,
	".Trashes":                  true,
	".fseventsd":                true,
	".Spotlight-V100":           true,
	"lost+found":                true,
	".DS_Store":                 true,
	"Thumbs.db":                 true,
}

func isHiddenOrSystem(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return skipEntryNames[name]
}

// Result is the outcome of one Scan call, standing in for the
// exceptions-as-control-flow design the spec's original language used
// (spec.md §9 "Exceptions as control flow").
type Result struct {
	Cancelled bool
	Faulted   bool
}

// Scanner implements the ShareScanner state machine and algorithm,
// spec.md §4.3.
type Scanner struct {
	repo    *shareindex.Repository
	factory *fileinfo.Factory
	state   *hub.ManagedState[hub.SharedFileCacheState]
	workers int
	clock   ports.Clock

	scanning atomic.Bool
}

// New builds a Scanner. workers < 1 is treated as 1.
func New(repo *shareindex.Repository, factory *fileinfo.Factory, state *hub.ManagedState[hub.SharedFileCacheState], workers int, clock ports.Clock) *Scanner {
	if workers < 1 {
		workers = 1
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Scanner{repo: repo, factory: factory, state: state, workers: workers, clock: clock}
}

// scanOptions is serialized into the scans.optionsJson column.
type scanOptions struct {
	Shares  []string `json:"shares"`
	Filters []string `json:"filters"`
}

// Scan runs one full crawl of shares, applying filters to file names.
// Only one scan may run at a time: a concurrent call fails immediately
// with domain.ErrScanInProgress rather than queuing, per spec.md §4.3.1.
func (s *Scanner) Scan(ctx context.Context, shares []share.Share, filters []string) (Result, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return Result{}, domain.NewScanInProgressError("Scanner.Scan")
	}
	defer s.scanning.Store(false)

	s.publish(func(st hub.SharedFileCacheState) hub.SharedFileCacheState {
		return hub.SharedFileCacheState{Filling: true}
	})

	if ok, problems := s.repo.TryValidate(); !ok {
		log.Warn().Strs("problems", problems).Msg("scanner: repository schema invalid, recreating")
		if err := s.repo.Create(true); err != nil {
			s.fault()
			return Result{Faulted: true}, domain.NewShareInitializationError("Scanner.Scan", err)
		}
	}

	compiledFilters := compileFilters(filters)

	startedAt := s.clock.Now().UnixMilli()
	optionsJSON, _ := json.Marshal(scanOptions{Shares: shareRawStrings(shares), Filters: filters})
	if err := s.repo.InsertScan(startedAt, string(optionsJSON)); err != nil {
		s.fault()
		return Result{Faulted: true}, err
	}

	sorted := make([]share.Share, len(shares))
	copy(sorted, shares)
	share.SortSharesByPathLengthDesc(sorted)

	dirs, excludedCount := enumerateDirectories(sorted)

	s.publish(func(st hub.SharedFileCacheState) hub.SharedFileCacheState {
		st.Directories = len(dirs)
		st.ExcludedDirectories = excludedCount
		return st
	})

	ch := make(chan string, channelCapacity)

	var processedDirs int64
	var filesInserted int64

	// Each worker is a ChannelReader sharing ch, per spec.md §4.5 ("multiple
	// reader instances may share one channel — this is how the scanner fans
	// out"). Workers join through an errgroup rather than a bare WaitGroup
	// so a write-path failure in one worker (step 14: write paths
	// propagate, read paths don't) cancels the group's context, which in
	// turn stops enqueueDirectories from feeding the channel further; the
	// errgroup goroutine reports as soon as its reader's handler errors
	// (via onError), rather than waiting for the channel to drain.
	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		handlerErr := make(chan error, 1)
		reader := NewChannelReader(
			fmt.Sprintf("scan-worker-%d", i),
			ch,
			func(dir string) error {
				if err := s.processDirectory(sorted, compiledFilters, dir, startedAt, &filesInserted); err != nil {
					return err
				}
				n := atomic.AddInt64(&processedDirs, 1)
				s.publish(func(st hub.SharedFileCacheState) hub.SharedFileCacheState {
					if len(dirs) > 0 {
						st.FillProgress = float64(n) / float64(len(dirs))
					}
					st.Files = int(atomic.LoadInt64(&filesInserted))
					return st
				})
				return nil
			},
			func(err error) {
				select {
				case handlerErr <- err:
				default:
				}
			},
		)
		reader.Start()
		eg.Go(func() error {
			select {
			case err := <-handlerErr:
				return err
			case <-reader.Completed():
				return reader.Err()
			}
		})
	}

	cancelled := s.enqueueDirectories(egCtx, ch, dirs)
	if err := eg.Wait(); err != nil {
		s.fault()
		return Result{Faulted: true}, err
	}

	if cancelled {
		s.publish(func(hub.SharedFileCacheState) hub.SharedFileCacheState {
			return hub.SharedFileCacheState{Cancelled: true}
		})
		return Result{Cancelled: true}, nil
	}

	if _, err := s.repo.PruneFiles(startedAt); err != nil {
		log.Warn().Err(err).Msg("scanner: prune files failed")
	}
	if _, err := s.repo.PruneDirectories(startedAt); err != nil {
		log.Warn().Err(err).Msg("scanner: prune directories failed")
	}

	endedAt := s.clock.Now().UnixMilli()
	if err := s.repo.UpdateScan(startedAt, endedAt); err != nil {
		log.Warn().Err(err).Msg("scanner: update scan end failed")
	}

	finalDirs := s.repo.CountDirectories("")
	finalFiles := s.repo.CountFiles("")
	s.publish(func(hub.SharedFileCacheState) hub.SharedFileCacheState {
		return hub.SharedFileCacheState{
			Filled:       true,
			FillProgress: 1,
			Directories:  finalDirs,
			Files:        finalFiles,
		}
	})

	return Result{}, nil
}

func (s *Scanner) fault() {
	s.publish(func(hub.SharedFileCacheState) hub.SharedFileCacheState {
		return hub.SharedFileCacheState{Faulted: true}
	})
}

func (s *Scanner) publish(mutate func(hub.SharedFileCacheState) hub.SharedFileCacheState) {
	if s.state == nil {
		return
	}
	s.state.SetValue(mutate)
}

// enqueueDirectories feeds dirs into ch in order, stopping early and
// closing ch if ctx is cancelled, per spec.md §4.3.2 step 10. It returns
// whether the scan was cancelled.
func (s *Scanner) enqueueDirectories(ctx context.Context, ch chan<- string, dirs []string) bool {
	defer close(ch)
	for _, d := range dirs {
		select {
		case <-ctx.Done():
			return true
		case ch <- d:
		}
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// processDirectory upserts dir's masked directory row and every accepted
// file within it (not recursive). Read-path failures (an unreadable
// directory, a file whose metadata a probe can't parse) are logged and
// skipped; write-path failures (a catalog insert) propagate per spec.md
// §4.3.2 step 9/14's read-skips/write-propagates split.
func (s *Scanner) processDirectory(sortedShares []share.Share, filters []*regexp.Regexp, dir string, timestamp int64, filesInserted *int64) error {
	sh, ok := share.OwnerOf(sortedShares, dir)
	if !ok {
		log.Debug().Str("dir", dir).Msg("scanner: no owning share for directory, skipping")
		return nil
	}

	if err := s.repo.InsertDirectory(maskDirectory(sh, dir), timestamp); err != nil {
		return fmt.Errorf("insert directory %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("scanner: read directory failed")
		return nil
	}

	touchedAt := time.Now().UTC().Format(time.RFC3339)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if isHiddenOrSystem(name) {
			continue
		}
		if matchesAnyFilter(filters, name) {
			continue
		}

		localFile := filepath.Join(dir, name)
		rec, err := s.factory.Build(localFile, sh.LocalPath, sh.RemotePath)
		if err != nil {
			log.Debug().Err(err).Str("file", localFile).Msg("scanner: build file record failed")
			continue
		}
		if err := s.repo.InsertFile(rec, touchedAt, timestamp); err != nil {
			return fmt.Errorf("insert file %s: %w", localFile, err)
		}
		atomic.AddInt64(filesInserted, 1)
	}
	return nil
}

// maskDirectory is MaskPath's directory-shaped counterpart: it must not
// append a trailing separator when dir is the share root itself.
func maskDirectory(sh share.Share, dir string) string {
	rel, err := filepath.Rel(sh.LocalPath, dir)
	if err != nil || rel == "." || rel == "" {
		return sh.RemotePath
	}
	rel = strings.ReplaceAll(filepath.ToSlash(rel), "/", `\`)
	return sh.RemotePath + `\` + rel
}

// enumerateDirectories walks every non-excluded share's subtree (the
// share roots sorted by descending path length so subdirectory shares are
// still walked independently from their parent's walk — duplicates are
// removed by the final set dedup), skipping hidden/system entries and
// permission errors, then subtracts directories under any excluded
// share. It returns the deduplicated directory set and the count of
// directories removed by exclusion.
func enumerateDirectories(sortedShares []share.Share) ([]string, int) {
	seen := make(map[string]bool)
	var all []string

	for _, sh := range sortedShares {
		if sh.IsExcluded {
			continue
		}
		walkDirectory(sh.LocalPath, func(dir string) {
			if !seen[dir] {
				seen[dir] = true
				all = append(all, dir)
			}
		})
	}

	var kept []string
	excluded := 0
	for _, dir := range all {
		if share.IsExcludedPath(sortedShares, dir) {
			excluded++
			continue
		}
		kept = append(kept, dir)
	}

	sort.Strings(kept)
	return kept, excluded
}

// walkDirectory visits root and every reachable subdirectory under it,
// calling visit for each, skipping hidden/system names and directories
// that can't be read due to permissions.
func walkDirectory(root string, visit func(dir string)) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return
	}
	visit(root)

	entries, err := os.ReadDir(root)
	if err != nil {
		log.Debug().Err(err).Str("dir", root).Msg("scanner: permission denied or unreadable, skipping subtree")
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if isHiddenOrSystem(entry.Name()) {
			continue
		}
		walkDirectory(filepath.Join(root, entry.Name()), visit)
	}
}

func compileFilters(filters []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(filters))
	for _, f := range filters {
		re, err := regexp.Compile(f)
		if err != nil {
			log.Warn().Err(err).Str("filter", f).Msg("scanner: invalid filter regex, ignoring")
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

func matchesAnyFilter(filters []*regexp.Regexp, name string) bool {
	for _, re := range filters {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func shareRawStrings(shares []share.Share) []string {
	out := make([]string, len(shares))
	for i, sh := range shares {
		out[i] = sh.Raw
	}
	return out
}
