// Package shareservice is the public facade over the share index core,
// grounded on the teacher's service layer (internal/adapters/repository
// callers wired through a single orchestrating type) generalized to own
// hosts, react to configuration changes, and drive scan/browse/search.
package shareservice

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shareindex/peer/internal/domain"
	"github.com/shareindex/peer/internal/domain/ports"
	"github.com/shareindex/peer/internal/fileinfo"
	"github.com/shareindex/peer/internal/hub"
	"github.com/shareindex/peer/internal/scanner"
	"github.com/shareindex/peer/internal/share"
	"github.com/shareindex/peer/internal/shareindex"
)

// DirectoryView is one directory and the files directly within it, as
// returned by Browse/ListDirectory. Filenames are trailing-component only
// (spec.md §4.4 "files are listed with filename only, not full masked path").
type DirectoryView struct {
	Name  string
	Files []FileView
}

// FileView is one file within a DirectoryView.
type FileView struct {
	Name string
	Size int64
}

// Service is the ShareService facade: owns hosts, watches configuration,
// drives Initialize -> (Restore | Scan), and serves reads.
type Service struct {
	localHostName string

	primary    *shareindex.Repository
	backupPath string
	cache      ports.CacheMode

	factory    *fileinfo.Factory
	cacheState *hub.ManagedState[hub.SharedFileCacheState]
	state      *hub.ManagedState[hub.ShareState]
	scan       *scanner.Scanner

	options ports.OptionsSource

	hostsMu sync.RWMutex
	hosts   map[string]*share.Host

	configMu  sync.Mutex
	shareHash string

	scanMu     sync.Mutex
	cancelScan context.CancelFunc
}

// Config carries the dependencies needed to build a Service.
type Config struct {
	LocalHostName string
	Primary       *shareindex.Repository
	// BackupPath is the on-disk path of the secondary backup repository.
	// Never held open: each backup/restore operation opens and closes its
	// own short-lived connection, since BackupTo replaces the file at this
	// path wholesale (VACUUM INTO) and a long-held connection would keep
	// observing the file it replaced instead of the new one.
	BackupPath string
	CacheMode  ports.CacheMode
	Factory    *fileinfo.Factory
	Workers    int
	Options    ports.OptionsSource
	Clock      ports.Clock
}

// New builds a Service wired to cfg's dependencies. The local host is
// created empty and offline; its shares are populated by onConfigChanged
// (driven by cfg.Options change notifications) or AddOrUpdateHost.
func New(cfg Config) *Service {
	cacheState := hub.NewSharedFileCacheState()
	s := &Service{
		localHostName: cfg.LocalHostName,
		primary:       cfg.Primary,
		backupPath:    cfg.BackupPath,
		cache:         cfg.CacheMode,
		factory:       cfg.Factory,
		cacheState:    cacheState,
		state:         hub.NewShareState(),
		scan:          scanner.New(cfg.Primary, cfg.Factory, cacheState, cfg.Workers, cfg.Clock),
		options:       cfg.Options,
		hosts:         map[string]*share.Host{cfg.LocalHostName: share.NewHost(cfg.LocalHostName)},
	}

	if cfg.Options != nil {
		cfg.Options.OnChange(func() { s.onConfigChanged() })
		s.onConfigChanged()
	}

	return s
}

// State returns the observable ShareState, for UIs/debug surfaces to
// subscribe to.
func (s *Service) State() *hub.ManagedState[hub.ShareState] { return s.state }

// CacheState returns the scanner's lower-level observable progress state,
// for debug surfaces that want fine-grained fill progress rather than the
// service-level summary in State().
func (s *Service) CacheState() *hub.ManagedState[hub.SharedFileCacheState] { return s.cacheState }

// Initialize runs the startup decision tree, spec.md §4.4.1.
func (s *Service) Initialize(ctx context.Context, forceRescan bool) error {
	err := s.initializeOnce(ctx, forceRescan)
	if err != nil && !forceRescan {
		log.Warn().Err(err).Msg("shareservice: initialize failed, retrying with forced rescan")
		err = s.initializeOnce(ctx, true)
	}
	if err != nil {
		return domain.NewShareInitializationError("Initialize", err)
	}
	return nil
}

func (s *Service) initializeOnce(ctx context.Context, forceRescan bool) error {
	if s.cache == ports.CacheModeMemory {
		// Memory mode only holds one pooled connection; if it's ever recycled
		// out from under the catalog the in-memory database is silently
		// lost, so a keepalive probe must run for the lifetime of the
		// process, not just across the branch that restores from backup.
		s.primary.EnableKeepalive(true, func(err error) {
			log.Fatal().Err(err).Msg("shareservice: memory-mode keepalive probe failed, catalog is lost")
		})
	}

	if forceRescan {
		result, err := s.Scan(ctx)
		if err != nil {
			return err
		}
		if result.Cancelled || result.Faulted {
			return fmt.Errorf("forced rescan did not complete: cancelled=%v faulted=%v", result.Cancelled, result.Faulted)
		}
		return s.publishReady()
	}

	switch s.cache {
	case ports.CacheModeMemory:
		if !s.backupValid() {
			return fmt.Errorf("backup repository invalid, cannot restore")
		}
		if err := s.primary.RestoreFrom(s.backupPath); err != nil {
			return fmt.Errorf("restore from backup: %w", err)
		}
		return s.publishReady()
	default: // CacheModeDisk
		if ok, _ := s.primary.TryValidate(); ok {
			return s.publishReady()
		}
		if s.backupValid() {
			if err := s.primary.RestoreFrom(s.backupPath); err != nil {
				return fmt.Errorf("restore from backup: %w", err)
			}
			return s.publishReady()
		}
		return fmt.Errorf("primary repository invalid and no valid backup")
	}
}

// backupValid opens a short-lived connection to the backup path purely to
// run TryValidate, then closes it — the backup file is replaced wholesale
// by BackupTo (VACUUM INTO), so it is never held open between scans.
func (s *Service) backupValid() bool {
	if s.backupPath == "" {
		return false
	}
	backup, err := shareindex.Open(s.backupPath)
	if err != nil {
		return false
	}
	defer backup.Close()
	ok, _ := backup.TryValidate()
	return ok
}

func (s *Service) publishReady() error {
	dirs := s.primary.CountDirectories("")
	files := s.primary.CountFiles("")
	s.state.SetValue(func(hub.ShareState) hub.ShareState {
		return hub.ShareState{Ready: true, ScanProgress: 1, Directories: dirs, Files: files}
	})
	return nil
}

// Scan crawls every non-excluded share of the local host and, on success,
// backs the primary repository up to the secondary backup path. Never
// runs concurrently with another scan: a second caller gets
// domain.ErrScanInProgress immediately, per spec.md §4.4.
func (s *Service) Scan(ctx context.Context) (scanner.Result, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	s.scanMu.Lock()
	if s.cancelScan != nil {
		s.scanMu.Unlock()
		cancel()
		return scanner.Result{}, domain.NewScanInProgressError("Scan")
	}
	s.cancelScan = cancel
	s.scanMu.Unlock()

	defer func() {
		s.scanMu.Lock()
		s.cancelScan = nil
		s.scanMu.Unlock()
		cancel()
	}()

	s.state.SetValue(func(st hub.ShareState) hub.ShareState {
		st.Scanning = true
		st.ScanPending = false
		return st
	})

	shares := s.localShares()
	result, err := s.scan.Scan(scanCtx, shares, s.options.Filters())

	s.state.SetValue(func(st hub.ShareState) hub.ShareState {
		st.Scanning = false
		st.Cancelled = result.Cancelled
		st.Faulted = result.Faulted || err != nil
		if !result.Cancelled && !result.Faulted && err == nil {
			st.ScanProgress = 1
			st.Directories = s.primary.CountDirectories("")
			st.Files = s.primary.CountFiles("")
		}
		return st
	})

	if err != nil {
		return result, err
	}
	if result.Cancelled || result.Faulted {
		return result, nil
	}

	if s.backupPath != "" {
		if err := s.primary.BackupTo(s.backupPath); err != nil {
			log.Warn().Err(err).Msg("shareservice: post-scan backup failed")
		} else {
			log.Info().Msg("shareservice: backed up primary repository after successful scan")
		}
	}

	return result, nil
}

// TryCancelScan cancels the in-flight scan, if any, and reports whether
// one was in fact cancelled.
func (s *Service) TryCancelScan() bool {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	if s.cancelScan == nil {
		return false
	}
	s.cancelScan()
	return true
}

// Browse lists every known directory and the files directly within it,
// for the local host, optionally restricted to one share's subtree.
// Every known directory is returned, even ones with no files, so remote
// browsers render empty folders correctly (spec.md §4.4).
func (s *Service) Browse(sharePrefix string) []DirectoryView {
	dirRows := s.primary.ListDirectories(sharePrefix)
	views := make([]DirectoryView, 0, len(dirRows))
	for _, d := range dirRows {
		views = append(views, DirectoryView{
			Name:  d.Name,
			Files: directChildren(s.primary.ListFiles(d.Name+`\`, true), d.Name),
		})
	}
	return views
}

// ListDirectory returns the files within exactly one directory (not
// recursive).
func (s *Service) ListDirectory(maskedDirectory string) DirectoryView {
	return DirectoryView{
		Name:  maskedDirectory,
		Files: directChildren(s.primary.ListFiles(maskedDirectory+`\`, true), maskedDirectory),
	}
}

// directChildren filters rows (already LIKE-prefix matched against
// dir+`\`) down to files directly inside dir, excluding anything one or
// more subdirectories deeper, and trims each name to its filename
// component only.
func directChildren(rows []shareindex.FileRow, dir string) []FileView {
	prefix := dir + `\`
	out := make([]FileView, 0, len(rows))
	for _, r := range rows {
		rel := strings.TrimPrefix(r.MaskedFilename, prefix)
		if rel == r.MaskedFilename || strings.Contains(rel, `\`) {
			continue
		}
		out = append(out, FileView{Name: rel, Size: r.Size})
	}
	return out
}

// Search delegates to the repository, returning masked filenames
// normalized to backslash separators (already the repository's native
// form).
func (s *Service) Search(query shareindex.SearchQuery) []shareindex.FileRow {
	return s.primary.Search(query)
}

// ResolveFile looks up maskedFilename in the repository. If the row
// exists but the file is missing from disk, this marks the observable
// state ScanPending, flags the latest scan suspect, and fails with
// domain.ErrNotFound, per spec.md §4.4.
func (s *Service) ResolveFile(maskedFilename string) (string, int64, error) {
	local, size, ok := s.primary.FindFileInfo(maskedFilename)
	if !ok {
		return "", 0, &domain.NotFoundError{MaskedName: maskedFilename}
	}
	if !fileExists(local) {
		s.state.SetValue(func(st hub.ShareState) hub.ShareState {
			st.ScanPending = true
			return st
		})
		if err := s.primary.FlagLatestScanAsSuspect(); err != nil {
			log.Warn().Err(err).Msg("shareservice: flag scan suspect failed")
		}
		return "", 0, &domain.NotFoundError{MaskedName: maskedFilename}
	}
	return local, size, nil
}

// SummarizeShare returns directory and file counts for everything under
// sh's remote path prefix.
func (s *Service) SummarizeShare(sh share.Share) (dirs, files int) {
	return s.primary.CountDirectories(sh.RemotePath), s.primary.CountFiles(sh.RemotePath)
}

// AddOrUpdateHost registers or replaces a remote host's published shares.
func (s *Service) AddOrUpdateHost(h *share.Host) {
	s.hostsMu.Lock()
	defer s.hostsMu.Unlock()
	s.hosts[h.Name] = h
}

// TryGetHost returns the host named name, if known.
func (s *Service) TryGetHost(name string) (*share.Host, bool) {
	s.hostsMu.RLock()
	defer s.hostsMu.RUnlock()
	h, ok := s.hosts[name]
	return h, ok
}

// TryRemoveHost removes the host named name, reporting whether it
// existed.
func (s *Service) TryRemoveHost(name string) bool {
	s.hostsMu.Lock()
	defer s.hostsMu.Unlock()
	if _, ok := s.hosts[name]; !ok {
		return false
	}
	delete(s.hosts, name)
	return true
}

// ListScans returns scans started at or after since (milliseconds).
func (s *Service) ListScans(since int64) []shareindex.ScanRow {
	return s.primary.ListScans(since)
}

func (s *Service) localShares() []share.Share {
	s.hostsMu.RLock()
	defer s.hostsMu.RUnlock()
	h, ok := s.hosts[s.localHostName]
	if !ok {
		return nil
	}
	cp := make([]share.Share, len(h.Shares))
	copy(cp, h.Shares)
	return cp
}

// onConfigChanged implements spec.md §4.4.2: compute a hash of the
// ordered, normalized share-directory list; if unchanged, do nothing.
// Otherwise trim, dedupe, parse, sort, replace the local host's shares,
// and mark ScanPending. Serialized by configMu so the update is atomic
// from the service's perspective even if OnChange fires concurrently
// with another onConfigChanged call.
func (s *Service) onConfigChanged() {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	roots := normalizeRoots(s.options.ShareRoots())
	hash := hashRoots(roots)
	if hash == s.shareHash {
		return
	}
	s.shareHash = hash

	shares := make([]share.Share, 0, len(roots))
	for _, r := range roots {
		shares = append(shares, share.ParseShare(r))
	}
	share.SortSharesByPathLengthDesc(shares)

	s.hostsMu.Lock()
	h, ok := s.hosts[s.localHostName]
	if !ok {
		h = share.NewHost(s.localHostName)
		s.hosts[s.localHostName] = h
	}
	h.ReplaceShares(shares)
	s.hostsMu.Unlock()

	s.state.SetValue(func(st hub.ShareState) hub.ShareState {
		st.ScanPending = true
		return st
	})
}

func normalizeRoots(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		trimmed := strings.TrimRight(r, `/\`)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, trimmed)
	}
	return out
}

func hashRoots(roots []string) string {
	h := sha1.New()
	for _, r := range roots {
		h.Write([]byte(r))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
