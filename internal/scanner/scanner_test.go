package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shareindex/peer/internal/fileinfo"
	"github.com/shareindex/peer/internal/hub"
	"github.com/shareindex/peer/internal/share"
	"github.com/shareindex/peer/internal/shareindex"
)

func newScannerForTest(t *testing.T) (*Scanner, *shareindex.Repository) {
	t.Helper()
	repo, err := shareindex.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("shareindex.Open() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	if err := repo.Create(false); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	factory := fileinfo.NewFactory(fileinfo.NewTagProbe())
	state := hub.NewSharedFileCacheState()
	return New(repo, factory, state, 2, nil), repo
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestScanner_BasicScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "song1.mp3"), make([]byte, 1024))
	writeFile(t, filepath.Join(root, "a", "song2.flac"), make([]byte, 2048))

	sh := share.ParseShare(root)
	s, repo := newScannerForTest(t)

	result, err := s.Scan(context.Background(), []share.Share{sh}, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.Cancelled || result.Faulted {
		t.Fatalf("Scan() result = %+v, want neither cancelled nor faulted", result)
	}

	dirs := repo.ListDirectories("")
	if len(dirs) != 2 {
		t.Fatalf("ListDirectories() = %d rows, want 2 (alias, alias\\a): %+v", len(dirs), dirs)
	}

	if repo.CountFiles("") != 2 {
		t.Fatalf("CountFiles() = %d, want 2", repo.CountFiles(""))
	}

	orig, size, ok := repo.FindFileInfo(sh.Alias + `\a\song1.mp3`)
	if !ok || size != 1024 || orig == "" {
		t.Fatalf("FindFileInfo(song1) = (%q, %d, %v)", orig, size, ok)
	}
	_, size2, ok2 := repo.FindFileInfo(sh.Alias + `\a\song2.flac`)
	if !ok2 || size2 != 2048 {
		t.Fatalf("FindFileInfo(song2) = (%d, %v)", size2, ok2)
	}
}

func TestScanner_RepositoryWriteFailureFaults(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "song.mp3"), []byte("x"))

	sh := share.ParseShare(root)
	s, repo := newScannerForTest(t)
	repo.Close()

	result, err := s.Scan(context.Background(), []share.Share{sh}, nil)
	if err == nil {
		t.Fatal("Scan() error = nil, want propagated insert error")
	}
	if !result.Faulted {
		t.Fatalf("Scan() result = %+v, want Faulted", result)
	}
}

func TestScanner_Exclusion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.mp3"), []byte("k"))
	writeFile(t, filepath.Join(root, "x", "skip.mp3"), []byte("s"))

	main := share.ParseShare(root)
	excluded := share.ParseShare("-" + filepath.Join(root, "x"))

	s, repo := newScannerForTest(t)
	result, err := s.Scan(context.Background(), []share.Share{main, excluded}, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.Cancelled || result.Faulted {
		t.Fatalf("Scan() result = %+v", result)
	}

	if repo.CountFiles("") != 1 {
		t.Fatalf("CountFiles() = %d, want 1", repo.CountFiles(""))
	}
	if _, _, ok := repo.FindFileInfo(main.Alias + `\keep.mp3`); !ok {
		t.Fatal("FindFileInfo(keep.mp3) not found")
	}

	if _, err := share.Resolve([]share.Share{main, excluded}, main.Alias+`\x\skip.mp3`); err == nil {
		t.Fatal("Resolve(excluded path) = nil error, want ErrNoShareMatches-wrapping error")
	}
}

func TestScanner_FilterRegex(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp3"), []byte("a"))
	writeFile(t, filepath.Join(root, "b.nfo"), []byte("b"))

	sh := share.ParseShare(root)
	s, repo := newScannerForTest(t)

	result, err := s.Scan(context.Background(), []share.Share{sh}, []string{`\.nfo$`})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.Cancelled || result.Faulted {
		t.Fatalf("Scan() result = %+v", result)
	}

	if repo.CountFiles("") != 1 {
		t.Fatalf("CountFiles() = %d, want 1", repo.CountFiles(""))
	}
	if _, _, ok := repo.FindFileInfo(sh.Alias + `\a.mp3`); !ok {
		t.Fatal("FindFileInfo(a.mp3) not found")
	}
}

func TestScanner_CancelMidScan(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 1000; i++ {
		writeFile(t, filepath.Join(root, "dir"+strconv.Itoa(i), "f.mp3"), []byte("x"))
	}

	sh := share.ParseShare(root)
	s, repo := newScannerForTest(t)

	// Seed a pre-existing row with an old timestamp to verify prune is
	// skipped on cancellation (spec.md §8 scenario 4).
	if err := repo.InsertDirectory("stale", 1); err != nil {
		t.Fatalf("InsertDirectory() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	result, err := s.Scan(ctx, []share.Share{sh}, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !result.Cancelled {
		t.Fatalf("Scan() result = %+v, want Cancelled=true", result)
	}

	dirs := repo.ListDirectories("")
	found := false
	for _, d := range dirs {
		if d.Name == "stale" {
			found = true
		}
	}
	if !found {
		t.Fatal("stale directory row was pruned despite cancellation")
	}
}
