package shareindex

import (
	"path/filepath"
	"testing"

	"github.com/shareindex/peer/internal/fileinfo"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := r.Create(false); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRepository_CreateAndValidate(t *testing.T) {
	r := openTestRepository(t)

	ok, problems := r.TryValidate()
	if !ok {
		t.Fatalf("TryValidate() = false, problems = %v", problems)
	}
}

func TestRepository_TryValidate_DetectsMissingTable(t *testing.T) {
	r := openTestRepository(t)

	if _, err := r.db.Exec("DROP TABLE files"); err != nil {
		t.Fatalf("DROP TABLE: %v", err)
	}

	ok, problems := r.TryValidate()
	if ok {
		t.Fatal("TryValidate() = true, want false after dropping a table")
	}
	if len(problems) == 0 {
		t.Fatal("expected at least one problem")
	}
}

func TestRepository_InsertAndListDirectories(t *testing.T) {
	r := openTestRepository(t)

	if err := r.InsertDirectory(`alias`, 100); err != nil {
		t.Fatalf("InsertDirectory() error = %v", err)
	}
	if err := r.InsertDirectory(`alias\a`, 100); err != nil {
		t.Fatalf("InsertDirectory() error = %v", err)
	}

	dirs := r.ListDirectories("")
	if len(dirs) != 2 {
		t.Fatalf("ListDirectories() = %d rows, want 2", len(dirs))
	}
	if r.CountDirectories("") != 2 {
		t.Fatalf("CountDirectories() = %d, want 2", r.CountDirectories(""))
	}
}

func TestRepository_InsertFile_UpsertOverwritesNonKeyColumns(t *testing.T) {
	r := openTestRepository(t)

	rec := fileinfo.File{Code: 1, MaskedFilename: `alias\a\song1.mp3`, OriginalFilename: "/music/a/song1.mp3", Size: 1024, Extension: "mp3"}
	if err := r.InsertFile(rec, "2026-01-01", 100); err != nil {
		t.Fatalf("InsertFile() error = %v", err)
	}

	rec.Size = 2048
	if err := r.InsertFile(rec, "2026-01-02", 200); err != nil {
		t.Fatalf("InsertFile() (update) error = %v", err)
	}

	orig, size, ok := r.FindFileInfo(`alias\a\song1.mp3`)
	if !ok {
		t.Fatal("FindFileInfo() ok = false, want true")
	}
	if size != 2048 {
		t.Fatalf("size = %d, want 2048 after upsert", size)
	}
	if orig != "/music/a/song1.mp3" {
		t.Fatalf("orig = %q", orig)
	}
	if r.CountFiles("") != 1 {
		t.Fatalf("CountFiles() = %d, want 1 (upsert, not duplicate)", r.CountFiles(""))
	}
}

func TestRepository_FindFileInfo_NotFound(t *testing.T) {
	r := openTestRepository(t)
	_, _, ok := r.FindFileInfo(`alias\missing.mp3`)
	if ok {
		t.Fatal("FindFileInfo() ok = true for a name never inserted")
	}
}

func TestRepository_PruneFilesAndDirectories(t *testing.T) {
	r := openTestRepository(t)

	r.InsertDirectory("alias", 100)
	r.InsertFile(fileinfo.File{MaskedFilename: `alias\old.mp3`}, "t", 100)
	r.InsertFile(fileinfo.File{MaskedFilename: `alias\new.mp3`}, "t", 200)

	n, err := r.PruneFiles(200)
	if err != nil {
		t.Fatalf("PruneFiles() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PruneFiles() removed %d, want 1", n)
	}
	if r.CountFiles("") != 1 {
		t.Fatalf("CountFiles() = %d, want 1 after prune", r.CountFiles(""))
	}

	nd, err := r.PruneDirectories(200)
	if err != nil {
		t.Fatalf("PruneDirectories() error = %v", err)
	}
	if nd != 1 {
		t.Fatalf("PruneDirectories() removed %d, want 1", nd)
	}
}

func TestRepository_Search(t *testing.T) {
	r := openTestRepository(t)

	r.InsertFile(fileinfo.File{MaskedFilename: `alias\Alice - Foo (2001).mp3`}, "t", 1)
	r.InsertFile(fileinfo.File{MaskedFilename: `alias\Bob - Bar.flac`}, "t", 1)

	got := r.Search(SearchQuery{Terms: []string{"foo"}, Exclusions: []string{"live"}})
	if len(got) != 1 || got[0].MaskedFilename != `alias\Alice - Foo (2001).mp3` {
		t.Fatalf("Search(foo, -live) = %+v", got)
	}

	got = r.Search(SearchQuery{Terms: []string{"foo"}, Exclusions: []string{"alice"}})
	if len(got) != 0 {
		t.Fatalf("Search(foo, -alice) = %+v, want empty", got)
	}

	got = r.Search(SearchQuery{Terms: []string{"bar"}})
	if len(got) != 1 || got[0].MaskedFilename != `alias\Bob - Bar.flac` {
		t.Fatalf("Search(bar) = %+v", got)
	}
}

func TestRepository_BackupAndRestore(t *testing.T) {
	r := openTestRepository(t)
	r.InsertFile(fileinfo.File{MaskedFilename: `alias\a.mp3`}, "t", 1)

	backupPath := filepath.Join(t.TempDir(), "backup.db")
	if err := r.BackupTo(backupPath); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	fresh, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer fresh.Close()
	if err := fresh.Create(false); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := fresh.RestoreFrom(backupPath); err != nil {
		t.Fatalf("RestoreFrom() error = %v", err)
	}

	if fresh.CountFiles("") != 1 {
		t.Fatalf("CountFiles() after restore = %d, want 1", fresh.CountFiles(""))
	}
	got := fresh.Search(SearchQuery{Terms: []string{"a"}})
	if len(got) != 1 {
		t.Fatalf("Search() after restore = %+v", got)
	}
}

func TestRepository_ScanLifecycle(t *testing.T) {
	r := openTestRepository(t)

	if err := r.InsertScan(100, `{"roots":["/music"]}`); err != nil {
		t.Fatalf("InsertScan() error = %v", err)
	}
	scan, ok := r.FindLatestScan()
	if !ok {
		t.Fatal("FindLatestScan() ok = false")
	}
	if scan.HasEnded {
		t.Fatal("HasEnded = true before UpdateScan")
	}

	if err := r.UpdateScan(100, 150); err != nil {
		t.Fatalf("UpdateScan() error = %v", err)
	}
	scan, _ = r.FindLatestScan()
	if !scan.HasEnded || scan.EndedAt != 150 {
		t.Fatalf("scan = %+v, want HasEnded and EndedAt=150", scan)
	}

	if err := r.FlagLatestScanAsSuspect(); err != nil {
		t.Fatalf("FlagLatestScanAsSuspect() error = %v", err)
	}
	scan, _ = r.FindLatestScan()
	if !scan.Suspect {
		t.Fatal("Suspect = false after FlagLatestScanAsSuspect")
	}
}
