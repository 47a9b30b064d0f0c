// Package shareindex implements the persistent, full-text-searchable file
// catalog described in spec.md §4.1: a single embedded relational database
// with an FTS5 virtual table over masked filenames, grounded on the
// teacher's internal/adapters/repository/indexer.go SQLiteIndexer — the
// same schema-versioning, prepared-statement, and external-content-FTS
// trigger shape, retargeted from source-file indexing onto the share
// catalog's scans/directories/files/filenames tables.
package shareindex

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shareindex/peer/internal/fileinfo"
	_ "modernc.org/sqlite"
)

// expectedObjects lists the schema objects TryValidate checks for, mirroring
// the hardcoded expected map spec.md §4.1 calls for.
var expectedObjects = []string{"scans", "directories", "files", "filenames", "version"}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS version (
	a INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS scans (
	startedAt INTEGER PRIMARY KEY,
	optionsJson TEXT NOT NULL DEFAULT '',
	endedAt INTEGER,
	suspect INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS directories (
	name TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	maskedFilename TEXT PRIMARY KEY,
	originalFilename TEXT NOT NULL,
	size INTEGER NOT NULL,
	touchedAt TEXT NOT NULL,
	code INTEGER NOT NULL DEFAULT 1,
	extension TEXT NOT NULL DEFAULT '',
	attributeJson TEXT NOT NULL DEFAULT '[]',
	timestamp INTEGER NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS filenames USING fts5(
	maskedFilename,
	content='files',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
	INSERT INTO filenames(rowid, maskedFilename) VALUES (new.rowid, new.maskedFilename);
END;

CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
	DELETE FROM filenames WHERE rowid = old.rowid;
END;

CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE ON files BEGIN
	UPDATE filenames SET maskedFilename = new.maskedFilename WHERE rowid = new.rowid;
END;

CREATE INDEX IF NOT EXISTS idx_files_timestamp ON files(timestamp);
CREATE INDEX IF NOT EXISTS idx_directories_timestamp ON directories(timestamp);
`

// Repository is the durable catalog store: directories, files, the
// filenames FTS index, and scan history, backed by a single SQLite
// connection.
type Repository struct {
	db   *sql.DB
	path string

	keepaliveMu     sync.Mutex
	keepaliveCancel func()
}

// Open opens (without creating or validating) the SQLite database at path.
// Use ":memory:" for an in-memory repository. The connection pool is
// pinned to a single connection so the process never silently loses an
// in-memory database to idle-connection churn.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA mmap_size=268435456",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn().Err(err).Str("pragma", pragma).Msg("shareindex: failed to set pragma")
		}
	}

	return &Repository{db: db, path: path}, nil
}

// Path returns the DSN this repository was opened with.
func (r *Repository) Path() string { return r.path }

// Close closes the underlying connection, stopping keepalive first if it
// is running.
func (r *Repository) Close() error {
	r.EnableKeepalive(false, nil)
	return r.db.Close()
}

// Create builds the schema. When discardExisting is false it is idempotent
// (CREATE IF NOT EXISTS throughout); when true, every table is dropped
// first so the schema is rebuilt from nothing.
func (r *Repository) Create(discardExisting bool) error {
	if discardExisting {
		for _, stmt := range []string{
			"DROP TRIGGER IF EXISTS files_ai",
			"DROP TRIGGER IF EXISTS files_ad",
			"DROP TRIGGER IF EXISTS files_au",
			"DROP TABLE IF EXISTS filenames",
			"DROP TABLE IF EXISTS files",
			"DROP TABLE IF EXISTS directories",
			"DROP TABLE IF EXISTS scans",
			"DROP TABLE IF EXISTS version",
		} {
			if _, err := r.db.Exec(stmt); err != nil {
				return fmt.Errorf("create(discard): %w", err)
			}
		}
	}

	if _, err := r.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("create: %w", err)
	}

	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM version").Scan(&count); err != nil {
		return fmt.Errorf("create: checking version row: %w", err)
	}
	if count == 0 {
		if _, err := r.db.Exec("INSERT INTO version(a) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("create: seeding version row: %w", err)
		}
	}
	return nil
}

// TryValidate compares the live schema against the expected object list and
// version marker, per spec.md §4.1. It returns true with no problems when
// the schema matches.
func (r *Repository) TryValidate() (bool, []string) {
	var problems []string

	present := make(map[string]bool)
	rows, err := r.db.Query("SELECT name FROM sqlite_master WHERE type IN ('table','view')")
	if err != nil {
		return false, []string{fmt.Sprintf("querying sqlite_master: %v", err)}
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			present[name] = true
		}
	}
	rows.Close()

	for _, name := range expectedObjects {
		if !present[name] {
			problems = append(problems, fmt.Sprintf("missing table %q", name))
		}
	}
	if len(problems) > 0 {
		return false, problems
	}

	var version int
	if err := r.db.QueryRow("SELECT a FROM version LIMIT 1").Scan(&version); err != nil {
		problems = append(problems, fmt.Sprintf("reading version row: %v", err))
		return false, problems
	}
	if version != schemaVersion {
		problems = append(problems, fmt.Sprintf("schema version %d, want %d", version, schemaVersion))
		return false, problems
	}

	return true, nil
}

// BackupTo copies the live database to dstPath using SQLite's VACUUM INTO,
// which both compacts and writes an independent, immediately-openable
// file. Any existing file at dstPath is removed first, since VACUUM INTO
// does not overwrite an existing file.
func (r *Repository) BackupTo(dstPath string) error {
	if err := os.Remove(dstPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backup: clearing destination: %w", err)
	}
	if _, err := r.db.Exec("VACUUM INTO ?", dstPath); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return nil
}

// DumpTo is BackupTo under a different name for ad hoc diagnostic export —
// same underlying VACUUM INTO primitive, called outside the
// backup/restore initialization path.
func (r *Repository) DumpTo(path string) error {
	return r.BackupTo(path)
}

// RestoreFrom replaces every row in the live database with the contents of
// the database at srcPath, via ATTACH/copy/DETACH, then rebuilds the
// filenames FTS index (external-content FTS tables do not track changes
// made by a bulk copy like this).
func (r *Repository) RestoreFrom(srcPath string) error {
	if _, err := r.db.Exec("ATTACH DATABASE ? AS src", srcPath); err != nil {
		return fmt.Errorf("restore: attach: %w", err)
	}
	defer r.db.Exec("DETACH DATABASE src")

	for _, table := range []string{"version", "scans", "directories", "files"} {
		if _, err := r.db.Exec(fmt.Sprintf("DELETE FROM main.%s", table)); err != nil {
			return fmt.Errorf("restore: clearing %s: %w", table, err)
		}
		if _, err := r.db.Exec(fmt.Sprintf("INSERT INTO main.%s SELECT * FROM src.%s", table, table)); err != nil {
			return fmt.Errorf("restore: copying %s: %w", table, err)
		}
	}

	if err := r.RebuildFilenameIndex(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

// InsertScan records the start of a scan.
func (r *Repository) InsertScan(startedAt int64, optionsJSON string) error {
	_, err := r.db.Exec(
		"INSERT INTO scans(startedAt, optionsJson, endedAt, suspect) VALUES (?, ?, NULL, 0)",
		startedAt, optionsJSON,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// UpdateScan records the end of a scan.
func (r *Repository) UpdateScan(startedAt, endedAt int64) error {
	_, err := r.db.Exec("UPDATE scans SET endedAt = ? WHERE startedAt = ?", endedAt, startedAt)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	return nil
}

// FindLatestScan returns the most recently started scan, if any.
func (r *Repository) FindLatestScan() (ScanRow, bool) {
	var row ScanRow
	var endedAt sql.NullInt64
	var suspect int
	err := r.db.QueryRow(
		"SELECT startedAt, optionsJson, endedAt, suspect FROM scans ORDER BY startedAt DESC LIMIT 1",
	).Scan(&row.StartedAt, &row.OptionsJSON, &endedAt, &suspect)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Debug().Err(err).Msg("shareindex: find latest scan failed")
		}
		return ScanRow{}, false
	}
	row.HasEnded = endedAt.Valid
	row.EndedAt = endedAt.Int64
	row.Suspect = suspect != 0
	return row, true
}

// FlagLatestScanAsSuspect marks the most recent scan suspect, per spec.md
// §4.4 (a resolve found a cached file missing from disk).
func (r *Repository) FlagLatestScanAsSuspect() error {
	_, err := r.db.Exec(`
		UPDATE scans SET suspect = 1
		WHERE startedAt = (SELECT MAX(startedAt) FROM scans)
	`)
	if err != nil {
		return fmt.Errorf("flag latest scan suspect: %w", err)
	}
	return nil
}

// ListScans returns scans started at or after since (epoch milliseconds),
// most recent first. Read path: errors are logged and swallowed.
func (r *Repository) ListScans(since int64) []ScanRow {
	rows, err := r.db.Query(
		"SELECT startedAt, optionsJson, endedAt, suspect FROM scans WHERE startedAt >= ? ORDER BY startedAt DESC",
		since,
	)
	if err != nil {
		log.Debug().Err(err).Msg("shareindex: list scans failed")
		return nil
	}
	defer rows.Close()

	var out []ScanRow
	for rows.Next() {
		var row ScanRow
		var endedAt sql.NullInt64
		var suspect int
		if err := rows.Scan(&row.StartedAt, &row.OptionsJSON, &endedAt, &suspect); err != nil {
			continue
		}
		row.HasEnded = endedAt.Valid
		row.EndedAt = endedAt.Int64
		row.Suspect = suspect != 0
		out = append(out, row)
	}
	return out
}

// InsertDirectory upserts a directory row.
func (r *Repository) InsertDirectory(name string, timestamp int64) error {
	_, err := r.db.Exec(`
		INSERT INTO directories(name, timestamp) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET timestamp = excluded.timestamp
	`, name, timestamp)
	if err != nil {
		return fmt.Errorf("insert directory: %w", err)
	}
	return nil
}

// InsertFile upserts a file row built from rec.
func (r *Repository) InsertFile(rec fileinfo.File, touchedAt string, timestamp int64) error {
	attrJSON, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("insert file: marshal attributes: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO files(maskedFilename, originalFilename, size, touchedAt, code, extension, attributeJson, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(maskedFilename) DO UPDATE SET
			originalFilename = excluded.originalFilename,
			size = excluded.size,
			touchedAt = excluded.touchedAt,
			code = excluded.code,
			extension = excluded.extension,
			attributeJson = excluded.attributeJson,
			timestamp = excluded.timestamp
	`, rec.MaskedFilename, rec.OriginalFilename, rec.Size, touchedAt, rec.Code, rec.Extension, string(attrJSON), timestamp)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// PruneDirectories deletes every directory row with timestamp strictly less
// than olderThanTimestamp, returning the count removed.
func (r *Repository) PruneDirectories(olderThanTimestamp int64) (int64, error) {
	res, err := r.db.Exec("DELETE FROM directories WHERE timestamp < ?", olderThanTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune directories: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PruneFiles deletes every file row with timestamp strictly less than
// olderThanTimestamp, returning the count removed.
func (r *Repository) PruneFiles(olderThanTimestamp int64) (int64, error) {
	res, err := r.db.Exec("DELETE FROM files WHERE timestamp < ?", olderThanTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune files: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RebuildFilenameIndex empties and repopulates the filenames FTS index from
// the files table, required after any bulk mutation an external-content
// FTS table can't observe through its triggers (restore, prune).
func (r *Repository) RebuildFilenameIndex() error {
	_, err := r.db.Exec("INSERT INTO filenames(filenames) VALUES ('rebuild')")
	if err != nil {
		return fmt.Errorf("rebuild filename index: %w", err)
	}
	return nil
}

// ListDirectories returns directories whose name starts with prefix (all,
// if prefix is ""), ordered ascending by name. Read path: errors are
// logged and swallowed.
func (r *Repository) ListDirectories(prefix string) []DirectoryRow {
	rows, err := r.db.Query(
		"SELECT name, timestamp FROM directories WHERE name LIKE ? ESCAPE '\\' ORDER BY name ASC",
		likePrefix(prefix),
	)
	if err != nil {
		log.Debug().Err(err).Msg("shareindex: list directories failed")
		return nil
	}
	defer rows.Close()

	var out []DirectoryRow
	for rows.Next() {
		var d DirectoryRow
		if err := rows.Scan(&d.Name, &d.Timestamp); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// ListFiles returns files whose masked filename starts with prefix,
// ordered ascending by name. When includeFullPath is false, each row's
// MaskedFilename is cut to its trailing component (the text after the last
// `\`); the other fields are unchanged.
func (r *Repository) ListFiles(prefix string, includeFullPath bool) []FileRow {
	rows, err := r.db.Query(
		"SELECT maskedFilename, originalFilename, size, touchedAt, code, extension, attributeJson, timestamp FROM files WHERE maskedFilename LIKE ? ESCAPE '\\' ORDER BY maskedFilename ASC",
		likePrefix(prefix),
	)
	if err != nil {
		log.Debug().Err(err).Msg("shareindex: list files failed")
		return nil
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		f, err := scanFileRow(rows)
		if err != nil {
			continue
		}
		if !includeFullPath {
			if i := strings.LastIndex(f.MaskedFilename, `\`); i >= 0 {
				f.MaskedFilename = f.MaskedFilename[i+1:]
			}
		}
		out = append(out, f)
	}
	return out
}

// CountDirectories counts directories whose name starts with prefix.
func (r *Repository) CountDirectories(prefix string) int {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM directories WHERE name LIKE ? ESCAPE '\\'", likePrefix(prefix),
	).Scan(&n)
	if err != nil {
		log.Debug().Err(err).Msg("shareindex: count directories failed")
		return 0
	}
	return n
}

// CountFiles counts files whose masked filename starts with prefix.
func (r *Repository) CountFiles(prefix string) int {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM files WHERE maskedFilename LIKE ? ESCAPE '\\'", likePrefix(prefix),
	).Scan(&n)
	if err != nil {
		log.Debug().Err(err).Msg("shareindex: count files failed")
		return 0
	}
	return n
}

// FindFileInfo resolves a masked filename to its original filename and
// size. ok is false if no such file is indexed.
func (r *Repository) FindFileInfo(maskedFilename string) (originalFilename string, size int64, ok bool) {
	err := r.db.QueryRow(
		"SELECT originalFilename, size FROM files WHERE maskedFilename = ?", maskedFilename,
	).Scan(&originalFilename, &size)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Debug().Err(err).Str("masked", maskedFilename).Msg("shareindex: find file info failed")
		}
		return "", 0, false
	}
	return originalFilename, size, true
}

// Vacuum compacts the database file in place.
func (r *Repository) Vacuum() error {
	if _, err := r.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// EnableKeepalive starts (enabled=true) or stops (enabled=false) a
// once-per-second probe of the filenames index, required in memory mode so
// the process notices immediately if the in-memory database has been lost
// (e.g. the pooled connection was recycled out from under it) rather than
// silently serving an empty catalog. onFatal is invoked — expected to log
// and terminate the process, per spec.md §7 StorageFatal — if the probe
// query fails, and the probe then stops; the row count it returns is not
// checked. onFatal may be nil in tests.
func (r *Repository) EnableKeepalive(enabled bool, onFatal func(error)) {
	r.keepaliveMu.Lock()
	defer r.keepaliveMu.Unlock()

	if r.keepaliveCancel != nil {
		r.keepaliveCancel()
		r.keepaliveCancel = nil
	}
	if !enabled {
		return
	}

	stop := make(chan struct{})
	r.keepaliveCancel = sync.OnceFunc(func() { close(stop) })

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				var n int
				err := r.db.QueryRow("SELECT COUNT(*) FROM filenames").Scan(&n)
				if err != nil {
					if onFatal != nil {
						onFatal(fmt.Errorf("keepalive probe failed: %w", err))
					}
					return
				}
			}
		}
	}()
}

func scanFileRow(rows *sql.Rows) (FileRow, error) {
	var f FileRow
	err := rows.Scan(&f.MaskedFilename, &f.OriginalFilename, &f.Size, &f.TouchedAt, &f.Code, &f.Extension, &f.AttributeJSON, &f.Timestamp)
	return f, err
}

// likePrefix turns a plain prefix into a LIKE pattern, escaping the LIKE
// metacharacters % and _ so a filename containing them is matched
// literally rather than as a wildcard.
func likePrefix(prefix string) string {
	if prefix == "" {
		return "%"
	}
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix)
	return escaped + "%"
}
