// Package catalog persists scan results: the class entries of every listed
// archive, stand-alone class files, and archives that could not be listed.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/storage"
)

// StandaloneContainer is the container reported for class files found
// outside any archive.
const StandaloneContainer = "stand-alone"

// ErrNotFound is returned when a scan id is unknown.
var ErrNotFound = errors.New("not found")

// Scan is one Scan(root) request.
type Scan struct {
	ID         string     `json:"id"`
	Root       string     `json:"root"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Archive is a successfully listed archive.
type Archive struct {
	ScanID     string    `json:"scan_id"`
	Path       string    `json:"path"`
	Digest     string    `json:"digest,omitempty"`
	ClassCount int       `json:"class_count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Failure is an archive that could not be listed.
type Failure struct {
	ScanID     string    `json:"scan_id"`
	Source     string    `json:"source"`
	Detail     string    `json:"detail"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Match is one class found by FindClasses. Container is the archive path,
// or StandaloneContainer.
type Match struct {
	Container string `json:"container"`
	File      string `json:"file"`
	Name      string `json:"name"`
}

// Store reads and writes the catalog tables.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open opens the catalog database at path, creating it if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) timestamp() string { return s.now().UTC().Format(time.RFC3339Nano) }

// BeginScan records a new scan of root and returns it.
func (s *Store) BeginScan(ctx context.Context, root string) (Scan, error) {
	if root == "" {
		return Scan{}, fmt.Errorf("scan root is empty")
	}
	now := s.now().UTC()
	scan := Scan{ID: uuid.NewString(), Root: root, StartedAt: now}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO scans(id, root, started_at) VALUES (?, ?, ?);",
		scan.ID, scan.Root, now.Format(time.RFC3339Nano),
	); err != nil {
		return Scan{}, fmt.Errorf("insert scan: %w", err)
	}
	return scan, nil
}

// FinishScan stamps the scan's finish time.
func (s *Store) FinishScan(ctx context.Context, scanID string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE scans SET finished_at = ? WHERE id = ?;", s.timestamp(), scanID)
	if err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
	}
	return nil
}

// Scans returns every scan, newest first.
func (s *Store) Scans(ctx context.Context) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, root, started_at, finished_at FROM scans ORDER BY started_at DESC;")
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		var (
			scan     Scan
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&scan.ID, &scan.Root, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		scan.StartedAt = parseTime(started)
		if finished.Valid {
			t := parseTime(finished.String)
			scan.FinishedAt = &t
		}
		out = append(out, scan)
	}
	return out, rows.Err()
}

// RecordListing stores an archive and its classes. Recording the same path
// twice within a scan replaces the earlier listing.
func (s *Store) RecordListing(ctx context.Context, scanID string, listing archive.Listing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM archives WHERE scan_id = ? AND path = ?;", scanID, listing.Path,
	); err != nil {
		return fmt.Errorf("replace archive: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO archives(scan_id, path, digest, class_count, recorded_at) VALUES (?, ?, ?, ?, ?);",
		scanID, listing.Path, listing.Digest, len(listing.Entries), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("insert archive: %w", err)
	}
	archiveID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("archive id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO classes(archive_id, file, name) VALUES (?, ?, ?);")
	if err != nil {
		return fmt.Errorf("prepare classes: %w", err)
	}
	defer stmt.Close()
	for _, c := range listing.Classes() {
		if _, err := stmt.ExecContext(ctx, archiveID, c.File, c.Name); err != nil {
			return fmt.Errorf("insert class %s: %w", c.File, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit listing: %w", err)
	}
	return nil
}

// RecordFailure stores an archive that could not be listed.
func (s *Store) RecordFailure(ctx context.Context, scanID, source string, cause error) error {
	detail := "unknown error"
	if cause != nil {
		detail = cause.Error()
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO failures(scan_id, source, detail, recorded_at) VALUES (?, ?, ?, ?);",
		scanID, source, detail, s.timestamp(),
	); err != nil {
		return fmt.Errorf("insert failure: %w", err)
	}
	return nil
}

// RecordStandalone stores a class file found outside any archive.
func (s *Store) RecordStandalone(ctx context.Context, scanID, path string) error {
	c := archive.NewClass(path)
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO standalone(scan_id, path, name, recorded_at) VALUES (?, ?, ?, ?);",
		scanID, c.File, c.Name, s.timestamp(),
	); err != nil {
		return fmt.Errorf("insert standalone: %w", err)
	}
	return nil
}

// Archives returns the archives recorded for scanID, or for every scan
// when scanID is empty, ordered by path.
func (s *Store) Archives(ctx context.Context, scanID string) ([]Archive, error) {
	query := "SELECT scan_id, path, COALESCE(digest, ''), class_count, recorded_at FROM archives"
	var args []any
	if scanID != "" {
		query += " WHERE scan_id = ?"
		args = append(args, scanID)
	}
	query += " ORDER BY path, recorded_at;"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query archives: %w", err)
	}
	defer rows.Close()

	var out []Archive
	for rows.Next() {
		var (
			a        Archive
			recorded string
		)
		if err := rows.Scan(&a.ScanID, &a.Path, &a.Digest, &a.ClassCount, &recorded); err != nil {
			return nil, fmt.Errorf("archive row: %w", err)
		}
		a.RecordedAt = parseTime(recorded)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Failures returns the failures recorded for scanID, or for every scan
// when scanID is empty.
func (s *Store) Failures(ctx context.Context, scanID string) ([]Failure, error) {
	query := "SELECT scan_id, source, detail, recorded_at FROM failures"
	var args []any
	if scanID != "" {
		query += " WHERE scan_id = ?"
		args = append(args, scanID)
	}
	query += " ORDER BY recorded_at, source;"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var (
			f        Failure
			recorded string
		)
		if err := rows.Scan(&f.ScanID, &f.Source, &f.Detail, &recorded); err != nil {
			return nil, fmt.Errorf("failure row: %w", err)
		}
		f.RecordedAt = parseTime(recorded)
		out = append(out, f)
	}
	return out, rows.Err()
}

// FindClasses returns classes whose name contains query, ignoring case,
// across archives and stand-alone files. An empty query matches every
// class. limit <= 0 means no limit.
func (s *Store) FindClasses(ctx context.Context, query string, limit int) ([]Match, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	stmt := `SELECT a.path, c.file, c.name FROM classes c JOIN archives a ON a.id = c.archive_id
WHERE lower(c.name) LIKE ? ESCAPE '\'
UNION ALL
SELECT ?, s.path, s.name FROM standalone s
WHERE lower(s.name) LIKE ? ESCAPE '\'
ORDER BY 3, 1, 2`
	args := []any{pattern, StandaloneContainer, pattern}
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt+";", args...)
	if err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Container, &m.File, &m.Name); err != nil {
			return nil, fmt.Errorf("class row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
