// Package ledger persists which books have been downloaded and where, so
// repeated runs never fetch or write the same book twice.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/libris/internal/fileutil"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Lookup when no record exists for a book.
var ErrNotFound = errors.New("no ledger record")

// Record is one completed download.
type Record struct {
	BookID     string    `yaml:"book_id"`
	Link       string    `yaml:"link"`
	Filepath   string    `yaml:"filepath"`
	RecordedAt time.Time `yaml:"recorded_at,omitempty"`
}

// Ledger is a handle on the downloaded table. A single Ledger is shared by
// all workers; every method is safe for concurrent use.
type Ledger struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

const createTable = `CREATE TABLE downloaded (
	book_id TEXT,
	link TEXT,
	filepath TEXT,
	recorded_at TEXT
)`

// Open opens (creating if needed) the ledger database at path. Ledgers
// written by older versions are upgraded in place: the recorded_at column is
// added and duplicate rows per book are collapsed, keeping the newest.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	l := &Ledger{db: db, path: path, logger: logger.With("component", "ledger"), now: time.Now}
	if err := l.migrate(ctx); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(err, closeErr)
	}
	return l, nil
}

func (l *Ledger) migrate(ctx context.Context) error {
	var name string
	err := l.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'downloaded'`).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := l.db.ExecContext(ctx, createTable); err != nil {
			return fmt.Errorf("failed to create downloaded table: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to inspect ledger schema: %w", err)
	default:
		l.logger.Info("Table 'downloaded' already exists", "database", l.path)
		if err := l.addRecordedAt(ctx); err != nil {
			return err
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() {
		// Rollback if we don't commit - ignore errors as they're expected if transaction was committed
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM downloaded
		WHERE rowid NOT IN (SELECT MAX(rowid) FROM downloaded GROUP BY book_id)`)
	if err != nil {
		return fmt.Errorf("failed to collapse duplicate ledger rows: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		l.logger.Info("Removed duplicate ledger rows", "count", n)
	}

	if _, err := tx.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_downloaded_book_id ON downloaded(book_id)`); err != nil {
		return fmt.Errorf("failed to create ledger index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

func (l *Ledger) addRecordedAt(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('downloaded')`)
	if err != nil {
		return fmt.Errorf("failed to read ledger columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return fmt.Errorf("failed to read ledger columns: %w", err)
		}
		if column == "recorded_at" {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read ledger columns: %w", err)
	}
	_ = rows.Close()

	if _, err := l.db.ExecContext(ctx, `ALTER TABLE downloaded ADD COLUMN recorded_at TEXT`); err != nil {
		return fmt.Errorf("failed to add recorded_at column: %w", err)
	}
	l.logger.Info("Upgraded ledger schema", "column", "recorded_at")
	return nil
}

// Lookup returns the record for bookID, or ErrNotFound.
func (l *Ledger) Lookup(ctx context.Context, bookID string) (*Record, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT book_id, link, filepath, recorded_at FROM downloaded WHERE book_id = ?`, bookID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %q: %w", bookID, err)
	}
	return rec, nil
}

// IsDownloaded reports whether bookID has a record whose file is still on disk.
func (l *Ledger) IsDownloaded(ctx context.Context, bookID string) (bool, error) {
	rec, err := l.Lookup(ctx, bookID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fileutil.FileExists(rec.Filepath), nil
}

// Record stores rec, replacing any earlier record for the same book.
func (l *Ledger) Record(ctx context.Context, rec Record) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = l.now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO downloaded (book_id, link, filepath, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			link = excluded.link,
			filepath = excluded.filepath,
			recorded_at = excluded.recorded_at
	`, rec.BookID, rec.Link, rec.Filepath, formatTime(rec.RecordedAt))
	if err != nil {
		return fmt.Errorf("failed to record %q: %w", rec.BookID, err)
	}
	return nil
}

// EnsureRecorded stores rec only if the book has no record yet. It reports
// whether a row was inserted.
func (l *Ledger) EnsureRecorded(ctx context.Context, rec Record) (bool, error) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = l.now()
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO downloaded (book_id, link, filepath, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(book_id) DO NOTHING
	`, rec.BookID, rec.Link, rec.Filepath, formatTime(rec.RecordedAt))
	if err != nil {
		return false, fmt.Errorf("failed to record %q: %w", rec.BookID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// List returns every record in insertion order.
func (l *Ledger) List(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT book_id, link, filepath, recorded_at FROM downloaded ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	return records, nil
}

// Stale returns the records whose files no longer exist.
func (l *Ledger) Stale(ctx context.Context) ([]Record, error) {
	records, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	var stale []Record
	for _, rec := range records {
		if !fileutil.FileExists(rec.Filepath) {
			stale = append(stale, rec)
		}
	}
	return stale, nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		bookID, link, path sql.NullString
		recordedAt         sql.NullString
	)
	if err := s.Scan(&bookID, &link, &path, &recordedAt); err != nil {
		return nil, err
	}

	rec := &Record{BookID: bookID.String, Link: link.String, Filepath: path.String}
	if recordedAt.Valid && recordedAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, recordedAt.String); err == nil {
			rec.RecordedAt = t
		}
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
