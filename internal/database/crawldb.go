package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitecrawl/internal/model"
)

// FileName is the archive file created inside the database directory.
const FileName = "sitecrawl.db"

// Archive errors.
var (
	// ErrDatabaseNotFound is returned by Open when CreateIfNotExists is false
	// and no archive exists yet.
	ErrDatabaseNotFound = errors.New("crawl archive not found")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("crawl run not found")

	// ErrNilReport is returned when SaveReport is given a nil report.
	ErrNilReport = errors.New("report is nil")
)

// CrawlDB stores finished crawl runs in a SQLite archive.
//
// Design decision: We store the full report as JSON next to normalized
// pages and links tables because:
//  1. GetRun can return exactly what the crawler produced
//  2. Referrer lookups and per-URL history need indexed columns
//  3. The JSON keeps working when report fields are added later
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the archive in dbDir.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	dsn := dbPath + "?mode=rwc"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the archive file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

func (cdb *CrawlDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_url TEXT NOT NULL,
		domain TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		claimed INTEGER NOT NULL DEFAULT 0,
		fetched INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_domain ON crawl_runs(domain);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		title TEXT,
		hash TEXT,
		size INTEGER,
		attempts INTEGER,
		fetched_at TEXT,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);

	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		page_id INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
		target TEXT NOT NULL,
		crawlable INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);
	CREATE INDEX IF NOT EXISTS idx_links_page ON links(page_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveReport stores a finished crawl and sets report.ID to the new run ID.
// All rows are written in one transaction, so a failed save leaves no
// partial run behind.
func (cdb *CrawlDB) SaveReport(ctx context.Context, report *model.CrawlReport) (int64, error) {
	if report == nil {
		return 0, ErrNilReport
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	result, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (start_url, domain, started_at, finished_at, cancelled, claimed, fetched, skipped, failed, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.StartURL,
		report.Domain,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Cancelled,
		report.Stats.Claimed,
		report.Stats.Fetched,
		report.Stats.Skipped,
		report.Stats.Failed,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert crawl run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}

	pageStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (run_id, url, title, hash, size, attempts, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	linkStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO links (page_id, target, crawlable) VALUES (?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare link insert: %w", err)
	}
	defer linkStmt.Close()

	for _, page := range report.Pages {
		res, err := pageStmt.ExecContext(ctx,
			runID,
			page.URL,
			page.Title,
			page.Hash,
			page.Size,
			page.Attempts,
			formatTimestamp(page.FetchedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert page %s: %w", page.URL, err)
		}

		pageID, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get page ID: %w", err)
		}

		for _, target := range page.Crawlable {
			if _, err := linkStmt.ExecContext(ctx, pageID, target, true); err != nil {
				return 0, fmt.Errorf("failed to insert link: %w", err)
			}
		}
		for _, target := range page.NonCrawlable {
			if _, err := linkStmt.ExecContext(ctx, pageID, target, false); err != nil {
				return 0, fmt.Errorf("failed to insert link: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crawl run: %w", err)
	}

	report.ID = runID
	return runID, nil
}

// RunSummary describes a stored run without loading its pages.
type RunSummary struct {
	ID         int64
	StartURL   string
	Domain     string
	StartedAt  time.Time
	FinishedAt time.Time
	Cancelled  bool
	Claimed    int
	Fetched    int
	Skipped    int
	Failed     int
}

// Duration returns how long the run took.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// ListRuns returns stored runs, newest first. An empty domain lists every
// domain; limit <= 0 means no limit.
func (cdb *CrawlDB) ListRuns(ctx context.Context, domain string, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, start_url, domain, started_at, finished_at, cancelled, claimed, fetched, skipped, failed
	FROM crawl_runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if domain != "" {
		query += " AND domain = ?"
		args = append(args, domain)
	}

	query += " ORDER BY started_at DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		var startedAt, finishedAt string

		if err := rows.Scan(
			&run.ID,
			&run.StartURL,
			&run.Domain,
			&startedAt,
			&finishedAt,
			&run.Cancelled,
			&run.Claimed,
			&run.Fetched,
			&run.Skipped,
			&run.Failed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.StartedAt = parseTimestamp(startedAt)
		run.FinishedAt = parseTimestamp(finishedAt)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun returns the full report stored under id.
func (cdb *CrawlDB) GetRun(ctx context.Context, id int64) (*model.CrawlReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT report_json FROM crawl_runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	report.ID = id

	return &report, nil
}

// LatestRun returns the newest run for domain.
func (cdb *CrawlDB) LatestRun(ctx context.Context, domain string) (*model.CrawlReport, error) {
	runs, err := cdb.ListRuns(ctx, domain, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no runs for %s", ErrRunNotFound, domain)
	}
	return cdb.GetRun(ctx, runs[0].ID)
}

// DeleteRun removes a run with its pages and links.
func (cdb *CrawlDB) DeleteRun(ctx context.Context, id int64) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	// modernc sqlite leaves foreign_keys off, so cascade by hand
	if _, err := tx.ExecContext(ctx, `
	DELETE FROM links WHERE page_id IN (SELECT id FROM pages WHERE run_id = ?)
	`, id); err != nil {
		return fmt.Errorf("failed to delete links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pages: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM crawl_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete crawl run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}

	return tx.Commit()
}

// ListDomains returns every domain with at least one stored run.
func (cdb *CrawlDB) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT domain FROM crawl_runs ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, domain)
	}

	return domains, rows.Err()
}

// Referrers returns the pages of run runID that link to target, in URL
// order. It answers "where did this broken link come from?".
func (cdb *CrawlDB) Referrers(ctx context.Context, runID int64, target string) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT DISTINCT p.url
	FROM links l
	JOIN pages p ON p.id = l.page_id
	WHERE p.run_id = ? AND l.target = ?
	ORDER BY p.url
	`, runID, target)
	if err != nil {
		return nil, fmt.Errorf("failed to query referrers: %w", err)
	}
	defer rows.Close()

	var referrers []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan referrer: %w", err)
		}
		referrers = append(referrers, u)
	}

	return referrers, rows.Err()
}

// PageVersion is one stored fetch of a URL.
type PageVersion struct {
	RunID     int64
	Title     string
	Hash      string
	Size      int
	FetchedAt time.Time
}

// PageHistory returns every stored fetch of pageURL, newest first.
// Comparing Hash across versions shows when the content changed.
func (cdb *CrawlDB) PageHistory(ctx context.Context, pageURL string) ([]PageVersion, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT run_id, title, hash, size, fetched_at
	FROM pages
	WHERE url = ?
	ORDER BY fetched_at DESC, run_id DESC
	`, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query page history: %w", err)
	}
	defer rows.Close()

	var versions []PageVersion
	for rows.Next() {
		var v PageVersion
		var title, hash, fetchedAt sql.NullString
		var size sql.NullInt64

		if err := rows.Scan(&v.RunID, &title, &hash, &size, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page version: %w", err)
		}
		v.Title = title.String
		v.Hash = hash.String
		v.Size = int(size.Int64)
		v.FetchedAt = parseTimestamp(fetchedAt.String)
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

// storedTimeFormat is RFC3339 with a fixed-width fraction, so stored
// timestamps sort lexically.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimeFormat)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite CURRENT_TIMESTAMP
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
