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

	"github.com/nao1215/gdorker/internal/model"
)

// FileName is the name of the history database inside the data directory.
const FileName = "gdorker.db"

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunDB stores the history of dork runs: one row per run and one row per
// dispatched template.
//
// Design decision: Every template is written as soon as its query finishes,
// not at the end of the run. An interrupted run therefore leaves a usable
// record that a later run can resume from.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
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

// Run is one row of the runs table.
type Run struct {
	ID            int64
	StartedAt     time.Time
	CompletedAt   time.Time // zero while the run is in progress or after an abort
	Domain        string
	TemplateCount int
	TotalURLs     int
}

// IsComplete reports whether the run terminated normally.
func (r Run) IsComplete() bool {
	return !r.CompletedAt.IsZero()
}

// DorkResult is the outcome of one template within a run.
type DorkResult struct {
	RunID      int64
	Position   int
	Template   string
	Query      string
	Proxy      string // redacted descriptor, "" for a direct connection
	URLs       []string
	Error      string // empty when the query succeeded
	RecordedAt time.Time
}

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL DEFAULT '',
		template_count INTEGER NOT NULL DEFAULT 0,
		total_urls INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS dork_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		template TEXT NOT NULL,
		query TEXT NOT NULL,
		proxy TEXT NOT NULL DEFAULT '',
		url_count INTEGER NOT NULL DEFAULT 0,
		urls TEXT NOT NULL DEFAULT '[]',
		error TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL,
		UNIQUE(run_id, template)
	);

	CREATE INDEX IF NOT EXISTS idx_dork_results_run ON dork_results(run_id, position);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// CreateRun inserts a new run and returns its id.
func (rdb *RunDB) CreateRun(ctx context.Context, startedAt time.Time, domain string, templateCount int) (int64, error) {
	result, err := rdb.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, domain, template_count) VALUES (?, ?, ?)`,
		formatTimestamp(startedAt), domain, templateCount,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}
	return result.LastInsertId()
}

// RecordResult stores the outcome of one template. Recording the same
// template twice within a run replaces the earlier row, so a retried
// query does not leave a stale failure behind.
func (rdb *RunDB) RecordResult(ctx context.Context, res *DorkResult) error {
	urls := res.URLs
	if urls == nil {
		urls = []string{}
	}
	urlsJSON, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("failed to serialize urls: %w", err)
	}

	recordedAt := res.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	query := `
	INSERT INTO dork_results (run_id, position, template, query, proxy, url_count, urls, error, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, template) DO UPDATE SET
		position = excluded.position,
		query = excluded.query,
		proxy = excluded.proxy,
		url_count = excluded.url_count,
		urls = excluded.urls,
		error = excluded.error,
		recorded_at = excluded.recorded_at
	`

	if _, err := rdb.db.ExecContext(ctx, query,
		res.RunID,
		res.Position,
		res.Template,
		res.Query,
		res.Proxy,
		len(urls),
		string(urlsJSON),
		res.Error,
		formatTimestamp(recordedAt),
	); err != nil {
		return fmt.Errorf("failed to record result for run %d: %w", res.RunID, err)
	}
	return nil
}

// CompleteRun marks a run as finished and stores its URL total.
func (rdb *RunDB) CompleteRun(ctx context.Context, runID int64, completedAt time.Time, totalURLs int) error {
	result, err := rdb.db.ExecContext(ctx,
		`UPDATE runs SET completed_at = ?, total_urls = ? WHERE id = ?`,
		formatTimestamp(completedAt), totalURLs, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run %d: %w", runID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return nil
}

// ListRuns returns runs, newest first. limit <= 0 returns all runs.
func (rdb *RunDB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
	SELECT r.id, r.started_at, r.completed_at, r.domain, r.template_count,
		CASE WHEN r.completed_at = '' THEN COALESCE(SUM(d.url_count), 0) ELSE r.total_urls END
	FROM runs r
	LEFT JOIN dork_results d ON d.run_id = r.id
	GROUP BY r.id
	ORDER BY r.id DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a single run. ErrRunNotFound is returned for unknown ids.
func (rdb *RunDB) GetRun(ctx context.Context, runID int64) (Run, error) {
	row := rdb.db.QueryRowContext(ctx, `
	SELECT r.id, r.started_at, r.completed_at, r.domain, r.template_count,
		CASE WHEN r.completed_at = '' THEN COALESCE(SUM(d.url_count), 0) ELSE r.total_urls END
	FROM runs r
	LEFT JOIN dork_results d ON d.run_id = r.id
	WHERE r.id = ?
	GROUP BY r.id
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return run, err
}

// Results returns every recorded template of a run in dispatch order,
// failed queries included.
func (rdb *RunDB) Results(ctx context.Context, runID int64) ([]DorkResult, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT run_id, position, template, query, proxy, urls, error, recorded_at
	FROM dork_results
	WHERE run_id = ?
	ORDER BY position, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results of run %d: %w", runID, err)
	}
	defer rows.Close()

	var results []DorkResult
	for rows.Next() {
		var (
			res        DorkResult
			urlsJSON   string
			recordedAt string
		)
		if err := rows.Scan(&res.RunID, &res.Position, &res.Template, &res.Query,
			&res.Proxy, &urlsJSON, &res.Error, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(urlsJSON), &res.URLs); err != nil {
			return nil, fmt.Errorf("failed to parse urls of %q: %w", res.Template, err)
		}
		res.RecordedAt = parseTimestamp(recordedAt)
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetRunReport rebuilds the RunReport of a run from its recorded results.
// Failed queries are left out, so resuming from the report dispatches them again.
func (rdb *RunDB) GetRunReport(ctx context.Context, runID int64) (*model.RunReport, error) {
	run, err := rdb.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	results, err := rdb.Results(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := model.NewRunReport(run.StartedAt)
	for _, res := range results {
		if res.Error != "" {
			continue
		}
		entry := model.NewResultEntry(res.URLs)
		report.Set(res.Template, entry)
		report.TotalURLs += entry.URLCount
	}
	if run.IsComplete() {
		report.Complete(run.CompletedAt)
	}
	return report, nil
}

// LatestRunIDs returns the ids of the n most recent completed runs, newest first.
func (rdb *RunDB) LatestRunIDs(ctx context.Context, n int) ([]int64, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT id FROM runs
	WHERE completed_at != ''
	ORDER BY id DESC
	LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest runs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (Run, error) {
	var (
		run       Run
		started   string
		completed string
	)
	if err := s.Scan(&run.ID, &started, &completed, &run.Domain, &run.TemplateCount, &run.TotalURLs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = parseTimestamp(started)
	run.CompletedAt = parseTimestamp(completed)
	return run, nil
}

// timestampFormats contains the layouts accepted when reading timestamps.
// Rows written by this package use the first one.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",  // SQLite CURRENT_TIMESTAMP
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// parseTimestamp parses s with each known layout. An empty or unparsable
// value yields the zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
