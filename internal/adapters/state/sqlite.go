package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteReportStore implements core.ReportStore with SQLite storage.
type SQLiteReportStore struct {
	dbPath string
	db     *sql.DB // Write connection
	readDB *sql.DB // Read-only connection
	mu     sync.RWMutex

	maxRetries    int
	baseRetryWait time.Duration
}

// SQLiteReportStoreOption configures the store.
type SQLiteReportStoreOption func(*SQLiteReportStore)

// WithSQLiteRetry sets how often busy writes are retried.
func WithSQLiteRetry(maxRetries int, baseWait time.Duration) SQLiteReportStoreOption {
	return func(s *SQLiteReportStore) {
		s.maxRetries = maxRetries
		s.baseRetryWait = baseWait
	}
}

// NewSQLiteReportStore opens (or creates) a report database at dbPath.
func NewSQLiteReportStore(dbPath string, opts ...SQLiteReportStoreOption) (*SQLiteReportStore, error) {
	s := &SQLiteReportStore{
		dbPath:        dbPath,
		maxRetries:    5,
		baseRetryWait: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening write database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	// The read pool is opened after migrating so mode=ro finds the file.
	readDB, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&mode=ro&_pragma=busy_timeout(1000)")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	return s, nil
}

func (s *SQLiteReportStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	for i, migration := range []string{migrationV1} {
		version := i + 1
		if version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}
		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}
	return nil
}

// splitStatements splits a SQL script into statements, dropping comment lines.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}

func (s *SQLiteReportStore) retryWrite(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.baseRetryWait * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", operation, s.maxRetries, lastErr)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// Save inserts or replaces a report.
func (s *SQLiteReportStore) Save(ctx context.Context, rec *core.ReportRecord) error {
	if rec == nil || rec.ID == "" {
		return core.ErrValidation(core.CodeInvalidConfig, "report id required")
	}
	decision, err := json.Marshal(rec.Decision)
	if err != nil {
		return fmt.Errorf("marshaling decision: %w", err)
	}
	warnings, err := json.Marshal(rec.Warnings)
	if err != nil {
		return fmt.Errorf("marshaling warnings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryWrite(ctx, "Save", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO reports (id, prompt, model, passed, confidence, num_generations, recommendation, decision, warnings, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				prompt = excluded.prompt,
				model = excluded.model,
				passed = excluded.passed,
				confidence = excluded.confidence,
				num_generations = excluded.num_generations,
				recommendation = excluded.recommendation,
				decision = excluded.decision,
				warnings = excluded.warnings,
				created_at = excluded.created_at
		`,
			rec.ID,
			rec.Prompt,
			rec.Model,
			rec.Decision.Passed,
			rec.Decision.ConfidenceScore,
			rec.NumGenerations,
			rec.Recommendation,
			string(decision),
			string(warnings),
			rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

const reportColumns = `id, prompt, model, num_generations, recommendation, decision, warnings, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*core.ReportRecord, error) {
	var rec core.ReportRecord
	var model, recommendation, warnings sql.NullString
	var decision, createdAt string

	if err := row.Scan(&rec.ID, &rec.Prompt, &model, &rec.NumGenerations, &recommendation, &decision, &warnings, &createdAt); err != nil {
		return nil, err
	}
	rec.Model = model.String
	rec.Recommendation = recommendation.String
	if err := json.Unmarshal([]byte(decision), &rec.Decision); err != nil {
		return nil, fmt.Errorf("decoding decision of report %s: %w", rec.ID, err)
	}
	if warnings.Valid && warnings.String != "" && warnings.String != "null" {
		if err := json.Unmarshal([]byte(warnings.String), &rec.Warnings); err != nil {
			return nil, fmt.Errorf("decoding warnings of report %s: %w", rec.ID, err)
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &rec, nil
}

// Get loads a report by ID.
func (s *SQLiteReportStore) Get(ctx context.Context, id string) (*core.ReportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.readDB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	rec, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("report", id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning report: %w", err)
	}
	return rec, nil
}

// List returns reports newest first.
func (s *SQLiteReportStore) List(ctx context.Context, filter core.ReportFilter) ([]*core.ReportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + reportColumns + ` FROM reports`
	var args []any
	if filter.Passed != nil {
		query += ` WHERE passed = ?`
		args = append(args, *filter.Passed)
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*core.ReportRecord, 0)
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, rec)
	}
	return reports, rows.Err()
}

// Path returns the database path.
func (s *SQLiteReportStore) Path() string {
	return s.dbPath
}

// Close closes both database connections.
func (s *SQLiteReportStore) Close() error {
	var errs []error
	if s.readDB != nil {
		if err := s.readDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing read connection: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing write connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

var _ core.ReportStore = (*SQLiteReportStore)(nil)
