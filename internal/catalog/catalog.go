package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devlens/devlens/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when no analysis has the requested id.
var ErrNotFound = errors.New("catalog: analysis not found")

// Catalog manages analysis records.
type Catalog interface {
	// Insert adds a new analysis record.
	Insert(ctx context.Context, rec *types.AnalysisRecord) error

	// Get retrieves a single record by id.
	Get(ctx context.Context, id string) (*types.AnalysisRecord, error)

	// List returns records ordered by creation time, newest first.
	// A limit of zero or less returns every record after offset.
	List(ctx context.Context, limit, offset int) ([]*types.AnalysisRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Rename replaces the source file name of a record.
	Rename(ctx context.Context, id, sourceFile string, updatedAt time.Time) error

	// Delete removes a record.
	Delete(ctx context.Context, id string) error

	// Close closes the catalog database connections.
	Close() error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	insertStmt *sql.Stmt
}

const selectColumns = `id, source_file, record_count, classified_count, generated_at,
	created_at, updated_at, lsa_key, funnel_key, overview_key, size_bytes`

// NewCatalog creates a new SQLite-based catalog.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	catalog := &SQLiteCatalog{db: db, dbPath: dbPath}
	if err := catalog.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	catalog.readDB = readDB

	insertStmt, err := db.Prepare(`
		INSERT INTO analyses (
			id, source_file, record_count, classified_count, generated_at,
			created_at, updated_at, lsa_key, funnel_key, overview_key, size_bytes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("catalog: failed to prepare insert statement: %w", err)
	}
	catalog.insertStmt = insertStmt

	return catalog, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Insert adds a new analysis record.
func (c *SQLiteCatalog) Insert(ctx context.Context, rec *types.AnalysisRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("catalog: record id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.insertStmt.ExecContext(ctx,
		rec.ID, rec.SourceFile, rec.RecordCount, rec.ClassifiedCount,
		toNanos(rec.GeneratedAt), toNanos(rec.CreatedAt), toNanos(rec.UpdatedAt),
		rec.LSAKey, rec.FunnelKey, rec.OverviewKey, rec.SizeBytes,
	)
	if err != nil {
		return fmt.Errorf("catalog: failed to insert analysis: %w", err)
	}
	return nil
}

// Get retrieves a single record by id.
func (c *SQLiteCatalog) Get(ctx context.Context, id string) (*types.AnalysisRecord, error) {
	row := c.readDB.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM analyses WHERE id = ?", id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to get analysis: %w", err)
	}
	return rec, nil
}

// List returns records ordered by creation time, newest first.
func (c *SQLiteCatalog) List(ctx context.Context, limit, offset int) ([]*types.AnalysisRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := c.readDB.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM analyses ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list analyses: %w", err)
	}
	defer rows.Close()

	var records []*types.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to scan analysis: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: failed to iterate analyses: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (c *SQLiteCatalog) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := c.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM analyses").Scan(&count); err != nil {
		return 0, fmt.Errorf("catalog: failed to count analyses: %w", err)
	}
	return count, nil
}

// Rename replaces the source file name of a record.
func (c *SQLiteCatalog) Rename(ctx context.Context, id, sourceFile string, updatedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		"UPDATE analyses SET source_file = ?, updated_at = ? WHERE id = ?",
		sourceFile, toNanos(updatedAt), id)
	if err != nil {
		return fmt.Errorf("catalog: failed to rename analysis: %w", err)
	}
	return requireOneRow(res)
}

// Delete removes a record.
func (c *SQLiteCatalog) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, "DELETE FROM analyses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("catalog: failed to delete analysis: %w", err)
	}
	return requireOneRow(res)
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	var firstErr error
	if c.insertStmt != nil {
		if err := c.insertStmt.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.readDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*types.AnalysisRecord, error) {
	var rec types.AnalysisRecord
	var generatedAt, createdAt, updatedAt int64

	err := s.Scan(
		&rec.ID, &rec.SourceFile, &rec.RecordCount, &rec.ClassifiedCount,
		&generatedAt, &createdAt, &updatedAt,
		&rec.LSAKey, &rec.FunnelKey, &rec.OverviewKey, &rec.SizeBytes,
	)
	if err != nil {
		return nil, err
	}

	rec.GeneratedAt = fromNanos(generatedAt)
	rec.CreatedAt = fromNanos(createdAt)
	rec.UpdatedAt = fromNanos(updatedAt)
	return &rec, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
