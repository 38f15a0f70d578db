package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps every driver-level failure. Callers treat it
	// as fatal.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// storeErr tags a driver error with ErrStoreUnavailable while keeping it
// inspectable
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath and
// applies pending migrations. ":memory:" gives a private in-memory store.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, storeErr("create database directory", err)
			}
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, storeErr("failed to open database", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, storeErr("failed to apply migrations", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for migrations tooling
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Pattern operations

const patternColumns = `id, name, category, description, problem, solution,
	when_to_use, complexity, tags, created_at, updated_at`

// upsertPatternWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertPatternWithQuerier(ctx context.Context, q querier, p *types.Pattern) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", p.ID, err)
	}

	whenToUse, err := encodeList(p.WhenToUse)
	if err != nil {
		return err
	}
	tags, err := encodeList(p.Tags)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	// created_at of an existing row wins
	query := `
		INSERT INTO patterns (` + patternColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			description = excluded.description,
			problem = excluded.problem,
			solution = excluded.solution,
			when_to_use = excluded.when_to_use,
			complexity = excluded.complexity,
			tags = excluded.tags,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		p.ID, p.Name, p.Category, p.Description, p.Problem, p.Solution,
		whenToUse, p.Complexity, tags, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return storeErr("failed to upsert pattern "+p.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertPattern(ctx context.Context, pattern *types.Pattern) error {
	return s.upsertPatternWithQuerier(ctx, s.querier(), pattern)
}

func (s *SQLiteStorage) UpsertPatterns(ctx context.Context, patterns []*types.Pattern) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range patterns {
		if err := s.upsertPatternWithQuerier(ctx, tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit patterns", err)
	}
	return nil
}

// getPatternWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getPatternWithQuerier(ctx context.Context, q querier, id string) (*types.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns WHERE id = ?`
	p, err := scanPattern(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to get pattern "+id, err)
	}
	return p, nil
}

func (s *SQLiteStorage) GetPattern(ctx context.Context, id string) (*types.Pattern, error) {
	return s.getPatternWithQuerier(ctx, s.querier(), id)
}

func (s *SQLiteStorage) ListPatterns(ctx context.Context) ([]*types.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns ORDER BY pk`
	return s.queryPatterns(ctx, s.querier(), "list patterns", query)
}

func (s *SQLiteStorage) ListPatternsByCategory(ctx context.Context, categories ...string) ([]*types.Pattern, error) {
	args := make([]interface{}, 0, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			args = append(args, c)
		}
	}
	if len(args) == 0 {
		return s.ListPatterns(ctx)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	query := `SELECT ` + patternColumns + ` FROM patterns
		WHERE lower(category) IN (` + placeholders + `)
		ORDER BY pk`
	return s.queryPatterns(ctx, s.querier(), "list patterns by category", query, args...)
}

// searchPatternsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) searchPatternsWithQuerier(ctx context.Context, q querier, query string, limit int) ([]*types.Pattern, error) {
	match := sanitizeFTSQuery(query)
	if match == "" {
		return []*types.Pattern{}, nil
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	// rank is FTS5's BM25 column; lower is a better match
	sqlQuery := `
		SELECT p.id, p.name, p.category, p.description, p.problem, p.solution,
		       p.when_to_use, p.complexity, p.tags, p.created_at, p.updated_at
		FROM patterns_fts
		JOIN patterns p ON p.pk = patterns_fts.rowid
		WHERE patterns_fts MATCH ?
		ORDER BY rank, p.pk
		LIMIT ?
	`
	return s.queryPatterns(ctx, q, "search patterns", sqlQuery, match, limit)
}

func (s *SQLiteStorage) SearchPatterns(ctx context.Context, query string, limit int) ([]*types.Pattern, error) {
	return s.searchPatternsWithQuerier(ctx, s.querier(), query, limit)
}

func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]types.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*) FROM patterns
		GROUP BY category
		ORDER BY COUNT(*) DESC, category
	`)
	if err != nil {
		return nil, storeErr("failed to list categories", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make([]types.CategoryCount, 0)
	for rows.Next() {
		var c types.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, storeErr("failed to scan category", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to list categories", err)
	}
	return counts, nil
}

func (s *SQLiteStorage) DeletePattern(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM patterns WHERE id = ?", id)
	if err != nil {
		return storeErr("failed to delete pattern "+id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeErr("failed to delete pattern "+id, err)
	}
	if n == 0 {
		return fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) CountPatterns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patterns").Scan(&n); err != nil {
		return 0, storeErr("failed to count patterns", err)
	}
	return n, nil
}

func (s *SQLiteStorage) queryPatterns(ctx context.Context, q querier, op, query string, args ...interface{}) ([]*types.Pattern, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("failed to "+op, err)
	}
	defer func() { _ = rows.Close() }()

	patterns := make([]*types.Pattern, 0)
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, storeErr("failed to scan pattern", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to "+op, err)
	}
	return patterns, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPattern(row rowScanner) (*types.Pattern, error) {
	var (
		p                    types.Pattern
		whenToUse, tags      string
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.Problem, &p.Solution,
		&whenToUse, &p.Complexity, &tags, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if p.WhenToUse, err = decodeList(whenToUse); err != nil {
		return nil, err
	}
	if p.Tags, err = decodeList(tags); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Embedding operations

// upsertEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, entryID, modelID string, vector []float32, contentHash string) error {
	now := formatTime(time.Now().UTC())
	query := `
		INSERT INTO embeddings (entry_id, model_id, vector, dimension, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id, model_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query, entryID, modelID, serializeVector(vector), len(vector), contentHash, now, now)
	if err != nil {
		return storeErr("failed to upsert embedding "+entryID, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, entryID, modelID string, vector []float32, contentHash string) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), entryID, modelID, vector, contentHash)
}

func (s *SQLiteStorage) ListEmbeddings(ctx context.Context, modelID string) ([]types.EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.entry_id, e.model_id, e.vector, e.content_hash, p.category, p.complexity, p.tags
		FROM embeddings e
		JOIN patterns p ON p.id = e.entry_id
		WHERE e.model_id = ?
		ORDER BY e.id
	`, modelID)
	if err != nil {
		return nil, storeErr("failed to list embeddings", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]types.EmbeddingRecord, 0)
	for rows.Next() {
		var (
			r    types.EmbeddingRecord
			blob []byte
			tags string
		)
		if err := rows.Scan(&r.EntryID, &r.ModelID, &blob, &r.ContentHash, &r.Category, &r.Complexity, &tags); err != nil {
			return nil, storeErr("failed to scan embedding", err)
		}
		r.Vector = deserializeVector(blob)
		if r.Tags, err = decodeList(tags); err != nil {
			return nil, storeErr("failed to decode tags", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to list embeddings", err)
	}
	return records, nil
}

func (s *SQLiteStorage) DeleteEmbedding(ctx context.Context, entryID, modelID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE entry_id = ? AND model_id = ?", entryID, modelID)
	if err != nil {
		return storeErr("failed to delete embedding "+entryID, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteEmbeddingsByModel(ctx context.Context, modelID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE model_id = ?", modelID)
	if err != nil {
		return storeErr("failed to delete embeddings", err)
	}
	return nil
}

func (s *SQLiteStorage) CountEmbeddings(ctx context.Context, modelID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings WHERE model_id = ?", modelID).Scan(&n)
	if err != nil {
		return 0, storeErr("failed to count embeddings", err)
	}
	return n, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
