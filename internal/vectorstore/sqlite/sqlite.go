// Package sqlite is a local vector index kept in a single SQLite file.
// Search is brute-force cosine over the candidate rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"handbook/internal/domain"
	"handbook/internal/vectorstore"
)

type Storage struct {
	db        *sql.DB
	mu        sync.Mutex
	dimension int
}

// Open creates or opens the index file at path.
func Open(path string) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required for local vector index")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS points (
			id TEXT PRIMARY KEY,
			course_code TEXT NOT NULL,
			course_name TEXT,
			chunk_type TEXT,
			label TEXT,
			text TEXT NOT NULL,
			ordinal INTEGER,
			dim INTEGER NOT NULL,
			vector BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_points_course ON points (course_code);`,
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init vector db: %w", err)
		}
	}
	return nil
}

// Init records the dimension on first use and checks it afterwards.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.storedDimension(ctx)
	switch {
	case err != nil:
		return err
	case stored == 0:
		if _, err := s.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('dimension', ?)`, fmt.Sprint(dimension)); err != nil {
			return err
		}
	case stored != dimension:
		return domain.Errorf(domain.KindValidation, "sqlite.init", nil,
			"index holds %d-dimensional vectors, got %d", stored, dimension)
	}
	s.dimension = dimension
	return nil
}

// storedDimension reads the dimension recorded by Init, or 0 if none is.
func (s *Storage) storedDimension(ctx context.Context) (int, error) {
	var stored int
	err := s.db.QueryRowContext(ctx, `SELECT CAST(value AS INTEGER) FROM meta WHERE key = 'dimension'`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return stored, err
}

// loadDimension fills s.dimension from meta after a reopen. Callers hold mu.
func (s *Storage) loadDimension(ctx context.Context) error {
	if s.dimension != 0 {
		return nil
	}
	dim, err := s.storedDimension(ctx)
	if err != nil {
		return err
	}
	s.dimension = dim
	return nil
}

func (s *Storage) Upsert(ctx context.Context, points []domain.IndexedPoint) error {
	if len(points) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadDimension(ctx); err != nil {
		return err
	}
	if _, err := vectorstore.CheckPoints("sqlite.upsert", s.dimension, points); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO points
		(id, course_code, course_name, chunk_type, label, text, ordinal, dim, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, p := range points {
		c := p.Chunk
		if _, err := stmt.ExecContext(ctx,
			p.ID, c.CourseCode, c.CourseName, c.Type, c.Label, c.Text, c.Ordinal, len(p.Vector), encodeVector(p.Vector),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) Search(ctx context.Context, vector []float32, limit int, filter domain.Filter) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `SELECT id, course_code, course_name, chunk_type, label, text, ordinal, vector FROM points`
	var args []any
	if !filter.IsZero() {
		query += ` WHERE course_code = ?`
		args = append(args, filter.CourseCode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadDimension(ctx); err != nil {
		return nil, err
	}
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("sqlite.search: %w: query has %d, index expects %d",
			domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.SearchResult
	for rows.Next() {
		var c domain.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.CourseCode, &c.CourseName, &c.Type, &c.Label, &c.Text, &c.Ordinal, &blob); err != nil {
			return nil, err
		}
		vec, ok := decodeVector(blob)
		if !ok {
			continue
		}
		hits = append(hits, domain.SearchResult{Chunk: c, Score: vectorstore.Cosine(vector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.SortResults(hits, limit), nil
}

func (s *Storage) Delete(ctx context.Context, filter domain.Filter) error {
	if filter.IsZero() {
		return domain.Validation("sqlite.delete", "delete requires a filter; use Clear to drop everything")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM points WHERE course_code = ?`, filter.CourseCode)
	return err
}

func (s *Storage) Courses(ctx context.Context) ([]domain.CourseRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT course_code, MAX(COALESCE(course_name, '')) FROM points GROUP BY course_code ORDER BY course_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []domain.CourseRef
	for rows.Next() {
		var ref domain.CourseRef
		if err := rows.Scan(&ref.Code, &ref.Name); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *Storage) Healthy(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM points`); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM meta WHERE key = 'dimension'`); err != nil {
		return err
	}
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
