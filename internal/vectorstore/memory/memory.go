package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"handbook/internal/domain"
	"handbook/internal/vectorstore"
)

// Storage is a simple in-memory vector index using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	points    []domain.IndexedPoint
	byID      map[string]int
}

func NewStorage() *Storage { return &Storage{byID: make(map[string]int)} }

// Init fixes the dimension. Re-initializing with another dimension fails
// while points are stored.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.points) > 0 {
		return domain.Errorf(domain.KindValidation, "memory.init", nil,
			"index holds %d-dimensional vectors, got %d", s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

// Upsert inserts or replaces points by id.
func (s *Storage) Upsert(_ context.Context, points []domain.IndexedPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := vectorstore.CheckPoints("memory.upsert", s.dimension, points)
	if err != nil {
		return err
	}
	s.dimension = dim
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		if i, ok := s.byID[p.ID]; ok {
			s.points[i] = p
			continue
		}
		s.byID[p.ID] = len(s.points)
		s.points = append(s.points, p)
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, limit int, filter domain.Filter) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 5
	}
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("memory.search: %w: query has %d, index expects %d",
			domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	var hits []domain.SearchResult
	for _, p := range s.points {
		if !filter.IsZero() && p.Chunk.CourseCode != filter.CourseCode {
			continue
		}
		hits = append(hits, domain.SearchResult{Chunk: p.Chunk, Score: vectorstore.Cosine(vector, p.Vector)})
	}
	return vectorstore.SortResults(hits, limit), nil
}

// Delete removes every point matching a non-empty filter.
func (s *Storage) Delete(_ context.Context, filter domain.Filter) error {
	if filter.IsZero() {
		return domain.Validation("memory.delete", "delete requires a filter; use Clear to drop everything")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.points[:0]
	for _, p := range s.points {
		if p.Chunk.CourseCode != filter.CourseCode {
			kept = append(kept, p)
		}
	}
	s.points = kept
	s.byID = make(map[string]int, len(kept))
	for i, p := range kept {
		s.byID[p.ID] = i
	}
	return nil
}

func (s *Storage) Courses(_ context.Context) ([]domain.CourseRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]int)
	var refs []domain.CourseRef
	for _, p := range s.points {
		if i, ok := seen[p.Chunk.CourseCode]; ok {
			if refs[i].Name == "" {
				refs[i].Name = p.Chunk.CourseName
			}
			continue
		}
		seen[p.Chunk.CourseCode] = len(refs)
		refs = append(refs, domain.CourseRef{Code: p.Chunk.CourseCode, Name: p.Chunk.CourseName})
	}
	return vectorstore.SortCourses(refs), nil
}

// Len returns the number of stored points.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func (s *Storage) Healthy(context.Context) bool { return true }

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = nil
	s.byID = make(map[string]int)
	return nil
}
