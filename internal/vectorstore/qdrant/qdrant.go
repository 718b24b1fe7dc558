package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"handbook/internal/domain"
	"handbook/internal/vectorstore"
)

const (
	maxErrorBodyBytes = 2048
	scrollPageSize    = 256
)

// Storage is a REST client to one Qdrant collection.
// It uses cosine distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Status json.RawMessage `json:"status"`
	Result json.RawMessage `json:"result"`
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

// Init creates the collection and its course_code payload index when absent,
// and verifies the vector size when present.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	const op = "init"
	if dimension <= 0 {
		return opErr(op, OperationErrorValidation, "invalid dimension", nil)
	}
	var info collectionInfo
	status, err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	switch {
	case err == nil:
		if size := info.Config.Params.Vectors.Size; size != 0 && size != dimension {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("collection %q has vector size %d, expected %d", s.collection, size, dimension), nil)
		}
		s.dimension = dimension
		return nil
	case status != http.StatusNotFound:
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), body, nil); err != nil {
		return err
	}
	index := map[string]any{"field_name": vectorstore.KeyCourseCode, "field_schema": "keyword"}
	if _, err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/index?wait=true"), index, nil); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, points []domain.IndexedPoint) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	if _, err := vectorstore.CheckPoints("qdrant.upsert", s.dimension, points); err != nil {
		return err
	}
	out := make([]map[string]any, len(points))
	for i, p := range points {
		out[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": vectorstore.Payload(p.Chunk),
		}
	}
	_, err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": out}, nil)
	return err
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func (s *Storage) Search(ctx context.Context, vector []float32, limit int, filter domain.Filter) ([]domain.SearchResult, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := courseFilter(filter); f != nil {
		req["filter"] = f
	}
	var result []scoredPoint
	if _, err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &result); err != nil {
		return nil, err
	}
	hits := make([]domain.SearchResult, 0, len(result))
	for _, r := range result {
		hits = append(hits, domain.SearchResult{
			Chunk: vectorstore.ChunkFromPayload(decodePointID(r.ID), r.Payload),
			Score: r.Score,
		})
	}
	return vectorstore.SortResults(hits, limit), nil
}

// Delete removes all points matching a non-empty filter.
func (s *Storage) Delete(ctx context.Context, filter domain.Filter) error {
	const op = "delete"
	f := courseFilter(filter)
	if f == nil {
		return opErr(op, OperationErrorValidation, "delete requires a filter", nil)
	}
	_, err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"filter": f}, nil)
	return err
}

// Courses scrolls the whole collection and returns the distinct course codes.
func (s *Storage) Courses(ctx context.Context) ([]domain.CourseRef, error) {
	const op = "courses"
	seen := make(map[string]int)
	var refs []domain.CourseRef
	var offset json.RawMessage
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": []string{vectorstore.KeyCourseCode, vectorstore.KeyCourseName},
			"with_vector":  false,
		}
		if len(offset) > 0 {
			req["offset"] = offset
		}
		var page struct {
			Points         []scoredPoint   `json:"points"`
			NextPageOffset json.RawMessage `json:"next_page_offset"`
		}
		if _, err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/scroll"), req, &page); err != nil {
			return nil, err
		}
		for _, p := range page.Points {
			code, _ := p.Payload[vectorstore.KeyCourseCode].(string)
			name, _ := p.Payload[vectorstore.KeyCourseName].(string)
			if code == "" {
				continue
			}
			if i, ok := seen[code]; ok {
				if refs[i].Name == "" {
					refs[i].Name = name
				}
				continue
			}
			seen[code] = len(refs)
			refs = append(refs, domain.CourseRef{Code: code, Name: name})
		}
		if len(page.NextPageOffset) == 0 || string(page.NextPageOffset) == "null" {
			break
		}
		offset = page.NextPageOffset
	}
	return vectorstore.SortCourses(refs), nil
}

// Healthy probes the readiness endpoint.
func (s *Storage) Healthy(ctx context.Context) bool {
	return s.verifyReady(ctx) == nil
}

func (s *Storage) verifyReady(ctx context.Context) error {
	const op = "ready"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	s.authorize(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	status, err := s.doJSON(ctx, "clear", http.MethodDelete, s.collectionPath(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	s.dimension = 0
	return nil
}

func courseFilter(f domain.Filter) map[string]any {
	if f.IsZero() {
		return nil
	}
	return mustFilter(matchFilter(vectorstore.KeyCourseCode, f.CourseCode))
}

func mustFilter(conds ...map[string]any) map[string]any {
	return map[string]any{"must": conds}
}

func matchFilter(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func (s *Storage) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.collection) + suffix
}

func (s *Storage) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

// doJSON sends in as JSON and decodes the envelope's result into out. The
// HTTP status is returned whenever a response arrived.
func (s *Storage) doJSON(ctx context.Context, op, method, path string, in any, out any) (int, error) {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return 0, opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, body)
	if err != nil {
		return 0, opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return resp.StatusCode, opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return resp.StatusCode, opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return resp.StatusCode, nil
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

// decodePointID accepts both UUID strings and integer ids.
func decodePointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
