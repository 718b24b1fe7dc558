package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"handbook/internal/domain"
	"handbook/internal/logger"
	"handbook/internal/service"
)

type fakeService struct {
	reply   *service.Reply
	err     error
	courses []domain.CourseRef
	health  service.Health
	got     domain.QueryContext
}

func (f *fakeService) Chat(_ context.Context, q domain.QueryContext) (*service.Reply, error) {
	f.got = q
	return f.reply, f.err
}

func (f *fakeService) Courses(context.Context) ([]domain.CourseRef, error) { return f.courses, f.err }

func (f *fakeService) Health(context.Context) service.Health { return f.health }

func newTestRouter(svc ChatPort) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(Config{AllowedOrigins: []string{"http://localhost:3000"}}, svc, logger.Nop())
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestRootAndHealth(t *testing.T) {
	svc := &fakeService{health: service.Health{Embedder: true, Index: false, Generator: true}}
	r := newTestRouter(svc)

	rec, body := do(t, r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, serviceVersion, body["version"])

	rec, body = do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, false, body["index"])
}

func TestChatSuccessAppliesDefaults(t *testing.T) {
	svc := &fakeService{reply: &service.Reply{Answer: "Bachelor's degree required. [Course Code: C04379]"}}
	r := newTestRouter(svc)

	rec, body := do(t, r, http.MethodPost, "/api/chatbot/chat/", `{
		"message": "admission for C04379",
		"history": [{"text": "hi", "type": "user"}]
	}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["response"], "Bachelor's degree required.")
	assert.True(t, svc.got.Concise)
	assert.True(t, svc.got.UsePreprocessing)
	assert.Len(t, svc.got.History, 1)

	_, _ = do(t, r, http.MethodPost, "/api/chatbot/chat/", `{"message": "x", "concise": false, "use_preprocessing": false}`)
	assert.False(t, svc.got.Concise)
	assert.False(t, svc.got.UsePreprocessing)
}

func TestChatErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", domain.Validation("op", "message is required"), http.StatusOK},
		{"empty result", domain.EmptyResult("op", "C99999"), http.StatusOK},
		{"embedding", domain.Classify(domain.KindEmbeddingFailure, "op", errors.New("boom")), http.StatusBadGateway},
		{"generation", domain.Classify(domain.KindGenerationFailure, "op", errors.New("boom")), http.StatusBadGateway},
		{"index", domain.Classify(domain.KindIndexUnreachable, "op", errors.New("refused")), http.StatusServiceUnavailable},
		{"timeout", domain.Classify(domain.KindIndexUnreachable, "op", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown", errors.New("???"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&fakeService{err: tc.err})
			rec, body := do(t, r, http.MethodPost, "/api/chatbot/chat/", `{"message": "q"}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
			assert.NotContains(t, body["error"], "boom")
			if tc.status != http.StatusOK {
				assert.Equal(t, apology, body["response"])
			}
		})
	}
}

func TestDimensionMismatchIsGatewayError(t *testing.T) {
	err := domain.Classify(domain.KindEmbeddingFailure, "op",
		fmt.Errorf("%w: query has 2, index expects 3", domain.ErrDimensionMismatch))
	rec, body := do(t, newTestRouter(&fakeService{err: err}), http.MethodPost, "/api/chatbot/chat/", `{"message": "q"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, apology, body["response"])
	assert.NotContains(t, body["error"], "index expects")
}

func TestFailuresAreLoggedWithStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}
	gin.SetMode(gin.TestMode)
	svc := &fakeService{err: domain.Classify(domain.KindIndexUnreachable, "op", errors.New("refused"))}
	r := NewRouter(Config{}, svc, log)

	rec, _ := do(t, r, http.MethodPost, "/api/chatbot/chat/", `{"message": "q"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	failed := logs.FilterMessage("request failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, int64(http.StatusServiceUnavailable), fields["status"])
	assert.Equal(t, "index_unreachable", fields["kind"])
	assert.Equal(t, "/api/chatbot/chat/", fields["path"])

	svc.err = domain.EmptyResult("op", "C99999")
	_, _ = do(t, r, http.MethodPost, "/api/chatbot/chat/", `{"message": "q"}`)
	assert.Len(t, logs.FilterMessage("request not answered").All(), 1)
	assert.Len(t, logs.FilterMessage("request failed").All(), 1)
}

func TestEmptyResultMessageNamesCourse(t *testing.T) {
	r := newTestRouter(&fakeService{err: domain.EmptyResult("op", "C99999")})
	_, body := do(t, r, http.MethodPost, "/api/chatbot/chat/", `{"message": "q"}`)
	assert.Contains(t, body["response"], "C99999")
}

func TestChatRejectsMalformedBody(t *testing.T) {
	svc := &fakeService{}
	rec, body := do(t, newTestRouter(svc), http.MethodPost, "/api/chatbot/chat/", `{"message": `)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestTestEndpointAsksCannedQuestion(t *testing.T) {
	svc := &fakeService{reply: &service.Reply{Answer: "Many."}}
	rec, body := do(t, newTestRouter(svc), http.MethodPost, "/api/chatbot/test/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Many.", body["response"])
	assert.Equal(t, testQuestion, svc.got.Message)
}

func TestCourses(t *testing.T) {
	svc := &fakeService{courses: []domain.CourseRef{{Code: "C04379", Name: "Analytics"}}}
	rec, body := do(t, newTestRouter(svc), http.MethodGet, "/api/chatbot/courses/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["courses"], 1)

	svc = &fakeService{err: domain.Classify(domain.KindIndexUnreachable, "op", errors.New("refused"))}
	rec, body = do(t, newTestRouter(svc), http.MethodGet, "/api/chatbot/courses/", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(&fakeService{})
	req := httptest.NewRequest(http.MethodOptions, "/api/chatbot/chat/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
