package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"handbook/internal/domain"
	"handbook/internal/logger"
)

const (
	serviceName    = "Handbook Chatbot API"
	serviceVersion = "1.0.0"

	apology = "Sorry, there was an error processing your request. Please try again."

	testQuestion = "What courses are available?"
)

type ChatRequest struct {
	Message          string        `json:"message"`
	CourseCode       string        `json:"course_code"`
	CourseName       string        `json:"course_name"`
	History          []domain.Turn `json:"history"`
	Concise          *bool         `json:"concise"`
	UsePreprocessing *bool         `json:"use_preprocessing"`
}

func (r ChatRequest) query() domain.QueryContext {
	return domain.QueryContext{
		Message:          r.Message,
		CourseCode:       r.CourseCode,
		CourseName:       r.CourseName,
		History:          r.History,
		Concise:          boolOr(r.Concise, true),
		UsePreprocessing: boolOr(r.UsePreprocessing, true),
	}
}

type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

type CoursesResponse struct {
	Success bool               `json:"success"`
	Courses []domain.CourseRef `json:"courses"`
	Error   string             `json:"error,omitempty"`
}

type handler struct {
	svc ChatPort
	log *logger.Logger
}

func (h *handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName, "version": serviceVersion})
}

func (h *handler) Health(c *gin.Context) {
	hs := h.svc.Health(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":    hs.Status(),
		"embedder":  hs.Embedder,
		"index":     hs.Index,
		"generator": hs.Generator,
	})
}

func (h *handler) Courses(c *gin.Context) {
	refs, err := h.svc.Courses(c.Request.Context())
	if err != nil {
		status, msg := statusFor(err)
		h.logFailure(c, status, err)
		c.JSON(status, CoursesResponse{Success: false, Courses: []domain.CourseRef{}, Error: msg})
		return
	}
	if refs == nil {
		refs = []domain.CourseRef{}
	}
	c.JSON(http.StatusOK, CoursesResponse{Success: true, Courses: refs})
}

func (h *handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, ChatResponse{Success: false, Response: apology, Error: "invalid request body"})
		return
	}
	h.answer(c, req.query())
}

func (h *handler) Test(c *gin.Context) {
	h.answer(c, domain.QueryContext{Message: testQuestion, Concise: true, UsePreprocessing: true})
}

func (h *handler) answer(c *gin.Context, q domain.QueryContext) {
	reply, err := h.svc.Chat(c.Request.Context(), q)
	if err != nil {
		status, msg := statusFor(err)
		h.logFailure(c, status, err)
		text := apology
		if status == http.StatusOK {
			text = msg
		}
		c.JSON(status, ChatResponse{Success: false, Response: text, Error: msg})
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Success: true, Response: reply.Answer})
}

// logFailure records the status chosen for a failed request. Unanswered
// questions are routine and stay at debug.
func (h *handler) logFailure(c *gin.Context, status int, err error) {
	fields := []interface{}{"path", c.FullPath(), "status", status, "kind", string(domain.KindOf(err)), "error", err}
	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed", fields...)
		return
	}
	h.log.Debug("request not answered", fields...)
}

// statusFor maps an error kind to a status code and a client-safe message.
// Validation and empty results are answered with 200.
func statusFor(err error) (int, string) {
	var de *domain.Error
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindValidation, domain.KindEmptyResult:
		msg := string(kind)
		if errors.As(err, &de) && de.Message != "" {
			msg = de.Message
		}
		return http.StatusOK, msg
	case domain.KindEmbeddingFailure:
		return http.StatusBadGateway, "embedding service failed"
	case domain.KindGenerationFailure:
		return http.StatusBadGateway, "answer generation failed"
	case domain.KindIndexUnreachable:
		return http.StatusServiceUnavailable, "course index unavailable"
	case domain.KindTimeout:
		return http.StatusGatewayTimeout, "request timed out"
	}
	return http.StatusInternalServerError, "internal error"
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
