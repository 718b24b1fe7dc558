// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"handbook/internal/domain"
	"handbook/internal/logger"
	"handbook/internal/service"
)

// ChatPort is the server-facing subset of the chat service.
type ChatPort interface {
	Chat(ctx context.Context, q domain.QueryContext) (*service.Reply, error)
	Courses(ctx context.Context) ([]domain.CourseRef, error)
	Health(ctx context.Context) service.Health
}

// Config holds HTTP settings.
type Config struct {
	Port           int
	Mode           string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Server struct {
	Engine *gin.Engine
	cfg    Config
	log    *logger.Logger
}

func New(cfg Config, svc ChatPort, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	return &Server{Engine: NewRouter(cfg, svc, log), cfg: cfg, log: log}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
