package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"askdocs/internal/domain"
	"askdocs/internal/logging"
	"askdocs/internal/service"
)

// Backend is the subset of the service the API needs.
type Backend interface {
	IngestReader(ctx context.Context, name string, size int64, r io.Reader) (service.IngestResult, error)
	Ask(ctx context.Context, question string, topK int) (*service.Answer, error)
	Stats(ctx context.Context) (service.Stats, error)
	Documents(ctx context.Context) ([]domain.Document, error)
}

// Config configures the HTTP listener.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	backend Backend
	metrics *Metrics
	log     logrus.FieldLogger
	router  *gin.Engine
}

// New builds the router. log may be nil.
func New(cfg Config, backend Backend, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		cfg:     cfg,
		backend: backend,
		metrics: NewMetrics("askdocs"),
		log:     log,
		router:  gin.New(),
	}
	s.router.MaxMultipartMemory = 8 << 20
	s.router.Use(gin.Recovery(), requestIDMiddleware(), s.loggingMiddleware(), s.metrics.Middleware())
	s.setupRoutes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("http server stopped")
	return nil
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("requestID", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"request_id": c.GetString("requestID"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		}).Info("http request")
	}
}
