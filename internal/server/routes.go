package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"askdocs/internal/domain"
	"askdocs/internal/loader"
	"askdocs/internal/service"
)

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/stats", s.stats)
	s.router.GET("/documents", s.documents)
	s.router.POST("/ingest", s.ingest)
	s.router.POST("/query", s.query)
	s.router.GET("/metrics", s.metrics.Handler())
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type queryResponse struct {
	Answer  string           `json:"answer"`
	Intent  string           `json:"intent"`
	Sources []domain.Passage `json:"sources"`
	Dropped int              `json:"dropped"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.backend.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.setVectors(st.Vectors)
	c.JSON(http.StatusOK, st)
}

func (s *Server) documents(c *gin.Context) {
	docs, err := s.backend.Documents(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	type entry struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		Chunks     int       `json:"chunks"`
		IngestedAt time.Time `json:"ingested_at"`
	}
	out := make([]entry, len(docs))
	for i, d := range docs {
		out[i] = entry{ID: d.ID, Name: d.Name, Chunks: d.Chunks, IngestedAt: d.IngestedAt}
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

func (s *Server) ingest(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, loader.MaxFileSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.fail(c, domain.ErrTooLarge)
			return
		}
		s.fail(c, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()

	res, err := s.backend.IngestReader(c.Request.Context(), fh.Filename, fh.Size, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.observeIngest(res.Chunks)
	c.JSON(http.StatusOK, gin.H{
		"message":        "Document ingested successfully",
		"document_id":    res.DocumentID,
		"chunks_indexed": res.Chunks,
	})
}

func (s *Server) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
		return
	}
	if req.TopK < 0 {
		s.fail(c, fmt.Errorf("%w: top_k must not be negative", domain.ErrInvalidArgument))
		return
	}
	start := time.Now()
	ans, err := s.backend.Ask(c.Request.Context(), req.Question, req.TopK)
	if err != nil {
		s.metrics.observeQuery("", outcome(err), time.Since(start))
		s.fail(c, err)
		return
	}
	s.metrics.observeQuery(string(ans.Intent), "ok", time.Since(start))
	c.JSON(http.StatusOK, queryResponse{
		Answer:  ans.Text,
		Intent:  string(ans.Intent),
		Sources: ans.Passages,
		Dropped: ans.Dropped,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrNoDocuments), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyInput),
		errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrEmptyQuestion),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func outcome(err error) string {
	if statusFor(err) >= 500 {
		return "error"
	}
	return "rejected"
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	entry := s.log.WithError(err).WithField("path", c.Request.URL.Path)
	if status >= 500 {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	c.JSON(status, gin.H{"error": gin.H{
		"code":    http.StatusText(status),
		"message": err.Error(),
	}})
}

var _ Backend = (*service.Service)(nil)
