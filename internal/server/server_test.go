package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdocs/internal/domain"
	"askdocs/internal/prompt"
	"askdocs/internal/service"
)

type fakeBackend struct {
	ingested  map[string]string
	ingestErr error
	askErr    error
	lastTopK  int
}

func (f *fakeBackend) IngestReader(_ context.Context, name string, _ int64, r io.Reader) (service.IngestResult, error) {
	if f.ingestErr != nil {
		return service.IngestResult{}, f.ingestErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return service.IngestResult{}, err
	}
	if f.ingested == nil {
		f.ingested = map[string]string{}
	}
	f.ingested[name] = string(b)
	return service.IngestResult{DocumentID: "doc-1", Name: name, Chunks: 2}, nil
}

func (f *fakeBackend) Ask(_ context.Context, question string, topK int) (*service.Answer, error) {
	f.lastTopK = topK
	if f.askErr != nil {
		return nil, f.askErr
	}
	return &service.Answer{
		Question: question,
		Intent:   prompt.Definition,
		Text:     "Overlap is shared text.",
		Passages: []domain.Passage{{
			Fragment: domain.Fragment{Metadata: domain.Metadata{DocumentID: "doc-1", ChunkID: 0, Start: 0, End: 23}, Score: 0.9},
			Text:     "Overlap is shared text.",
		}},
		Dropped: 1,
	}, nil
}

func (f *fakeBackend) Stats(context.Context) (service.Stats, error) {
	return service.Stats{Vectors: 2, Dimension: 512, Documents: 1, Embedder: "hashing", Generator: "extractive", Store: "file"}, nil
}

func (f *fakeBackend) Documents(context.Context) ([]domain.Document, error) {
	return []domain.Document{{ID: "doc-1", Name: "a.txt", Text: "secret body", Chunks: 2}}, nil
}

func newTestServer(b Backend) *Server {
	gin.SetMode(gin.TestMode)
	return New(Config{Addr: ":0"}, b, nil)
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, name, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/ingest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeBackend{})
	w := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestIngest(t *testing.T) {
	b := &fakeBackend{}
	s := newTestServer(b)
	w := do(t, s, uploadRequest(t, "notes.txt", "hello world"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp["document_id"])
	assert.Equal(t, float64(2), resp["chunks_indexed"])
	assert.Equal(t, "hello world", b.ingested["notes.txt"])
}

func TestIngest_MissingFile(t *testing.T) {
	s := newTestServer(&fakeBackend{})
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(""))
	w := do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngest_ErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.ErrUnsupportedType, http.StatusUnsupportedMediaType},
		{domain.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{domain.ErrEmptyInput, http.StatusBadRequest},
		{fmt.Errorf("embed: %w", io.ErrUnexpectedEOF), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s := newTestServer(&fakeBackend{ingestErr: tc.err})
		w := do(t, s, uploadRequest(t, "a.txt", "x"))
		assert.Equal(t, tc.code, w.Code, tc.err.Error())

		var resp struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusText(tc.code), resp.Error.Code)
		assert.Equal(t, tc.err.Error(), resp.Error.Message)
	}
}

func TestQuery(t *testing.T) {
	b := &fakeBackend{}
	s := newTestServer(b)
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"What is overlap?","top_k":3}`))
	req.Header.Set("Content-Type", "application/json")
	w := do(t, s, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, b.lastTopK)

	var resp queryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Overlap is shared text.", resp.Answer)
	assert.Equal(t, "definition", resp.Intent)
	assert.Equal(t, 1, resp.Dropped)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "doc-1", resp.Sources[0].DocumentID)
	assert.Equal(t, 23, resp.Sources[0].End)
}

func TestQuery_Errors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"bad json", `{"question":`, nil, http.StatusBadRequest},
		{"negative top_k", `{"question":"q","top_k":-1}`, nil, http.StatusBadRequest},
		{"empty question", `{"question":"  "}`, domain.ErrEmptyQuestion, http.StatusBadRequest},
		{"nothing indexed", `{"question":"q"}`, fmt.Errorf("%w: %w", domain.ErrNoDocuments, domain.ErrEmptyIndex), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&fakeBackend{askErr: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := do(t, s, req)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
}

func TestStatsAndDocuments(t *testing.T) {
	s := newTestServer(&fakeBackend{})

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var st service.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Vectors)
	assert.Equal(t, "hashing", st.Embedder)

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/documents", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"a.txt"`)
	assert.NotContains(t, w.Body.String(), "secret body")
}

func TestMetrics(t *testing.T) {
	s := newTestServer(&fakeBackend{})
	do(t, s, uploadRequest(t, "a.txt", "x"))
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"what is x?"}`))
	req.Header.Set("Content-Type", "application/json")
	do(t, s, req)

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "askdocs_ingested_documents_total 1")
	assert.Contains(t, body, "askdocs_ingested_chunks_total 2")
	assert.Contains(t, body, `askdocs_queries_total{intent="definition",outcome="ok"} 1`)
	assert.Contains(t, body, `askdocs_http_requests_total{method="POST",path="/ingest",status="200"} 1`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("get: %w", domain.ErrNotFound)))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrEmptyQuery))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrInvalidArgument))
	assert.Equal(t, http.StatusInternalServerError, statusFor(domain.ErrCorruptSnapshot))
}
