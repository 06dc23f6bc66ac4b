package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"askdocs/internal/chunker"
	"askdocs/internal/docstore"
	"askdocs/internal/domain"
	"askdocs/internal/embedding"
	"askdocs/internal/loader"
	"askdocs/internal/logging"
	"askdocs/internal/prompt"
	"askdocs/internal/retriever"
	"askdocs/internal/vectorstore"
)

// Deps are the collaborators a Service is built from.
type Deps struct {
	Chunker   domain.Chunker
	Embedder  domain.Embedder
	Generator domain.Generator
	Counter   domain.TokenCounter
	Assembler *prompt.Assembler
	Documents docstore.Store
	Snapshots vectorstore.SnapshotStore
	Logger    logrus.FieldLogger
}

// Options carries request defaults.
type Options struct {
	TopK        int
	TokenBudget int
}

// IngestResult describes one ingested document.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Chunks     int    `json:"chunks_indexed"`
}

// Answer is the outcome of Ask.
type Answer struct {
	Question string           `json:"question"`
	Intent   prompt.Intent    `json:"intent"`
	Prompt   string           `json:"-"`
	Text     string           `json:"answer"`
	Passages []domain.Passage `json:"sources"`
	// Dropped counts retrieved passages that did not fit the token budget.
	Dropped int `json:"dropped"`
}

// Stats summarizes the service state.
type Stats struct {
	Vectors   int    `json:"vectors"`
	Dimension int    `json:"dimension"`
	Documents int    `json:"documents"`
	Embedder  string `json:"embedder"`
	Generator string `json:"generator"`
	Store     string `json:"store"`
}

// Service owns the vector index handle and runs ingestion and question
// answering against it. The index is created on the first ingest or
// loaded from the snapshot store on first use.
type Service struct {
	deps Deps
	opts Options
	log  logrus.FieldLogger

	ingestMu sync.Mutex

	mu     sync.RWMutex
	idx    *vectorstore.Index
	opened bool
}

// New validates deps and returns a service. No I/O happens until Open or
// the first request.
func New(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Chunker == nil:
		return nil, fmt.Errorf("%w: chunker is required", domain.ErrInvalidConfig)
	case deps.Embedder == nil:
		return nil, fmt.Errorf("%w: embedder is required", domain.ErrInvalidConfig)
	case deps.Generator == nil:
		return nil, fmt.Errorf("%w: generator is required", domain.ErrInvalidConfig)
	case deps.Counter == nil:
		return nil, fmt.Errorf("%w: token counter is required", domain.ErrInvalidConfig)
	case deps.Assembler == nil:
		return nil, fmt.Errorf("%w: prompt assembler is required", domain.ErrInvalidConfig)
	case deps.Documents == nil:
		return nil, fmt.Errorf("%w: document store is required", domain.ErrInvalidConfig)
	case deps.Snapshots == nil:
		return nil, fmt.Errorf("%w: snapshot store is required", domain.ErrInvalidConfig)
	}
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidConfig, opts.TopK)
	}
	if opts.TokenBudget <= 0 {
		return nil, fmt.Errorf("%w: token budget must be positive, got %d", domain.ErrInvalidConfig, opts.TokenBudget)
	}
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Service{deps: deps, opts: opts, log: log}, nil
}

// Open loads the persisted index if there is one. A missing snapshot is not
// an error. Calling Open again is a no-op.
func (s *Service) Open(ctx context.Context) error {
	_, err := s.index(ctx)
	return err
}

func (s *Service) index(ctx context.Context) (*vectorstore.Index, error) {
	s.mu.RLock()
	if s.opened {
		idx := s.idx
		s.mu.RUnlock()
		return idx, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return s.idx, nil
	}
	idx, err := vectorstore.Load(ctx, s.deps.Snapshots, vectorstore.WithLogger(s.log))
	switch {
	case err == nil:
		s.idx = idx
	case errors.Is(err, domain.ErrNotFound):
		s.log.WithField("store", s.deps.Snapshots.Name()).Info("no index snapshot yet, index will be created on first ingest")
	default:
		return nil, err
	}
	s.opened = true
	return s.idx, nil
}

// Ingest chunks, embeds and indexes one document. The new vectors become
// searchable only after the snapshot holding them has been saved; when the
// save fails the index and the document store are left as they were.
func (s *Service) Ingest(ctx context.Context, name, text string) (IngestResult, error) {
	chunks, err := s.deps.Chunker.Chunk(text)
	if err != nil {
		return IngestResult{}, fmt.Errorf("chunk %s: %w", name, err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	idx, err := s.index(ctx)
	if err != nil {
		return IngestResult{}, err
	}
	want := s.deps.Embedder.Dimension()
	if idx != nil {
		want = idx.Dim()
	}
	vecs, dim, err := embedding.EmbedChecked(ctx, s.deps.Embedder, texts, want)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embed %s: %w", name, err)
	}

	doc := domain.Document{
		ID:         uuid.NewString(),
		Name:       name,
		Text:       chunker.Normalize(text),
		Chunks:     len(chunks),
		IngestedAt: time.Now().UTC(),
	}
	metas := make([]domain.Metadata, len(chunks))
	for i, c := range chunks {
		vecs[i] = retriever.Normalize(vecs[i])
		metas[i] = domain.Metadata{DocumentID: doc.ID, ChunkID: c.ChunkID, Start: c.Start, End: c.End}
	}

	// Work on a copy so a failed save leaves both the live index and the
	// snapshot at the previous state.
	var next *vectorstore.Index
	if idx == nil {
		if next, err = vectorstore.New(dim, vectorstore.WithLogger(s.log)); err != nil {
			return IngestResult{}, err
		}
	} else {
		next = idx.Clone()
	}
	if err := next.Add(vecs, metas); err != nil {
		return IngestResult{}, err
	}
	// The text must be resolvable before its vectors become searchable.
	if err := s.deps.Documents.Put(ctx, doc); err != nil {
		return IngestResult{}, fmt.Errorf("store document %s: %w", name, err)
	}
	if err := next.Save(ctx, s.deps.Snapshots); err != nil {
		if derr := s.deps.Documents.Delete(context.WithoutCancel(ctx), doc.ID); derr != nil {
			s.log.WithError(derr).WithField("document_id", doc.ID).Warn("failed to roll back document after save error")
		}
		return IngestResult{}, err
	}
	s.mu.Lock()
	s.idx = next
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"document": name, "document_id": doc.ID, "chunks": len(chunks)}).Info("document ingested")
	return IngestResult{DocumentID: doc.ID, Name: name, Chunks: len(chunks)}, nil
}

// IngestFiles expands patterns and ingests every matched file in order. It
// stops at the first failure and returns what was ingested before it.
func (s *Service) IngestFiles(ctx context.Context, patterns []string) ([]IngestResult, error) {
	paths, err := loader.Expand(patterns)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no .pdf, .txt or .md documents found", domain.ErrEmptyInput)
	}
	results := make([]IngestResult, 0, len(paths))
	for _, p := range paths {
		text, err := loader.Load(p)
		if err != nil {
			return results, err
		}
		res, err := s.Ingest(ctx, p, text)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// IngestReader validates and reads an uploaded document, then ingests it.
func (s *Service) IngestReader(ctx context.Context, name string, size int64, r io.Reader) (IngestResult, error) {
	if err := loader.Validate(name, size); err != nil {
		return IngestResult{}, err
	}
	text, err := loader.Read(name, r)
	if err != nil {
		return IngestResult{}, err
	}
	return s.Ingest(ctx, name, text)
}

// Retrieve returns the passages closest to question. topK <= 0 selects the
// configured default.
func (s *Service) Retrieve(ctx context.Context, question string, topK int) ([]domain.Passage, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}
	idx, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	if idx == nil || idx.Len() == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrNoDocuments, domain.ErrEmptyIndex)
	}
	frags, err := retriever.Retrieve(ctx, question, idx, topK, s.deps.Embedder)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"top_k": topK, "returned": len(frags)}).Debug("retrieved fragments")
	return docstore.Resolve(ctx, s.deps.Documents, frags)
}

// Ask retrieves passages for question, assembles a budgeted prompt and
// returns the generator's answer.
func (s *Service) Ask(ctx context.Context, question string, topK int) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	passages, err := s.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	res, err := s.deps.Assembler.Assemble(question, passages, s.opts.TokenBudget, s.deps.Counter)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"generator": s.deps.Generator.Name(), "prompt_length": len(res.Prompt)}).Info("starting generation")
	text, err := s.deps.Generator.Generate(ctx, res.Prompt)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", s.deps.Generator.Name(), err)
	}
	return &Answer{
		Question: question,
		Intent:   res.Intent,
		Prompt:   res.Prompt,
		Text:     text,
		Passages: passages[:res.Packed],
		Dropped:  res.Dropped,
	}, nil
}

// Documents lists ingested documents.
func (s *Service) Documents(ctx context.Context) ([]domain.Document, error) {
	return s.deps.Documents.List(ctx)
}

// Stats reports index and document counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	idx, err := s.index(ctx)
	if err != nil {
		return Stats{}, err
	}
	docs, err := s.deps.Documents.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Documents: len(docs),
		Embedder:  s.deps.Embedder.Name(),
		Generator: s.deps.Generator.Name(),
		Store:     s.deps.Snapshots.Name(),
	}
	if idx != nil {
		st.Vectors = idx.Len()
		st.Dimension = idx.Dim()
	}
	return st, nil
}

// Close releases the document and snapshot stores.
func (s *Service) Close() error {
	var errs []error
	if err := s.deps.Documents.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := s.deps.Snapshots.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
