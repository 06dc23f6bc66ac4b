package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"askdocs/internal/chunker"
	"askdocs/internal/config"
	"askdocs/internal/docstore"
	"askdocs/internal/domain"
	"askdocs/internal/embedding/hashing"
	embedopenai "askdocs/internal/embedding/openai"
	"askdocs/internal/generator/extractive"
	genopenai "askdocs/internal/generator/openai"
	"askdocs/internal/prompt"
	"askdocs/internal/tokenizer"
	"askdocs/internal/vectorstore"
	"askdocs/internal/vectorstore/bolt"
	"askdocs/internal/vectorstore/file"
	"askdocs/internal/vectorstore/sqlite"
)

// Snapshot and document file names inside the storage directory.
const (
	IndexDir      = "index"
	BoltIndexFile = "index.db"
	SQLiteFile    = "index.sqlite"
	DocumentsFile = "documents.db"
)

// FromConfig assembles a Service from configuration.
func FromConfig(cfg *config.AppConfig, log logrus.FieldLogger) (*Service, error) {
	ch, err := chunker.NewWindowChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}
	emb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	gen, err := NewGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}
	counter, err := tokenizer.New(cfg.Tokenizer.Type, cfg.Tokenizer.CharsPerToken, cfg.Tokenizer.Model)
	if err != nil {
		return nil, err
	}
	asm, err := NewAssembler(cfg.Prompt, log)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return nil, err
	}
	snaps, err := NewSnapshotStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	docs, err := NewDocumentStore(cfg.Storage)
	if err != nil {
		if c, ok := snaps.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}

	return New(Deps{
		Chunker:   ch,
		Embedder:  emb,
		Generator: gen,
		Counter:   counter,
		Assembler: asm,
		Documents: docs,
		Snapshots: snaps,
		Logger:    log,
	}, Options{TopK: cfg.Retrieval.TopK, TokenBudget: cfg.Prompt.TokenBudget})
}

// NewEmbedder builds the configured embedder.
func NewEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		var opts []hashing.Option
		dim := 0
		if cfg.Hashing != nil {
			dim = cfg.Hashing.Dimension
			if cfg.Hashing.Bigrams {
				opts = append(opts, hashing.WithBigrams())
			}
		}
		return hashing.NewEmbedder(dim, opts...), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrInvalidConfig)
		}
		c, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize:   cfg.OpenAI.BatchSize,
			Concurrency: cfg.OpenAI.Concurrency,
			MaxRetries:  cfg.OpenAI.MaxRetries,
			Dimension:   cfg.OpenAI.Dimension,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder: %s", domain.ErrInvalidConfig, cfg.Type)
	}
}

// NewGenerator builds the configured generator.
func NewGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "extractive", "":
		n := 0
		if cfg.Extractive != nil {
			n = cfg.Extractive.MaxSentences
		}
		return extractive.New(n), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai generator config missing", domain.ErrInvalidConfig)
		}
		c, err := genopenai.NewClient(genopenai.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown generator: %s", domain.ErrInvalidConfig, cfg.Type)
	}
}

// NewAssembler builds the prompt assembler from intent rules and templates.
func NewAssembler(cfg config.PromptConfig, log logrus.FieldLogger) (*prompt.Assembler, error) {
	rules := prompt.DefaultRules()
	if len(cfg.Rules) > 0 {
		rules = make([]prompt.Rule, len(cfg.Rules))
		for i, r := range cfg.Rules {
			rules[i] = prompt.Rule{Intent: prompt.Intent(r.Intent), Keywords: r.Keywords}
		}
	}
	cls, err := prompt.NewClassifier(rules)
	if err != nil {
		return nil, err
	}
	templates := make(map[prompt.Intent]string, len(cfg.Templates))
	for k, v := range cfg.Templates {
		in, err := prompt.ParseIntent(k)
		if err != nil {
			return nil, err
		}
		templates[in] = v
	}
	return prompt.NewAssembler(cls, templates, prompt.WithLogger(log))
}

// NewSnapshotStore opens the configured index snapshot store.
func NewSnapshotStore(cfg config.StorageConfig) (vectorstore.SnapshotStore, error) {
	switch cfg.Type {
	case "file", "":
		return file.NewStore(filepath.Join(cfg.Dir, IndexDir)), nil
	case "bolt":
		st, err := bolt.Open(filepath.Join(cfg.Dir, BoltIndexFile))
		if err != nil {
			return nil, fmt.Errorf("open bolt index store: %w", err)
		}
		return st, nil
	case "sqlite":
		st, err := sqlite.Open(filepath.Join(cfg.Dir, SQLiteFile))
		if err != nil {
			return nil, fmt.Errorf("open sqlite index store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage type: %s", domain.ErrInvalidConfig, cfg.Type)
	}
}

// NewDocumentStore opens the configured document store.
func NewDocumentStore(cfg config.StorageConfig) (docstore.Store, error) {
	switch cfg.Documents {
	case "bolt", "":
		st, err := docstore.OpenBolt(filepath.Join(cfg.Dir, DocumentsFile))
		if err != nil {
			return nil, fmt.Errorf("open document store: %w", err)
		}
		return st, nil
	case "memory":
		return docstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown document store: %s", domain.ErrInvalidConfig, cfg.Documents)
	}
}
