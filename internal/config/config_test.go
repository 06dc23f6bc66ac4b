package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdocs/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "askdocs.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_AppliesDefaults(t *testing.T) {
	p := writeConfig(t, `
chunker:
  size: 200
  overlap: 20
embedder:
  type: openai
  openai:
    model: text-embedding-3-large
generator:
  type: openai
prompt:
  token_budget: 300
  rules:
    - intent: extractive
      keywords: [enumerate]
storage:
  type: sqlite
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Chunker.Size)
	assert.Equal(t, 20, cfg.Chunker.Overlap)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 32, cfg.Embedder.OpenAI.BatchSize)
	require.NotNil(t, cfg.Generator.OpenAI)
	assert.InDelta(t, 0.2, cfg.Generator.OpenAI.Temperature, 1e-6)
	assert.Equal(t, 256, cfg.Generator.OpenAI.MaxTokens)
	assert.Equal(t, 300, cfg.Prompt.TokenBudget)
	assert.Equal(t, []RuleConfig{{Intent: "extractive", Keywords: []string{"enumerate"}}}, cfg.Prompt.Rules)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "storage", cfg.Storage.Dir)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, "tiktoken", cfg.Tokenizer.Type, "openai generator budgets with its own encoding")
	assert.Equal(t, "gpt-4o-mini", cfg.Tokenizer.Model)
}

func TestLoad_TokenizerChoice(t *testing.T) {
	cfg, err := Load(writeConfig(t, "generator:\n  type: extractive\n"))
	require.NoError(t, err)
	assert.Equal(t, "heuristic", cfg.Tokenizer.Type)

	cfg, err = Load(writeConfig(t, "generator:\n  type: openai\n  openai:\n    model: gpt-4\ntokenizer:\n  type: words\n"))
	require.NoError(t, err)
	assert.Equal(t, "words", cfg.Tokenizer.Type)

	cfg, err = Load(writeConfig(t, "generator:\n  type: openai\n  openai:\n    model: gpt-4\n"))
	require.NoError(t, err)
	assert.Equal(t, "tiktoken", cfg.Tokenizer.Type)
	assert.Equal(t, "gpt-4", cfg.Tokenizer.Model)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"overlap too large": "chunker:\n  size: 100\n  overlap: 100\n",
		"negative overlap":  "chunker:\n  size: 100\n  overlap: -1\n",
		"unknown embedder":  "embedder:\n  type: word2vec\n",
		"unknown storage":   "storage:\n  type: faiss\n",
		"negative budget":   "prompt:\n  token_budget: -5\n",
		"bad yaml":          "chunker: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.TopK = 7
	cfg.Prompt.Templates = map[string]string{"qa": "Answer briefly.\n\n"}
	require.NoError(t, Save(p, cfg))

	loaded, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDefault_PrefersWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "askdocs.yaml"), []byte("retrieval:\n  top_k: 9\n"), 0o644))

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "askdocs.yaml", path)
	assert.Equal(t, 9, cfg.Retrieval.TopK)
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".config", "askdocs", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, defaultConfig(), cfg)
}
