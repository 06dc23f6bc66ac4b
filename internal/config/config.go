package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"askdocs/internal/domain"
)

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// HashingEmbedderConfig configures the local feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int  `yaml:"dimension"`
	Bigrams   bool `yaml:"bigrams"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	MaxRetries  int    `yaml:"max_retries"`
	Dimension   int    `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
}

// ExtractiveGeneratorConfig configures the offline sentence-extracting generator.
type ExtractiveGeneratorConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// OpenAIGeneratorConfig holds configuration for the chat completion generator.
type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type       string                     `yaml:"type"`
	Extractive *ExtractiveGeneratorConfig `yaml:"extractive,omitempty"`
	OpenAI     *OpenAIGeneratorConfig     `yaml:"openai,omitempty"`
}

// TokenizerConfig selects the token counter used for the prompt budget.
type TokenizerConfig struct {
	Type          string `yaml:"type"`
	CharsPerToken int    `yaml:"chars_per_token"`
	// Model picks the tiktoken encoding; defaults to the openai generator model.
	Model string `yaml:"model,omitempty"`
}

// RuleConfig is one intent classification rule.
type RuleConfig struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
}

// PromptConfig configures intent rules, templates and the context budget.
type PromptConfig struct {
	TokenBudget int `yaml:"token_budget"`
	// Rules replace the built-in intent rules when non-empty.
	Rules     []RuleConfig      `yaml:"rules,omitempty"`
	Templates map[string]string `yaml:"templates,omitempty"`
}

// RetrievalConfig configures search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// StorageConfig selects where the index snapshot and documents live.
type StorageConfig struct {
	Type      string `yaml:"type"`
	Dir       string `yaml:"dir"`
	Documents string `yaml:"documents"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr             string `yaml:"addr"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs"`
}

// WatchConfig configures the directory watcher.
type WatchConfig struct {
	DebounceMillis int `yaml:"debounce_millis"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./askdocs.yaml first, then ~/.config/askdocs/config.yaml.
// If neither exists, it writes defaults to ~/.config/askdocs/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "askdocs.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports settings no component could start with.
func (c *AppConfig) Validate() error {
	switch {
	case c.Chunker.Size <= 0:
		return fmt.Errorf("%w: chunker.size must be positive, got %d", domain.ErrInvalidConfig, c.Chunker.Size)
	case c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size:
		return fmt.Errorf("%w: chunker.overlap must be in [0, %d), got %d", domain.ErrInvalidConfig, c.Chunker.Size, c.Chunker.Overlap)
	case c.Prompt.TokenBudget <= 0:
		return fmt.Errorf("%w: prompt.token_budget must be positive, got %d", domain.ErrInvalidConfig, c.Prompt.TokenBudget)
	case c.Retrieval.TopK <= 0:
		return fmt.Errorf("%w: retrieval.top_k must be positive, got %d", domain.ErrInvalidConfig, c.Retrieval.TopK)
	}
	if err := oneOf("embedder.type", c.Embedder.Type, "hashing", "openai"); err != nil {
		return err
	}
	if err := oneOf("generator.type", c.Generator.Type, "extractive", "openai"); err != nil {
		return err
	}
	if err := oneOf("tokenizer.type", c.Tokenizer.Type, "heuristic", "words", "tiktoken"); err != nil {
		return err
	}
	if err := oneOf("storage.type", c.Storage.Type, "file", "bolt", "sqlite"); err != nil {
		return err
	}
	return oneOf("storage.documents", c.Storage.Documents, "bolt", "memory")
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown %s %q (want one of %v)", domain.ErrInvalidConfig, key, value, allowed)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "askdocs", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Chunker:   ChunkerConfig{Size: 500, Overlap: 100},
		Embedder:  EmbedderConfig{Type: "hashing", Hashing: &HashingEmbedderConfig{Dimension: 512, Bigrams: true}},
		Generator: GeneratorConfig{Type: "extractive", Extractive: &ExtractiveGeneratorConfig{MaxSentences: 3}},
		Tokenizer: TokenizerConfig{Type: "heuristic", CharsPerToken: 4},
		Prompt:    PromptConfig{TokenBudget: 1024},
		Retrieval: RetrievalConfig{TopK: 4},
		Storage:   StorageConfig{Type: "file", Dir: "storage", Documents: "bolt"},
		Server:    ServerConfig{Addr: ":8000", ReadTimeoutSecs: 30, WriteTimeoutSecs: 300},
		Watch:     WatchConfig{DebounceMillis: 500},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = def.Chunker.Size
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = def.Chunker.Overlap
		}
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Type == "hashing" {
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = def.Embedder.Hashing
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = def.Embedder.Hashing.Dimension
		}
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
		if cfg.Embedder.OpenAI.Concurrency == 0 {
			cfg.Embedder.OpenAI.Concurrency = 4
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 3
		}
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = def.Generator.Type
	}
	if cfg.Generator.Type == "extractive" && cfg.Generator.Extractive == nil {
		cfg.Generator.Extractive = def.Generator.Extractive
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIGeneratorConfig{Temperature: 0.2}
		}
		if cfg.Generator.OpenAI.BaseURL == "" {
			cfg.Generator.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Generator.OpenAI.APIKeyEnv == "" {
			cfg.Generator.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.OpenAI.Model == "" {
			cfg.Generator.OpenAI.Model = "gpt-4o-mini"
		}
		if cfg.Generator.OpenAI.MaxTokens == 0 {
			cfg.Generator.OpenAI.MaxTokens = 256
		}
		if cfg.Generator.OpenAI.TimeoutSecs == 0 {
			cfg.Generator.OpenAI.TimeoutSecs = 60
		}
	}
	if cfg.Tokenizer.Type == "" {
		cfg.Tokenizer.Type = def.Tokenizer.Type
		if cfg.Generator.Type == "openai" {
			cfg.Tokenizer.Type = "tiktoken"
		}
	}
	if cfg.Tokenizer.Type == "tiktoken" && cfg.Tokenizer.Model == "" && cfg.Generator.OpenAI != nil {
		cfg.Tokenizer.Model = cfg.Generator.OpenAI.Model
	}
	if cfg.Tokenizer.CharsPerToken == 0 {
		cfg.Tokenizer.CharsPerToken = def.Tokenizer.CharsPerToken
	}
	if cfg.Prompt.TokenBudget == 0 {
		cfg.Prompt.TokenBudget = def.Prompt.TokenBudget
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = def.Storage.Type
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = def.Storage.Dir
	}
	if cfg.Storage.Documents == "" {
		cfg.Storage.Documents = def.Storage.Documents
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.ReadTimeoutSecs == 0 {
		cfg.Server.ReadTimeoutSecs = def.Server.ReadTimeoutSecs
	}
	if cfg.Server.WriteTimeoutSecs == 0 {
		cfg.Server.WriteTimeoutSecs = def.Server.WriteTimeoutSecs
	}
	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = def.Watch.DebounceMillis
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
}
