package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"codesage/internal/models"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	SplitterCode      = "code"
	SplitterLangchain = "langchain"

	DefaultConfigPath = "./codesage.yaml"
)

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Key         string  `yaml:"key"`
	Temperature float64 `yaml:"temperature"`
}

type RAGConfig struct {
	ChunkSize       int      `yaml:"chunk_size"`
	ChunkOverlap    int      `yaml:"chunk_overlap"`
	TopK            int      `yaml:"top_k"`
	Extensions      []string `yaml:"extensions"`
	ExcludeDirs     []string `yaml:"exclude_dirs"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	UseGitignore    bool     `yaml:"use_gitignore"`
	Splitter        string   `yaml:"splitter"`
	BatchSize       int      `yaml:"batch_size"`
	EmbedWorkers    int      `yaml:"embed_workers"`
	CacheSize       int      `yaml:"cache_size"`
}

type Config struct {
	LLM            LLMConfig     `yaml:"llm"`
	EmbedLLM       LLMConfig     `yaml:"embed_llm"`
	RAG            RAGConfig     `yaml:"rag"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderOllama,
			BaseURL:     "http://localhost:11434",
			Model:       "llama3",
			Temperature: 0.2,
		},
		EmbedLLM: LLMConfig{
			Provider: ProviderOllama,
			BaseURL:  "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		RAG: RAGConfig{
			ChunkSize:    1200,
			ChunkOverlap: 150,
			TopK:         6,
			Extensions:   []string{".py", ".js", ".ts", ".java"},
			ExcludeDirs:  []string{"node_modules", ".git", "__pycache__", ".venv", "venv", "dist", "build"},
			Splitter:     SplitterCode,
			BatchSize:    16,
			EmbedWorkers: 1,
			CacheSize:    4096,
		},
		RequestTimeout: 120 * time.Second,
	}
}

// LoadConfig layers the yaml file at path (optional when missing) and the
// environment over the defaults, then validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parse %s: %v", models.ErrInvalidConfig, path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("OLLAMA_BASE_URL"); ok && v != "" {
		c.LLM.BaseURL = v
		c.EmbedLLM.BaseURL = v
	}
	if v, ok := os.LookupEnv("MODEL_NAME"); ok && v != "" {
		c.LLM.Model = v
	}
	if v, ok := os.LookupEnv("EMBEDDING_MODEL"); ok && v != "" {
		c.EmbedLLM.Model = v
	}
	if v, ok := os.LookupEnv("LLM_PROVIDER"); ok && v != "" {
		c.LLM.Provider = v
	}
	if v, ok := os.LookupEnv("EMBEDDING_PROVIDER"); ok && v != "" {
		c.EmbedLLM.Provider = v
	}
	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok && v != "" {
		c.LLM.Key = v
		c.EmbedLLM.Key = v
	}
	if v, ok := os.LookupEnv("LLM_TEMPERATURE"); ok && v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: LLM_TEMPERATURE: %v", models.ErrInvalidConfig, err)
		}
		c.LLM.Temperature = t
	}
	if v, ok := os.LookupEnv("REQUEST_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: REQUEST_TIMEOUT: %v", models.ErrInvalidConfig, err)
		}
		c.RequestTimeout = d
	}
	return nil
}

// normalize lower-cases providers and makes every extension start with a dot
func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.EmbedLLM.Provider = strings.ToLower(strings.TrimSpace(c.EmbedLLM.Provider))
	c.RAG.Splitter = strings.ToLower(strings.TrimSpace(c.RAG.Splitter))
	for i, ext := range c.RAG.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.RAG.Extensions[i] = ext
	}
}

func (c *Config) Validate() error {
	for _, l := range []LLMConfig{c.LLM, c.EmbedLLM} {
		if l.Provider != ProviderOllama && l.Provider != ProviderOpenAI {
			return fmt.Errorf("%w: unknown provider %q", models.ErrInvalidConfig, l.Provider)
		}
		if l.Model == "" {
			return fmt.Errorf("%w: model is required for provider %q", models.ErrInvalidConfig, l.Provider)
		}
	}
	if c.LLM.Temperature < 0 {
		return fmt.Errorf("%w: temperature must be >= 0", models.ErrInvalidConfig)
	}

	r := c.RAG
	switch {
	case r.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk_size must be > 0", models.ErrInvalidConfig)
	case r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize:
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", models.ErrInvalidConfig)
	case r.TopK <= 0:
		return fmt.Errorf("%w: top_k must be > 0", models.ErrInvalidConfig)
	case len(r.Extensions) == 0:
		return fmt.Errorf("%w: at least one extension is required", models.ErrInvalidConfig)
	case r.Splitter != SplitterCode && r.Splitter != SplitterLangchain:
		return fmt.Errorf("%w: unknown splitter %q", models.ErrInvalidConfig, r.Splitter)
	case r.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be > 0", models.ErrInvalidConfig)
	case r.EmbedWorkers <= 0:
		return fmt.Errorf("%w: embed_workers must be > 0", models.ErrInvalidConfig)
	case r.CacheSize < 0:
		return fmt.Errorf("%w: cache_size must be >= 0", models.ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be > 0", models.ErrInvalidConfig)
	}
	return nil
}
