package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "./configs/config.yaml"

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendMemory   = "memory"
	BackendPgvector = "pgvector"
)

type Config struct {
	Document     DocumentConfig `yaml:"document"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	RAG          RAGConfig      `yaml:"rag"`
	Server       ServerConfig   `yaml:"server"`
	Database     DatabaseConfig `yaml:"database"`
	Logging      LoggingConfig  `yaml:"logging"`
}

type DocumentConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// LLMConfig describes one hosted or local model endpoint. It is used for both the
// embedding model and the chat-completion model.
type LLMConfig struct {
	Provider          string  `yaml:"provider" validate:"oneof=openai ollama"`
	Model             string  `yaml:"model" validate:"required"`
	BaseURL           string  `yaml:"base_url" validate:"required,url"`
	Key               string  `yaml:"key"`
	KeyEnv            string  `yaml:"key_env"`
	Temperature       float64 `yaml:"temperature" validate:"gte=0,lte=1"`
	MaxRetries        int     `yaml:"max_retries" validate:"gte=0,lte=5"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	TimeoutSecs       int     `yaml:"timeout_secs" validate:"gte=0"`
	BatchSize         int     `yaml:"batch_size" validate:"gte=0"`
}

type RAGConfig struct {
	TopK               int    `yaml:"top_k" validate:"gte=1"`
	ChunkSize          int    `yaml:"chunk_size" validate:"gte=0"`
	ChunkOverlap       int    `yaml:"chunk_overlap" validate:"gte=0"`
	Backend            string `yaml:"backend" validate:"oneof=memory pgvector"`
	CollectionName     string `yaml:"collection_name" validate:"required"`
	Subject            string `yaml:"subject"`
	PromptTemplatePath string `yaml:"prompt_template_path"`
	EmbeddingCachePath string `yaml:"embedding_cache_path"`
}

type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port" validate:"gte=1,lte=65535"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs" validate:"gte=0"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
}

// DefaultConfig mirrors the reference deployment: local all-MiniLM embeddings through
// Ollama, Mistral 7B through OpenRouter, k=4.
func DefaultConfig() *Config {
	return &Config{
		Document: DocumentConfig{
			Path: "resume.pdf",
		},
		EmbedLLM: LLMConfig{
			Provider:    ProviderOllama,
			Model:       "all-minilm",
			BaseURL:     "http://localhost:11434",
			TimeoutSecs: 60,
			BatchSize:   16,
		},
		InferenceLLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "mistralai/mistral-7b-instruct",
			BaseURL:     "https://openrouter.ai/api/v1",
			KeyEnv:      "OPENROUTER_API_KEY",
			Temperature: 0.2,
			TimeoutSecs: 60,
		},
		RAG: RAGConfig{
			TopK:           4,
			Backend:        BackendMemory,
			CollectionName: "resume",
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			RequestTimeoutSecs: 90,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults. A missing file yields the
// defaults. API keys are resolved from the environment and the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.ResolveKeys()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveKeys fills empty keys from the environment variables named by key_env.
func (c *Config) ResolveKeys() {
	for _, llm := range []*LLMConfig{&c.EmbedLLM, &c.InferenceLLM} {
		if llm.Key == "" && llm.KeyEnv != "" {
			llm.Key = os.Getenv(llm.KeyEnv)
		}
		llm.Key = strings.TrimPrefix(llm.Key, "Bearer ")
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.RAG.Backend == BackendPgvector && c.Database.DSN == "" {
		return fmt.Errorf("invalid config: database.dsn is required for the %s backend", BackendPgvector)
	}
	if c.RAG.ChunkSize > 0 && c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("invalid config: rag.chunk_overlap (%d) must be smaller than rag.chunk_size (%d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	return nil
}

// PromptTemplate returns the template file content when one is configured, otherwise "".
func (c *Config) PromptTemplate() (string, error) {
	if c.RAG.PromptTemplatePath == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.RAG.PromptTemplatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template: %w", err)
	}
	return string(data), nil
}
