package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 4, cfg.RAG.TopK)
	assert.Equal(t, 0.2, cfg.InferenceLLM.Temperature)
	assert.Equal(t, "mistralai/mistral-7b-instruct", cfg.InferenceLLM.Model)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.InferenceLLM.BaseURL)
	assert.Equal(t, "OPENROUTER_API_KEY", cfg.InferenceLLM.KeyEnv)
	assert.Equal(t, BackendMemory, cfg.RAG.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_NonExistent(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().RAG, cfg.RAG)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
document:
  path: ./cv.pdf
inference_llm:
  model: openai/gpt-4o-mini
  temperature: 0.5
rag:
  top_k: 2
  subject: Jane Doe
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "./cv.pdf", cfg.Document.Path)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.InferenceLLM.Model)
	assert.Equal(t, 0.5, cfg.InferenceLLM.Temperature)
	assert.Equal(t, 2, cfg.RAG.TopK)
	assert.Equal(t, "Jane Doe", cfg.RAG.Subject)
	// untouched fields keep their defaults
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.InferenceLLM.BaseURL)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "rag: [unclosed")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_ResolvesKeyFromEnv(t *testing.T) {
	t.Setenv("RESUME_RAG_TEST_KEY", "Bearer sk-test")
	path := writeConfig(t, `
inference_llm:
  key_env: RESUME_RAG_TEST_KEY
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.InferenceLLM.Key)
}

func TestLoadConfig_ExplicitKeyWins(t *testing.T) {
	t.Setenv("RESUME_RAG_TEST_KEY", "from-env")
	path := writeConfig(t, `
inference_llm:
  key: from-file
  key_env: RESUME_RAG_TEST_KEY
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.InferenceLLM.Key)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "temperature upper bound", mutate: func(c *Config) { c.InferenceLLM.Temperature = 1 }},
		{name: "temperature too high", mutate: func(c *Config) { c.InferenceLLM.Temperature = 1.5 }, wantErr: true},
		{name: "temperature negative", mutate: func(c *Config) { c.InferenceLLM.Temperature = -0.1 }, wantErr: true},
		{name: "top_k zero", mutate: func(c *Config) { c.RAG.TopK = 0 }, wantErr: true},
		{name: "missing model", mutate: func(c *Config) { c.InferenceLLM.Model = "" }, wantErr: true},
		{name: "bad base url", mutate: func(c *Config) { c.InferenceLLM.BaseURL = "not a url" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.EmbedLLM.Provider = "huggingface" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.RAG.Backend = "qdrant" }, wantErr: true},
		{name: "pgvector without dsn", mutate: func(c *Config) { c.RAG.Backend = BackendPgvector }, wantErr: true},
		{name: "pgvector with dsn", mutate: func(c *Config) {
			c.RAG.Backend = BackendPgvector
			c.Database.DSN = "postgres://localhost:5432/resume"
		}},
		{name: "overlap not smaller than size", mutate: func(c *Config) {
			c.RAG.ChunkSize = 100
			c.RAG.ChunkOverlap = 100
		}, wantErr: true},
		{name: "missing document", mutate: func(c *Config) { c.Document.Path = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPromptTemplate(t *testing.T) {
	cfg := DefaultConfig()
	tmpl, err := cfg.PromptTemplate()
	require.NoError(t, err)
	assert.Empty(t, tmpl)

	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("{context}\n{question}"), 0644))
	cfg.RAG.PromptTemplatePath = path

	tmpl, err = cfg.PromptTemplate()
	require.NoError(t, err)
	assert.Equal(t, "{context}\n{question}", tmpl)

	cfg.RAG.PromptTemplatePath = filepath.Join(t.TempDir(), "missing.txt")
	_, err = cfg.PromptTemplate()
	assert.Error(t, err)
}
