package config

import "time"

// EmbeddingConfig selects the embedding backend. Provider is one of
// local, google, openai or ollama.
type EmbeddingConfig struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	Dimension      int           `yaml:"dimension"`
	BatchSize      int           `yaml:"batch_size"`
	Pace           time.Duration `yaml:"pace"`
	MaxRetries     int           `yaml:"max_retries"`
	GoogleAPIKey   string        `yaml:"google_api_key"`
	OpenAIAPIKey   string        `yaml:"openai_api_key"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	OllamaEndpoint string        `yaml:"ollama_endpoint"`
}

func (c *EmbeddingConfig) applyEnv() {
	envString("EMBEDDING_PROVIDER", &c.Provider)
	envString("EMBEDDING_MODEL", &c.Model)
	envInt("EMBEDDING_DIMENSION", &c.Dimension)
	envInt("EMBEDDING_BATCH_SIZE", &c.BatchSize)
	envDuration("EMBEDDING_PACE", &c.Pace)
	envInt("EMBEDDING_MAX_RETRIES", &c.MaxRetries)
	envString("GOOGLE_API_KEY", &c.GoogleAPIKey)
	envString("OPENAI_API_KEY", &c.OpenAIAPIKey)
	envString("OPENAI_BASE_URL", &c.OpenAIBaseURL)
	envString("OLLAMA_ENDPOINT", &c.OllamaEndpoint)
}
