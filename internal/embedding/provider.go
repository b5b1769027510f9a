package embedding

import (
	"context"
	"strings"

	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// Provider turns a list of texts into one vector per text. Implementations
// return either every vector or an error, never a partial result.
type Provider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// New picks the backend named by cfg.Provider. Remote backends without an
// API key fall back to the local encoder.
func New(ctx context.Context, cfg config.EmbeddingConfig, log logger.Logger) (Provider, error) {
	log = log.Named("embedding")
	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderGoogle:
		if cfg.GoogleAPIKey == "" {
			log.Warn("GOOGLE_API_KEY not set, using local embeddings")
			return NewLocalEncoder(dim), nil
		}
		g, err := NewGoogleEmbedder(ctx, cfg.GoogleAPIKey, cfg.Model, dim, log)
		if err != nil {
			return nil, err
		}
		return NewBatcher(ProviderGoogle, g.EmbedBatch, cfg, log).WithRetry(isRateLimited), nil

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			log.Warn("OPENAI_API_KEY not set, using local embeddings")
			return NewLocalEncoder(dim), nil
		}
		o := NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, dim, log)
		return NewBatcher(ProviderOpenAI, o.EmbedBatch, cfg, log), nil

	case ProviderOllama:
		o := NewOllamaClient(cfg.OllamaEndpoint, cfg.Model)
		return NewBatcher(ProviderOllama, o.EmbedBatch, cfg, log), nil

	default:
		return NewLocalEncoder(dim), nil
	}
}
