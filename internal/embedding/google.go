package embedding

import (
	"context"
	"strings"

	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

const defaultGoogleModel = "text-embedding-004"

// GoogleEmbedder calls the Gemini embedding API.
type GoogleEmbedder struct {
	client    *genai.Client
	model     string
	dimension int32
	logger    logger.Logger
}

func NewGoogleEmbedder(ctx context.Context, apiKey, model string, dimension int, log logger.Logger) (*GoogleEmbedder, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create google embedding client")
	}
	if model == "" {
		model = defaultGoogleModel
	}
	log.Info("Google embedding client created", logger.String("model", model))
	return &GoogleEmbedder{client: c, model: model, dimension: int32(dimension), logger: log}, nil
}

func (g *GoogleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := g.client.Models.EmbedContent(ctx, g.model, getContent(texts), &genai.EmbedContentConfig{
		OutputDimensionality: &g.dimension,
		TaskType:             "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("empty response from google embeddings")
	}

	out := make([][]float32, 0, len(res.Embeddings))
	for _, e := range res.Embeddings {
		if e == nil {
			return nil, errors.New("missing embedding in google response")
		}
		out = append(out, e.Values)
	}
	return out, nil
}

func getContent(chunks []string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(chunks))
	for _, chunk := range chunks {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: chunk}},
		})
	}
	return contents
}

// isRateLimited reports quota errors worth retrying.
func isRateLimited(err error) bool {
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "429")
}
