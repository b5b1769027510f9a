package document

import (
	"context"

	"github.com/feichai0017/document-monitor/internal/models"
)

// DefaultListLimit applies when List is called without a limit.
const DefaultListLimit = 100

// DocumentService manages monitored document configurations and the
// versions recorded for them.
type DocumentService interface {
	Create(ctx context.Context, cfg models.DocumentConfig) (*DocumentResult, error)
	Update(ctx context.Context, id string, cfg models.DocumentConfig) (*models.Document, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, skip, limit int) ([]*models.Document, error)
	Import(ctx context.Context, configs []models.DocumentConfig) (*ImportResult, error)
	Versions(ctx context.Context, documentID string) ([]*models.Version, error)
	Content(ctx context.Context, versionID string) ([]models.Segment, error)
	KeywordMatches(ctx context.Context, versionID string) (*models.KeywordReport, error)
	Upload(ctx context.Context, filename string, data []byte, contentType string) (*UploadResult, error)
}

// DocumentResult is a Document plus the execution started for it, if any.
type DocumentResult struct {
	*models.Document
	LatestExecutionID string `json:"latest_execution_id,omitempty"`
}

type ImportResult struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
}

type UploadResult struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}
