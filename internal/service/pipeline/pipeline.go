package pipeline

import (
	"context"

	"github.com/feichai0017/document-monitor/internal/agent/document"
	"github.com/feichai0017/document-monitor/internal/fetcher"
	"github.com/feichai0017/document-monitor/internal/models"
)

// Runner executes one Execution over its target documents.
type Runner interface {
	// Run processes documentIDs (all documents when empty) sequentially and
	// records progress in the execution ledger. It returns an error only when
	// the ledger itself could not be written.
	Run(ctx context.Context, executionID string, documentIDs []string) error
}

// Store is the persistence the pipeline reads and writes.
type Store interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, skip, limit int) ([]*models.Document, error)
	LatestVersion(ctx context.Context, documentID string) (*models.Version, error)
	CreateVersion(ctx context.Context, v *models.Version) error
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error)
}

type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string, progress document.ProgressFunc) ([]models.Segment, error)
}
