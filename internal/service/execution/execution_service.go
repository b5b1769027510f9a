package execution

import (
	"context"

	"github.com/feichai0017/document-monitor/internal/models"
)

// DefaultListLimit applies when List is called without a limit.
const DefaultListLimit = 20

// ExecutionService starts pipeline runs and answers queries about them.
type ExecutionService interface {
	Trigger(ctx context.Context, documentIDs []string) (string, error)
	Get(ctx context.Context, id string) (*models.Execution, error)
	List(ctx context.Context, skip, limit int) ([]*models.Execution, error)
	Targets(ctx context.Context, id string) ([]*models.Document, error)
}
