package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/queue"
)

// Store is the persistence the service needs.
type Store interface {
	CreateExecution(ctx context.Context, exec *models.Execution) error
	GetExecution(ctx context.Context, id string) (*models.Execution, error)
	ListExecutions(ctx context.Context, skip, limit int) ([]*models.Execution, error)
	ExecutionTargets(ctx context.Context, executionID string) ([]*models.Document, error)
}

// Finisher closes an execution that never reached a worker.
type Finisher interface {
	Finish(ctx context.Context, executionID string, status models.ExecutionStatus, logLine string) error
}

type Service struct {
	store  Store
	ledger Finisher
	queue  queue.Queue
	logger logger.Logger
}

var _ ExecutionService = (*Service)(nil)

func NewService(store Store, ledger Finisher, q queue.Queue, log logger.Logger) *Service {
	return &Service{store: store, ledger: ledger, queue: q, logger: log.Named("execution")}
}

// Trigger records a pending Execution and hands it to the queue. Empty
// documentIDs targets every Document at run time.
func (s *Service) Trigger(ctx context.Context, documentIDs []string) (string, error) {
	exec := &models.Execution{
		ID:          uuid.NewString(),
		Status:      models.StatusPending,
		StartTime:   time.Now().UTC(),
		Steps:       []models.Step{},
		DocumentIDs: documentIDs,
	}
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		return "", errors.Wrap(err, "create execution")
	}

	if err := s.queue.Enqueue(ctx, queue.NewRunTask(exec.ID, documentIDs)); err != nil {
		s.logger.Error("Failed to enqueue execution",
			logger.String("execution_id", exec.ID),
			logger.Error(err))
		line := fmt.Sprintf("Failed to enqueue execution: %v", err)
		if ferr := s.ledger.Finish(context.WithoutCancel(ctx), exec.ID, models.StatusFailed, line); ferr != nil {
			s.logger.Error("Failed to mark execution failed", logger.String("execution_id", exec.ID), logger.Error(ferr))
		}
		return "", errors.Wrap(err, "enqueue execution")
	}

	s.logger.Info("Execution triggered",
		logger.String("execution_id", exec.ID),
		logger.Int("documents", len(documentIDs)))
	return exec.ID, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Execution, error) {
	return s.store.GetExecution(ctx, id)
}

func (s *Service) List(ctx context.Context, skip, limit int) ([]*models.Execution, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.store.ListExecutions(ctx, skip, limit)
}

// Targets returns the Documents that got a Version in this Execution.
func (s *Service) Targets(ctx context.Context, id string) ([]*models.Document, error) {
	if _, err := s.store.GetExecution(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ExecutionTargets(ctx, id)
}
