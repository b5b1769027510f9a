package worker

import (
	"context"
	"time"

	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/queue"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, executionID string, documentIDs []string) error
}

// StatusStore records the lifecycle of a queued task.
type StatusStore interface {
	SaveFinalStatus(ctx context.Context, status *queue.TaskStatus) error
}

// ErrInvalidTask is a task that can never succeed, so it is not retried.
var ErrInvalidTask = errors.New("invalid task")

// Handler runs pipeline tasks regardless of which queue delivered them.
type Handler struct {
	runner   Runner
	statuses StatusStore
	logger   logger.Logger
}

func NewHandler(runner Runner, statuses StatusStore, log logger.Logger) *Handler {
	return &Handler{runner: runner, statuses: statuses, logger: log}
}

func (h *Handler) Handle(ctx context.Context, task *queue.Task) error {
	if task == nil || task.Type != queue.TaskTypePipelineRun || task.Payload.ExecutionID == "" {
		h.logger.Error("Invalid task data", logger.Any("task", task))
		return errors.Mark(errors.New("invalid task data: missing execution id"), ErrInvalidTask)
	}

	execID := task.Payload.ExecutionID
	h.logger.Info("Processing pipeline task",
		logger.String("taskId", task.ID),
		logger.String("execution_id", execID),
		logger.Int("documents", len(task.Payload.DocumentIDs)))

	status := &queue.TaskStatus{TaskID: task.ID, Status: queue.TaskRunning, StartedAt: time.Now().UTC()}
	h.saveStatus(ctx, status)

	err := h.runner.Run(ctx, execID, task.Payload.DocumentIDs)
	status.FinishedAt = time.Now().UTC()
	if err != nil {
		status.Status = queue.TaskFailed
		status.Error = err.Error()
		h.logger.Error("Pipeline task failed", logger.String("execution_id", execID), logger.Error(err))
	} else {
		status.Status = queue.TaskCompleted
	}
	h.saveStatus(context.WithoutCancel(ctx), status)
	return err
}

func (h *Handler) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if h.statuses == nil {
		return
	}
	if err := h.statuses.SaveFinalStatus(ctx, status); err != nil {
		h.logger.Warn("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.Error(err))
	}
}
