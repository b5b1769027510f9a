package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/feichai0017/document-monitor/internal/metrics"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// ErrAlreadyFinished is returned by MarkRunning for a terminal execution.
var ErrAlreadyFinished = errors.New("execution already finished")

// ExecutionStore is the persistence the ledger needs. UpdateExecution must
// run fn under an exclusive lock on the execution row.
type ExecutionStore interface {
	UpdateExecution(ctx context.Context, id string, fn func(*models.Execution) error) (*models.Execution, error)
}

// Ledger records step progress for executions. Every write is its own
// transaction; the mutex keeps writes from one process in order.
type Ledger struct {
	mu     sync.Mutex
	store  ExecutionStore
	now    func() time.Time
	logger logger.Logger
}

func New(store ExecutionStore, log logger.Logger) *Ledger {
	return &Ledger{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.Named("ledger"),
	}
}

// UpsertStep creates or updates the step called name. start_time is set the
// first time the step runs and end_time the first time it terminates. An
// empty details keeps the previous details; a non-empty logLine is appended
// to the execution logs.
func (l *Ledger) UpsertStep(ctx context.Context, executionID, name string, status models.StepStatus, details, logLine string) error {
	if !status.Valid() {
		return errors.Invalidf("invalid step status %q", status)
	}

	var observed *models.Step
	err := l.update(ctx, executionID, func(e *models.Execution) error {
		now := l.now()

		// 重新构造切片，避免与调用方共享底层数组
		steps := make([]models.Step, len(e.Steps), len(e.Steps)+1)
		copy(steps, e.Steps)

		idx := -1
		for i := range steps {
			if steps[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			steps = append(steps, models.Step{Name: name})
			idx = len(steps) - 1
		}

		step := &steps[idx]
		step.Status = status
		if details != "" {
			step.Details = details
		}
		if status == models.StepRunning && step.StartTime == nil {
			step.StartTime = timePtr(now)
		}
		if status.Terminal() && step.EndTime == nil {
			step.EndTime = timePtr(now)
			s := *step
			observed = &s
		}

		e.Steps = steps
		if logLine != "" {
			e.Logs += formatLogLine(now, logLine)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if observed != nil && observed.StartTime != nil {
		metrics.ObserveStep(observed.Name, string(observed.Status), observed.EndTime.Sub(*observed.StartTime))
	}
	return nil
}

// MarkRunning moves a pending execution to running.
func (l *Ledger) MarkRunning(ctx context.Context, executionID, logLine string) error {
	return l.update(ctx, executionID, func(e *models.Execution) error {
		if e.Status.Terminal() {
			return errors.Mark(errors.Newf("execution %s already %s", executionID, e.Status), ErrAlreadyFinished)
		}
		e.Status = models.StatusRunning
		if logLine != "" {
			e.Logs += formatLogLine(l.now(), logLine)
		}
		return nil
	})
}

// Finish sets the terminal status and end_time.
func (l *Ledger) Finish(ctx context.Context, executionID string, status models.ExecutionStatus, logLine string) error {
	if !status.Terminal() {
		return errors.Invalidf("finish requires a terminal status, got %q", status)
	}
	err := l.update(ctx, executionID, func(e *models.Execution) error {
		now := l.now()
		e.Status = status
		if e.EndTime == nil {
			e.EndTime = timePtr(now)
		}
		if logLine != "" {
			e.Logs += formatLogLine(now, logLine)
		}
		return nil
	})
	if err == nil {
		metrics.ExecutionFinished(string(status))
	}
	return err
}

func (l *Ledger) AppendLog(ctx context.Context, executionID, line string) error {
	return l.update(ctx, executionID, func(e *models.Execution) error {
		e.Logs += formatLogLine(l.now(), line)
		return nil
	})
}

func (l *Ledger) update(ctx context.Context, executionID string, fn func(*models.Execution) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.store.UpdateExecution(ctx, executionID, fn); err != nil {
		l.logger.Error("Ledger write failed",
			logger.String("execution_id", executionID),
			logger.Error(err),
		)
		return errors.Wrapf(err, "ledger update of execution %s", executionID)
	}
	return nil
}

func formatLogLine(t time.Time, line string) string {
	return fmt.Sprintf("[%s] %s\n", t.Format("2006-01-02 15:04:05"), line)
}

func timePtr(t time.Time) *time.Time { return &t }
