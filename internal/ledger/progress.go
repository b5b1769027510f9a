package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

type progressUpdate struct {
	page, total int
}

// ProgressReporter carries page progress from extraction workers to the
// ledger. Report never blocks; a single goroutine owns the ledger writes.
type ProgressReporter struct {
	mu      sync.Mutex
	closed  bool
	updates chan progressUpdate
	done    chan struct{}
}

// StartProgress starts a reporter that records progress on the running step
// named step. Stop must be called once the step is over.
func (l *Ledger) StartProgress(ctx context.Context, executionID, step, label string) *ProgressReporter {
	r := &ProgressReporter{
		updates: make(chan progressUpdate, 16),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		for u := range r.updates {
			details := fmt.Sprintf("%s: processed page %d/%d", label, u.page, u.total)
			if err := l.UpsertStep(ctx, executionID, step, models.StepRunning, details, ""); err != nil {
				l.logger.Warn("Dropping progress update",
					logger.String("execution_id", executionID),
					logger.Int("page", u.page),
					logger.Error(err),
				)
			}
		}
	}()
	return r
}

// Report matches document.ProgressFunc. Updates are dropped when the buffer
// is full or the reporter has stopped.
func (r *ProgressReporter) Report(page, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.updates <- progressUpdate{page: page, total: total}:
	default:
	}
}

// Stop drains pending updates and waits for the writer goroutine.
func (r *ProgressReporter) Stop() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.updates)
	}
	r.mu.Unlock()
	<-r.done
}
