package worker

import (
	"context"
	"sync"

	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/queue"
)

// LocalWorker drains a LocalQueue with a fixed number of goroutines.
type LocalWorker struct {
	queue    *queue.LocalQueue
	handler  *Handler
	workers  int
	logger   logger.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewLocalWorker(q *queue.LocalQueue, handler *Handler, workers int, log logger.Logger) *LocalWorker {
	if workers <= 0 {
		workers = 1
	}
	return &LocalWorker{queue: q, handler: handler, workers: workers, logger: log.Named("worker")}
}

func (w *LocalWorker) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
	w.logger.Info("Local workers started", logger.Int("workers", w.workers))
	return nil
}

func (w *LocalWorker) loop(ctx context.Context, id int) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-w.queue.Tasks():
			if !ok {
				return
			}
			w.queue.Ack(task)
			// 失败已记录在 ledger 与任务状态里
			_ = w.handler.Handle(ctx, task)
		}
	}
}

// Stop cancels in-flight runs and waits for the goroutines to exit.
func (w *LocalWorker) Stop() error {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		w.logger.Info("Local workers stopped")
	})
	return nil
}
