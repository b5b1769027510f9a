package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/queue"
)

// AsynqWorker consumes pipeline tasks from redis.
type AsynqWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	handler  *Handler
	logger   logger.Logger
	stopOnce sync.Once
}

func NewAsynqWorker(cfg config.QueueConfig, handler *Handler, log logger.Logger) *AsynqWorker {
	server := asynq.NewServer(
		queue.RedisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Workers,
			Queues:      map[string]int{queue.QueueName: 1},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
			IsFailure: func(err error) bool {
				return !errors.Is(err, ErrInvalidTask)
			},
		},
	)

	w := &AsynqWorker{
		server:  server,
		mux:     asynq.NewServeMux(),
		handler: handler,
		logger:  log.Named("worker"),
	}

	// 注册任务处理器
	w.mux.HandleFunc(queue.TaskTypePipelineRun, w.handlePipelineRun)
	return w
}

func (w *AsynqWorker) handlePipelineRun(ctx context.Context, t *asynq.Task) error {
	w.logger.Debug("Received task", logger.String("payload", string(t.Payload())))

	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())))
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	rw := t.ResultWriter()
	writeResult := func(status string, taskErr error) {
		if rw == nil {
			return
		}
		body, err := encodeResult(status, taskErr)
		if err != nil {
			w.logger.Error("Failed to encode task result", logger.Error(err))
			return
		}
		if _, err := rw.Write(body); err != nil {
			w.logger.Error("Failed to write task result", logger.Error(err))
		}
	}

	writeResult(queue.TaskRunning, nil)
	err := w.handler.Handle(ctx, &task)
	switch {
	case errors.Is(err, ErrInvalidTask):
		writeResult(queue.TaskFailed, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil:
		writeResult(queue.TaskFailed, err)
		return err
	}
	writeResult(queue.TaskCompleted, nil)
	return nil
}

// taskResult is stored as the asynq task result.
type taskResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func encodeResult(status string, err error) ([]byte, error) {
	res := taskResult{Status: status}
	if err != nil {
		res.Error = err.Error()
	}
	return json.Marshal(res)
}

func (w *AsynqWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	w.logger.Info("Worker started", logger.String("queue", queue.QueueName))

	go func() {
		<-ctx.Done()
		_ = w.Stop()
	}()
	return nil
}

func (w *AsynqWorker) Stop() error {
	w.stopOnce.Do(func() {
		w.server.Shutdown()
		w.logger.Info("Worker stopped")
	})
	return nil
}
