// Package app wires the configured components shared by cmd/server and
// cmd/worker.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/internal/agent"
	"github.com/feichai0017/document-monitor/internal/embedding"
	"github.com/feichai0017/document-monitor/internal/fetcher"
	"github.com/feichai0017/document-monitor/internal/ledger"
	"github.com/feichai0017/document-monitor/internal/service/pipeline"
	"github.com/feichai0017/document-monitor/internal/store"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/queue"
	"github.com/feichai0017/document-monitor/pkg/storage"
	"github.com/feichai0017/document-monitor/pkg/worker"
)

// App holds the long-lived pipeline components.
type App struct {
	Config    *config.Config
	Store     *store.Store
	Blobs     storage.Storage
	Ledger    *ledger.Ledger
	Extractor *agent.Extractor
	Pipeline  *pipeline.Orchestrator
	Queue     queue.Queue
	Handler   *worker.Handler

	logger logger.Logger
}

// NewLogger builds the process logger from config.
func NewLogger(cfg config.LoggerConfig) (logger.Logger, error) {
	return logger.NewLogger(
		logger.WithLevel(cfg.Level),
		logger.WithEncoding(cfg.Encoding),
		logger.WithOutputPaths(cfg.OutputPaths),
		logger.WithErrorPaths(cfg.ErrorPaths),
	)
}

// New opens the database, storage backend and queue and assembles the
// pipeline on top of them.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	db, err := store.OpenWithMigrations(cfg.Database.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	st := store.New(db, log)

	blobs, err := storage.NewStorage(ctx, cfg.Storage, log)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.New(ctx, cfg.Embedding, log)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}

	a := &App{
		Config:    cfg,
		Store:     st,
		Blobs:     blobs,
		Ledger:    ledger.New(st, log),
		Extractor: agent.NewExtractor(ctx, cfg.Extract, log),
		logger:    log,
	}
	a.Pipeline = pipeline.NewOrchestrator(
		st,
		a.Ledger,
		fetcher.New(cfg.Fetch, blobs, log),
		a.Extractor,
		blobs,
		embedder,
		pipeline.NewPool(cfg.Extract.Workers),
		log,
	)

	switch strings.ToLower(cfg.Queue.Mode) {
	case "asynq":
		q := queue.NewAsynqQueue(cfg.Queue, log)
		if err := q.Ping(ctx); err != nil {
			log.Warn("Redis not reachable yet", logger.String("addr", cfg.Queue.RedisAddr), logger.Error(err))
		}
		a.Queue = q
	default:
		a.Queue = queue.NewLocalQueue(cfg.Queue.Buffer)
	}
	a.Handler = worker.NewHandler(a.Pipeline, a.Queue, log.Named("worker"))

	log.Info("Components initialized",
		logger.String("storage", cfg.Storage.Type),
		logger.String("queue", cfg.Queue.Mode),
		logger.String("embedding", embedder.Name()))
	return a, nil
}

// Worker returns the consumer matching the queue mode.
func (a *App) Worker() worker.Worker {
	if lq, ok := a.Queue.(*queue.LocalQueue); ok {
		return worker.NewLocalWorker(lq, a.Handler, a.Config.Queue.Workers, a.logger)
	}
	return worker.NewAsynqWorker(a.Config.Queue, a.Handler, a.logger)
}

func (a *App) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{a.Queue, a.Extractor, a.Store} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
