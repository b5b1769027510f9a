package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/internal/app"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	// 初始化日志
	log, err := app.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if !strings.EqualFold(cfg.Queue.Mode, "asynq") {
		log.Error("cmd/worker needs queue.mode=asynq; local mode runs inside the server",
			logger.String("mode", cfg.Queue.Mode))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize", logger.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	// 启动 worker
	w := a.Worker()
	if err := w.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// 优雅关闭
	log.Info("Shutting down worker...")
	w.Stop()
	log.Info("Worker stopped")
}
