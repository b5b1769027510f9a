package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-monitor/api/handlers"
	"github.com/feichai0017/document-monitor/api/routes"
	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/internal/app"
	"github.com/feichai0017/document-monitor/internal/service/document"
	"github.com/feichai0017/document-monitor/internal/service/execution"
	"github.com/feichai0017/document-monitor/internal/service/scheduler"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := app.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", logger.Error(err))
	}
	defer a.Close()

	execService := execution.NewService(a.Store, a.Ledger, a.Queue, log)
	sched := scheduler.New(a.Store, execService.Trigger, cfg.Scheduler.Heartbeat, log)
	docService := document.NewService(a.Store, sched, execService, a.Blobs, log)

	// 本地模式下在进程内消费队列
	if strings.EqualFold(cfg.Queue.Mode, "local") {
		w := a.Worker()
		if err := w.Start(ctx); err != nil {
			log.Fatal("Failed to start worker", logger.Error(err))
		}
		defer w.Stop()
	}

	if cfg.Scheduler.Enabled {
		if err := sched.LoadAll(ctx); err != nil {
			log.Error("Failed to restore schedules", logger.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	h := handlers.NewHandlers(docService, execService, a.Store, sched, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, cfg.Server.AllowOrigins, log.Named("http"))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			cancel()
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
