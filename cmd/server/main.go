package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/docformat/api/handlers"
	"github.com/feichai0017/docformat/api/routes"
	"github.com/feichai0017/docformat/config"
	"github.com/feichai0017/docformat/internal/agent/assistant"
	"github.com/feichai0017/docformat/internal/service/format"
	"github.com/feichai0017/docformat/pkg/logger"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(logger.WithConfig(cfg.Log))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	// init format service
	rt, err := format.GetService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to get format service", logger.Error(err))
	}
	defer rt.Close()

	presets, err := config.LoadPresets(cfg.Format.PresetsPath)
	if err != nil {
		log.Fatal("Failed to load presets", logger.Error(err))
	}

	chat := assistant.NewService(assistant.NewClient(assistant.ClientConfigFrom(cfg.Assistant)), cfg.Assistant.Fallback, log)

	// init handlers
	h := handlers.NewHandlers(rt.Service, chat, handlers.Options{
		Presets:     presets,
		Defaults:    cfg.Format.Profile,
		MaxFileSize: cfg.Format.MaxFileSize,
		Checks: map[string]handlers.Check{
			"redis": rt.Queue.Ping,
		},
	}, log)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 32 << 20
	routes.SetupRoutes(r, h, cfg.Server.AllowOrigins, log)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	// periodic cleanup of expired jobs
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if err := rt.Service.CleanupJobs(cleanupCtx); err != nil {
					log.Error("Cleanup failed", logger.Error(err))
				}
			}
		}
	}()

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
