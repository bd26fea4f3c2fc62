package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/docformat/config"
	"github.com/feichai0017/docformat/internal/service/format"
	"github.com/feichai0017/docformat/pkg/logger"
	"github.com/feichai0017/docformat/pkg/worker"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}

	// 初始化日志
	log, err := logger.NewLogger(logger.WithConfig(cfg.Log))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// 创建上下文和取消函数
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建排版服务
	rt, err := format.GetService(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create format service", logger.Error(err))
		os.Exit(1)
	}
	defer rt.Close()

	// 创建 worker 配置
	workerCfg := worker.DefaultConfig(cfg.Redis.Addr)
	workerCfg.RedisDB = cfg.Redis.DB
	if cfg.Redis.Concurrency > 0 {
		workerCfg.Concurrency = cfg.Redis.Concurrency
	}

	formatWorker := worker.NewFormatWorker(workerCfg, rt.Service, log)

	// 启动 worker
	if err := formatWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started", logger.Int("concurrency", workerCfg.Concurrency))

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// 优雅关闭
	log.Info("Shutting down worker...")
	formatWorker.Stop()
	log.Info("Worker stopped")
}
