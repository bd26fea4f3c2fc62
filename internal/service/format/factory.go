package format

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/docformat/config"
	docimage "github.com/feichai0017/docformat/internal/agent/document/image"
	"github.com/feichai0017/docformat/internal/utils/validator"
	"github.com/feichai0017/docformat/pkg/history"
	"github.com/feichai0017/docformat/pkg/logger"
	"github.com/feichai0017/docformat/pkg/queue"
	"github.com/feichai0017/docformat/pkg/storage"
)

// Runtime is a fully wired service together with the resources it owns.
type Runtime struct {
	Service *Service
	Queue   *queue.AsynqQueue
	History *history.SQLiteStore
}

// Close releases the queue and history connections.
func (r *Runtime) Close() error {
	var errs []error
	if r.Queue != nil {
		errs = append(errs, r.Queue.Close())
	}
	if r.History != nil {
		errs = append(errs, r.History.Close())
	}
	return errors.Join(errs...)
}

// NewLocalOrchestrator builds the orchestrator from the format section.
func NewLocalOrchestrator(cfg config.FormatConfig, log logger.Logger) (*Orchestrator, error) {
	indent, layout, err := cfg.Modes()
	if err != nil {
		return nil, err
	}
	var opts []PipelineOption
	if cfg.NormalizeImages {
		opts = append(opts, WithImageNormalizer(docimage.NewDefaultNormalizer()))
	}
	return NewOrchestrator(NewPipeline(log, indent, layout, opts...), log, WithFileTimeout(cfg.FileTimeout)), nil
}

func newValidator(cfg config.FormatConfig, maxFiles int, log logger.Logger) *validator.DocumentValidator {
	vc := validator.DefaultConfig()
	if cfg.MaxFileSize > 0 {
		vc.MaxFileSize = cfg.MaxFileSize
	}
	if maxFiles > 0 {
		vc.MaxFiles = maxFiles
	}
	return validator.NewDocumentValidator(log, vc)
}

// GetService 初始化存储、队列和历史记录, 返回完整的排版服务
func GetService(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	orch, err := NewLocalOrchestrator(cfg.Format, log)
	if err != nil {
		return nil, fmt.Errorf("invalid format config: %w", err)
	}

	// 初始化存储
	store, err := storage.NewStorage(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// 初始化队列
	q, err := queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr:      cfg.Redis.Addr,
		RedisDB:        cfg.Redis.DB,
		MaxRetries:     1,
		ProcessTimeout: cfg.Redis.TaskTimeout,
		StatusTTL:      cfg.Redis.StatusTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		q.Close()
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	svcCfg := DefaultServiceConfig()
	if cfg.Format.RetainFor > 0 {
		svcCfg.RetentionPeriod = cfg.Format.RetainFor
	}
	svcCfg.SyncMaxFiles = cfg.Format.SyncMaxFiles
	svc := NewService(orch, newValidator(cfg.Format, cfg.Format.MaxFiles, log), q, store, hist, log, svcCfg)
	return &Runtime{Service: svc, Queue: q, History: hist}, nil
}

// NewSyncService builds a service that only supports FormatNow.
func NewSyncService(cfg config.FormatConfig, hist history.Store, log logger.Logger) (*Service, error) {
	orch, err := NewLocalOrchestrator(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewService(orch, newValidator(cfg, cfg.MaxFiles, log), nil, nil, hist, log, nil), nil
}
