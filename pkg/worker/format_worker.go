package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/docformat/pkg/logger"
	"github.com/feichai0017/docformat/pkg/queue"
)

// BatchHandler executes a dequeued format batch.
type BatchHandler interface {
	HandleBatch(ctx context.Context, task *queue.Task) error
}

// FormatWorker 排版批处理 worker
type FormatWorker struct {
	BaseWorker
	handler BatchHandler
}

func NewFormatWorker(cfg *Config, handler BatchHandler, log logger.Logger) *FormatWorker {
	w := &FormatWorker{
		BaseWorker: newBaseWorker(cfg, log.Named("format_worker")),
		handler:    handler,
	}
	w.registerHandlers()
	return w
}

func (w *FormatWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeFormatBatch, w.handleFormatBatch)
}

func (w *FormatWorker) handleFormatBatch(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task", logger.Error(err))
		// a malformed payload never succeeds on retry
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}
	if task.ID == "" || len(task.Payload) == 0 {
		w.logger.Error("Invalid task data", logger.String("taskId", task.ID))
		return fmt.Errorf("invalid task data: missing required fields: %w", asynq.SkipRetry)
	}

	ctx = logger.IntoContext(ctx,
		logger.String("taskId", task.ID),
		logger.String("taskType", task.Type),
	)
	log := logger.FromContext(ctx, w.logger)
	log.Info("Processing format batch", logger.Any("metadata", task.Metadata))

	if err := w.handler.HandleBatch(ctx, &task); err != nil {
		log.Error("Format batch failed", logger.Error(err))
		return err
	}
	log.Info("Format batch done")
	return nil
}
