// pkg/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/docformat/internal/models"
)

// TaskType 定义任务类型
const (
	TaskTypeFormatBatch = "format:batch"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var queueNames = []string{QueueCritical, QueueDefault, QueueLow}

// ErrTaskNotFound is returned when neither redis nor any queue knows the task.
var ErrTaskNotFound = errors.New("task not found")

// Queue 接口定义
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveStatus(ctx context.Context, status *TaskStatus) error
	SavePreview(ctx context.Context, taskID string, preview *models.PreviewSnapshot) error
	GetPreview(ctx context.Context, taskID string) (*models.PreviewSnapshot, error)
}

// Task 定义任务结构
type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// TaskStatus is the persisted view of a batch job.
type TaskStatus struct {
	TaskID            string                `json:"taskId"`
	Status            models.JobStatus      `json:"status"`
	Progress          float64               `json:"progress"`
	Error             string                `json:"error,omitempty"`
	Filenames         []string              `json:"filenames,omitempty"`
	Summary           *models.BatchSummary  `json:"summary,omitempty"`
	Profile           *models.FormatProfile `json:"profile,omitempty"`
	OutputKey         string                `json:"outputKey,omitempty"`
	OutputName        string                `json:"outputName,omitempty"`
	OutputContentType string                `json:"outputContentType,omitempty"`
	StartedAt         time.Time             `json:"startedAt"`
	FinishedAt        time.Time             `json:"finishedAt,omitempty"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

// AsynqQueue 实现
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       *QueueConfig
}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr      string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
	StatusTTL      time.Duration
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 30 * time.Minute
	}
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     redisClient,
		cfg:       cfg,
	}, nil
}

// Enqueue 将任务加入队列
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.TaskID(task.ID),
		asynq.Retention(q.cfg.StatusTTL),
	}

	// 根据优先级选择队列
	switch task.Priority {
	case 1:
		opts = append(opts, asynq.Queue(QueueCritical))
	case 2:
		opts = append(opts, asynq.Queue(QueueDefault))
	default:
		opts = append(opts, asynq.Queue(QueueLow))
	}

	t := asynq.NewTask(task.Type, payload, opts...)
	info, err := q.client.EnqueueContext(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID

	return nil
}

func statusKey(taskID string) string  { return fmt.Sprintf("task_status:%s", taskID) }
func previewKey(taskID string) string { return fmt.Sprintf("task_preview:%s", taskID) }

// GetTaskStatus reads the saved status and falls back to the queue inspector.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	}

	info, err := q.findTask(taskID)
	if err != nil {
		return nil, err
	}
	return convertAsynqStatus(info), nil
}

func (q *AsynqQueue) findTask(taskID string) (*asynq.TaskInfo, error) {
	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// CancelTask removes a waiting task or interrupts a running one.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	info, err := q.findTask(taskID)
	if err != nil {
		return err
	}
	if info.State == asynq.TaskStateActive {
		if err := q.inspector.CancelProcessing(taskID); err != nil {
			return fmt.Errorf("failed to cancel task: %w", err)
		}
		return nil
	}
	if err := q.inspector.DeleteTask(info.Queue, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	return nil
}

// SaveStatus 保存任务状态
func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	status.UpdatedAt = time.Now()
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// SavePreview overwrites the job's preview snapshot.
func (q *AsynqQueue) SavePreview(ctx context.Context, taskID string, preview *models.PreviewSnapshot) error {
	data, err := json.Marshal(preview)
	if err != nil {
		return fmt.Errorf("failed to marshal preview: %w", err)
	}
	if err := q.redis.Set(ctx, previewKey(taskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return nil
}

// GetPreview returns nil without error when no file has finished yet.
func (q *AsynqQueue) GetPreview(ctx context.Context, taskID string) (*models.PreviewSnapshot, error) {
	data, err := q.redis.Get(ctx, previewKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preview: %w", err)
	}
	var preview models.PreviewSnapshot
	if err := json.Unmarshal(data, &preview); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preview: %w", err)
	}
	return &preview, nil
}

// Ping checks the redis connection.
func (q *AsynqQueue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

func (q *AsynqQueue) Close() error {
	var errs []error
	errs = append(errs, q.client.Close(), q.inspector.Close(), q.redis.Close())
	return errors.Join(errs...)
}

// convertAsynqStatus 将 asynq 状态转换为 TaskStatus
func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
		UpdatedAt: time.Now(),
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled:
		status.Status = models.StatusPending
	case asynq.TaskStateActive:
		status.Status = models.StatusRunning
	case asynq.TaskStateCompleted:
		status.Status = models.StatusCompleted
		status.Progress = 100
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry, asynq.TaskStateArchived:
		status.Status = models.StatusFailed
		status.Error = info.LastErr
	default:
		status.Status = models.StatusPending
	}

	return status
}
