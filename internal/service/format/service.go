package format

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/internal/utils/validator"
	"github.com/feichai0017/docformat/pkg/history"
	"github.com/feichai0017/docformat/pkg/logger"
	"github.com/feichai0017/docformat/pkg/queue"
	"github.com/feichai0017/docformat/pkg/storage"
)

// ErrNoOutput is returned for finished jobs that produced nothing to download.
var ErrNoOutput = errors.New("job produced no output")

// FormatService 排版服务接口
type FormatService interface {
	SubmitBatch(ctx context.Context, inputs []models.InputFile, profile models.FormatProfile) (*queue.TaskStatus, error)
	HandleBatch(ctx context.Context, task *queue.Task) error
	FormatNow(ctx context.Context, inputs []models.InputFile, profile models.FormatProfile, obs Observer) (*models.BatchResult, error)
	GetJobStatus(ctx context.Context, jobID string) (*queue.TaskStatus, error)
	GetPreview(ctx context.Context, jobID string) (*models.PreviewSnapshot, error)
	GetResult(ctx context.Context, jobID string) (*models.OutputArtifact, error)
	ExportPreview(ctx context.Context, jobID string) (*models.OutputArtifact, error)
	CancelJob(ctx context.Context, jobID string) error
	History(ctx context.Context, limit int) ([]history.Record, error)
	CleanupJobs(ctx context.Context) error
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	QueuePriority   int
	MaxConcurrent   int
	RetentionPeriod time.Duration
	// SyncMaxFiles caps FormatNow batches; zero means no cap beyond the validator's.
	SyncMaxFiles int
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		QueuePriority:   2,
		MaxConcurrent:   5,
		RetentionPeriod: 24 * time.Hour,
	}
}

type Service struct {
	orchestrator *Orchestrator
	validator    *validator.DocumentValidator
	queue        queue.Queue
	storage      storage.Storage
	history      history.Store
	logger       logger.Logger
	config       *ServiceConfig
}

// NewService wires the job service. q, store and hist may be nil for a
// synchronous-only service (the CLI); the asynchronous operations then fail.
func NewService(
	orchestrator *Orchestrator,
	v *validator.DocumentValidator,
	q queue.Queue,
	store storage.Storage,
	hist history.Store,
	log logger.Logger,
	cfg *ServiceConfig,
) *Service {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	return &Service{
		orchestrator: orchestrator,
		validator:    v,
		queue:        q,
		storage:      store,
		history:      hist,
		logger:       log.Named("format_service"),
		config:       cfg,
	}
}

// batchPayload is the asynq task payload of a format batch.
type batchPayload struct {
	JobID   string               `json:"jobId"`
	Inputs  []stagedInput        `json:"inputs"`
	Profile models.FormatProfile `json:"profile"`
}

type stagedInput struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	Size int    `json:"size"`
}

func inputKey(jobID string, index int, name string) string {
	return fmt.Sprintf("jobs/%s/in/%03d_%s", jobID, index, path.Base(name))
}

func outputKey(jobID, name string) string {
	return fmt.Sprintf("jobs/%s/out/%s", jobID, name)
}

func (s *Service) validate(inputs []models.InputFile, profile models.FormatProfile) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	if s.validator == nil {
		return nil
	}
	names := make([]string, len(inputs))
	data := make([][]byte, len(inputs))
	for i, in := range inputs {
		names[i], data[i] = in.Name, in.Data
	}
	_, err := s.validator.ValidateBatch(names, data)
	return err
}

func (s *Service) requireAsync() error {
	if s.queue == nil || s.storage == nil {
		return errors.New("asynchronous jobs are not configured")
	}
	return nil
}

// SubmitBatch 校验并暂存输入文件, 然后将批处理任务加入队列
func (s *Service) SubmitBatch(ctx context.Context, inputs []models.InputFile, profile models.FormatProfile) (*queue.TaskStatus, error) {
	if err := s.requireAsync(); err != nil {
		return nil, err
	}
	if err := s.validate(inputs, profile); err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	payload := batchPayload{JobID: jobID, Profile: profile, Inputs: make([]stagedInput, len(inputs))}

	// 使用 errgroup 并发暂存文件
	g, gctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrent > 0 {
		g.SetLimit(s.config.MaxConcurrent)
	}
	for i, in := range inputs {
		i, in := i, in // per-iteration copies (go.mod targets Go 1.21)
		g.Go(func() error {
			key, err := s.storage.Store(gctx, bytes.NewReader(in.Data), inputKey(jobID, i, in.Name))
			if err != nil {
				return fmt.Errorf("failed to stage %s: %w", in.Name, err)
			}
			payload.Inputs[i] = stagedInput{Name: in.Name, Key: key, Size: len(in.Data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to stage inputs", logger.String("jobId", jobID), logger.Error(err))
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	task := &queue.Task{
		ID:        jobID,
		Type:      queue.TaskTypeFormatBatch,
		Priority:  s.config.QueuePriority,
		Payload:   raw,
		Metadata:  map[string]string{"files": fmt.Sprintf("%d", len(inputs))},
		CreatedAt: time.Now(),
	}
	// pending must be stored before the task becomes visible to a worker
	status := &queue.TaskStatus{
		TaskID:    jobID,
		Status:    models.StatusPending,
		Filenames: names,
		Profile:   &profile,
		StartedAt: task.CreatedAt,
	}
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save initial status", logger.String("jobId", jobID), logger.Error(err))
		return nil, fmt.Errorf("failed to save task status: %w", err)
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.logger.Error("Failed to enqueue batch", logger.String("jobId", jobID), logger.Error(err))
		s.saveStatus(context.WithoutCancel(ctx), &queue.TaskStatus{
			TaskID:     jobID,
			Status:     models.StatusFailed,
			Error:      err.Error(),
			Filenames:  names,
			StartedAt:  task.CreatedAt,
			FinishedAt: time.Now(),
		})
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("Format batch submitted",
		logger.String("jobId", jobID),
		logger.Strings("files", names),
	)
	return status, nil
}

// HandleBatch is the worker side of SubmitBatch.
func (s *Service) HandleBatch(ctx context.Context, task *queue.Task) error {
	if err := s.requireAsync(); err != nil {
		return err
	}
	var payload batchPayload
	if task == nil || len(task.Payload) == 0 {
		return fmt.Errorf("invalid task: missing payload")
	}
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("invalid task payload: %w", err)
	}

	inputs := make([]models.InputFile, len(payload.Inputs))
	g, gctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrent > 0 {
		g.SetLimit(s.config.MaxConcurrent)
	}
	for i, in := range payload.Inputs {
		i, in := i, in // per-iteration copies (go.mod targets Go 1.21)
		g.Go(func() error {
			data, err := storage.ReadAll(gctx, s.storage, in.Key)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", in.Name, err)
			}
			inputs[i] = models.InputFile{Name: in.Name, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.saveStatus(ctx, &queue.TaskStatus{
			TaskID:     payload.JobID,
			Status:     models.StatusFailed,
			Error:      err.Error(),
			FinishedAt: time.Now(),
		})
		return err
	}

	job := models.NewBatchJob(payload.JobID, inputs, payload.Profile)
	result, err := s.orchestrator.Run(ctx, job, &statusObserver{svc: s})
	// the final writes must land even if the task context was cancelled
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		failed := statusFromJob(job)
		if !failed.Status.Terminal() {
			failed.Status = models.StatusFailed
			failed.FinishedAt = time.Now()
		}
		if failed.Error == "" {
			failed.Error = err.Error()
		}
		s.saveStatus(persistCtx, failed)
		return err
	}

	final := statusFromJob(job)
	final.Summary = &result.Summary
	if result.Output != nil {
		key, err := s.storage.Store(persistCtx, bytes.NewReader(result.Output.Data), outputKey(job.ID, result.Output.Name))
		if err != nil {
			final.Status = models.StatusFailed
			final.Error = err.Error()
		} else {
			final.OutputKey = key
			final.OutputName = result.Output.Name
			final.OutputContentType = result.Output.ContentType
		}
	}
	s.saveStatus(persistCtx, final)
	s.record(persistCtx, result.Summary, job.Profile)
	return nil
}

// FormatNow runs a batch in the calling goroutine and returns its output.
func (s *Service) FormatNow(ctx context.Context, inputs []models.InputFile, profile models.FormatProfile, obs Observer) (*models.BatchResult, error) {
	if s.config.SyncMaxFiles > 0 && len(inputs) > s.config.SyncMaxFiles {
		return nil, &validator.BatchError{Errors: []validator.ValidationError{{
			Code:    "TOO_MANY_FILES",
			Message: fmt.Sprintf("too many files for synchronous formatting: %d (max %d)", len(inputs), s.config.SyncMaxFiles),
			Field:   "files",
		}}}
	}
	if err := s.validate(inputs, profile); err != nil {
		return nil, err
	}
	job := models.NewBatchJob(uuid.New().String(), inputs, profile)
	result, err := s.orchestrator.Run(ctx, job, obs)
	if err != nil {
		return nil, err
	}
	s.record(context.WithoutCancel(ctx), result.Summary, profile)
	return result, nil
}

// GetJobStatus 获取任务状态
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*queue.TaskStatus, error) {
	if err := s.requireAsync(); err != nil {
		return nil, err
	}
	status, err := s.queue.GetTaskStatus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	return status, nil
}

// GetPreview returns the latest snapshot; nil when no file has finished yet.
func (s *Service) GetPreview(ctx context.Context, jobID string) (*models.PreviewSnapshot, error) {
	if err := s.requireAsync(); err != nil {
		return nil, err
	}
	if _, err := s.GetJobStatus(ctx, jobID); err != nil {
		return nil, err
	}
	return s.queue.GetPreview(ctx, jobID)
}

// GetResult 获取处理结果
func (s *Service) GetResult(ctx context.Context, jobID string) (*models.OutputArtifact, error) {
	status, err := s.GetJobStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !status.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFinished, status.Status)
	}
	if status.OutputKey == "" {
		return nil, ErrNoOutput
	}

	data, err := storage.ReadAll(ctx, s.storage, status.OutputKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return &models.OutputArtifact{
		Name:        status.OutputName,
		ContentType: status.OutputContentType,
		Data:        data,
	}, nil
}

// ExportPreview renders the job's latest preview with the job's profile.
func (s *Service) ExportPreview(ctx context.Context, jobID string) (*models.OutputArtifact, error) {
	status, err := s.GetJobStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	preview, err := s.queue.GetPreview(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get preview: %w", err)
	}
	profile := models.DefaultProfile()
	if status.Profile != nil {
		profile = *status.Profile
	}
	return s.orchestrator.ExportPreview(ctx, preview, profile)
}

// ExportSnapshot renders a preview held by the caller, as FormatNow users have no job id.
func (s *Service) ExportSnapshot(ctx context.Context, preview *models.PreviewSnapshot, profile models.FormatProfile) (*models.OutputArtifact, error) {
	return s.orchestrator.ExportPreview(ctx, preview, profile)
}

// CancelJob 取消任务
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	status, err := s.GetJobStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if status.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, status.Status)
	}
	if err := s.queue.CancelTask(ctx, jobID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	// a running job reports cancelled itself once the worker sees the cancellation
	if status.Status == models.StatusPending {
		status.Status = models.StatusCancelled
		status.FinishedAt = time.Now()
		s.saveStatus(ctx, status)
	}

	s.logger.Info("Task cancelled", logger.String("jobId", jobID))
	return nil
}

// History lists finished batches, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]history.Record, error) {
	if s.history == nil {
		return []history.Record{}, nil
	}
	return s.history.List(ctx, limit)
}

// CleanupJobs 清理过期任务
func (s *Service) CleanupJobs(ctx context.Context) error {
	threshold := time.Now().Add(-s.config.RetentionPeriod)

	if s.storage != nil {
		if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
			return fmt.Errorf("failed to cleanup storage: %w", err)
		}
	}
	if s.history != nil {
		n, err := s.history.DeleteBefore(ctx, threshold)
		if err != nil {
			return err
		}
		s.logger.Info("Pruned history", logger.Int64("rows", n))
	}

	s.logger.Info("Completed jobs cleanup", logger.Time("threshold", threshold))
	return nil
}

func (s *Service) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save status",
			logger.String("jobId", status.TaskID),
			logger.Error(err),
		)
	}
}

func (s *Service) record(ctx context.Context, summary models.BatchSummary, profile models.FormatProfile) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, history.Record{Summary: summary, Profile: profile}); err != nil {
		s.logger.Error("Failed to record history",
			logger.String("jobId", summary.JobID),
			logger.Error(err),
		)
	}
}

func statusFromJob(job *models.BatchJob) *queue.TaskStatus {
	summary := job.Summary()
	profile := job.Profile
	return &queue.TaskStatus{
		TaskID:     job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		Error:      job.Error,
		Filenames:  job.Filenames,
		Summary:    &summary,
		Profile:    &profile,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
}

// statusObserver mirrors job progress and preview into the queue's status store.
type statusObserver struct {
	svc *Service
}

func (o *statusObserver) Notify(ctx context.Context, job *models.BatchJob, kind EventKind) {
	// the terminal status is written by HandleBatch together with the output key
	if kind == EventState && job.Status.Terminal() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if kind == EventPreview {
		if job.Preview == nil {
			return
		}
		if err := o.svc.queue.SavePreview(ctx, job.ID, job.Preview); err != nil {
			o.svc.logger.Error("Failed to save preview", logger.String("jobId", job.ID), logger.Error(err))
		}
		return
	}
	o.svc.saveStatus(ctx, statusFromJob(job))
}
