package format

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/docformat/internal/agent/document/docx"
	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/pkg/converters"
	"github.com/feichai0017/docformat/pkg/logger"
)

var (
	// ErrNoInputs rejects a batch without files.
	ErrNoInputs = errors.New("batch has no input files")
	// ErrJobNotFinished is returned when a result is requested before the job ends.
	ErrJobNotFinished = errors.New("job is not finished")
	// ErrJobFinished rejects cancelling a job that already ended.
	ErrJobFinished = errors.New("job already finished")
	// ErrNoPreview is returned when no file of the job has been formatted yet.
	ErrNoPreview = errors.New("job has no preview")
)

// DefaultFileTimeout bounds the work spent on a single input.
const DefaultFileTimeout = 2 * time.Minute

// EventKind tells an Observer what changed on the job.
type EventKind string

const (
	EventState    EventKind = "state"
	EventProgress EventKind = "progress"
	EventPreview  EventKind = "preview"
	EventFile     EventKind = "file"
)

// Observer is called synchronously on the orchestrator goroutine; the job must
// not be retained or mutated after the call returns.
type Observer interface {
	Notify(ctx context.Context, job *models.BatchJob, kind EventKind)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, job *models.BatchJob, kind EventKind)

func (f ObserverFunc) Notify(ctx context.Context, job *models.BatchJob, kind EventKind) {
	f(ctx, job, kind)
}

type nopObserver struct{}

func (nopObserver) Notify(context.Context, *models.BatchJob, EventKind) {}

// Orchestrator 批处理编排器: 顺序处理每个文件, 单个文件失败不影响其他文件
type Orchestrator struct {
	pipeline    FilePipeline
	bundler     converters.Bundler
	preview     converters.PreviewConverter
	fileTimeout time.Duration
	logger      logger.Logger
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

func WithFileTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fileTimeout = d
		}
	}
}

func WithBundler(b converters.Bundler) OrchestratorOption {
	return func(o *Orchestrator) { o.bundler = b }
}

func NewOrchestrator(pipeline FilePipeline, log logger.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		pipeline:    pipeline,
		bundler:     converters.NewZipBundler(),
		preview:     converters.NewTextPreviewConverter(),
		fileTimeout: DefaultFileTimeout,
		logger:      log.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives job from idle to a terminal state. The returned error is non-nil
// only when the batch could not start (no inputs, invalid profile) or the
// bundle could not be built; per-file failures are recorded in job.Outcomes.
func (o *Orchestrator) Run(ctx context.Context, job *models.BatchJob, obs Observer) (*models.BatchResult, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	if len(job.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	if err := job.Profile.Validate(); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx, o.logger).With(logger.String("jobId", job.ID))
	total := len(job.Inputs)
	outputs := make([]converters.Entry, 0, total)

	job.Status = models.StatusRunning
	job.StartedAt = time.Now()
	job.Outcomes = make([]models.FileOutcome, 0, total)
	obs.Notify(ctx, job, EventState)
	log.Info("Batch started", logger.Int("files", total))

	for i, in := range job.Inputs {
		if ctx.Err() != nil {
			o.cancelRemaining(job, i)
			job.Status = models.StatusCancelled
			job.Error = "batch cancelled"
			job.FinishedAt = time.Now()
			obs.Notify(ctx, job, EventState)
			log.Warn("Batch cancelled", logger.Int("processed", i), logger.Int("files", total))
			return &models.BatchResult{Summary: job.Summary()}, nil
		}

		job.Progress = float64(i) / float64(total) * 100
		obs.Notify(ctx, job, EventProgress)

		outcome, res := o.runFile(ctx, log, i, in, job.Profile)
		job.Outcomes = append(job.Outcomes, outcome)
		if res != nil {
			outputs = append(outputs, converters.Entry{Name: res.OutputName, Data: res.Data})
			job.Preview = o.preview.Convert(in.Name, res.Elements)
			obs.Notify(ctx, job, EventPreview)
		}
		obs.Notify(ctx, job, EventFile)
	}

	job.Progress = 100
	job.FinishedAt = time.Now()
	result := &models.BatchResult{}

	if len(outputs) == 0 {
		job.Status = models.StatusFailed
		job.Error = fmt.Sprintf("all %d file(s) failed", total)
	} else {
		artifact, err := o.deliver(job, outputs)
		if err != nil {
			job.Status = models.StatusFailed
			job.Error = err.Error()
			obs.Notify(ctx, job, EventState)
			return nil, err
		}
		job.Status = models.StatusCompleted
		result.Output = artifact
	}

	result.Summary = job.Summary()
	if result.Output != nil {
		result.Summary.OutputName = result.Output.Name
	}
	obs.Notify(ctx, job, EventState)
	log.Info("Batch finished",
		logger.String("status", string(job.Status)),
		logger.Int("succeeded", result.Summary.Succeeded),
		logger.Int("failed", result.Summary.Failed),
		logger.Duration("elapsed", job.FinishedAt.Sub(job.StartedAt)),
	)
	return result, nil
}

// runFile formats one input under its own deadline.
func (o *Orchestrator) runFile(ctx context.Context, log logger.Logger, index int, in models.InputFile, profile models.FormatProfile) (models.FileOutcome, *FileResult) {
	start := time.Now()
	outcome := models.FileOutcome{Index: index, Filename: in.Name}
	log = log.With(logger.String("filename", in.Name), logger.Int("index", index))
	log.Info("Formatting file")

	fileCtx, cancel := context.WithTimeout(ctx, o.fileTimeout)
	defer cancel()

	type done struct {
		res *FileResult
		err error
	}
	ch := make(chan done, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- done{err: fmt.Errorf("panic while formatting: %v", r)}
			}
		}()
		res, err := o.pipeline.Format(fileCtx, in, profile)
		ch <- done{res: res, err: err}
	}()

	var d done
	select {
	case d = <-ch:
	case <-fileCtx.Done():
		d = done{err: fileCtx.Err()}
	}
	outcome.Duration = time.Since(start)

	if d.err == nil && d.res == nil {
		d.err = errors.New("pipeline returned no result")
	}
	if d.err != nil {
		outcome.FailureKind = failureKind(ctx, d.err)
		outcome.Error = d.err.Error()
		log.Error("File failed",
			logger.String("failureKind", string(outcome.FailureKind)),
			logger.Error(d.err),
		)
		return outcome, nil
	}

	outcome.Succeeded = true
	outcome.OutputName = d.res.OutputName
	outcome.Paragraphs = d.res.Paragraphs
	outcome.Images = d.res.Images
	log.Info("File formatted",
		logger.Int("paragraphs", d.res.Paragraphs),
		logger.Int("images", d.res.Images),
		logger.Duration("elapsed", outcome.Duration),
	)
	return outcome, d.res
}

func (o *Orchestrator) cancelRemaining(job *models.BatchJob, from int) {
	for i := from; i < len(job.Inputs); i++ {
		job.Outcomes = append(job.Outcomes, models.FileOutcome{
			Index:       i,
			Filename:    job.Inputs[i].Name,
			FailureKind: models.FailureCancelled,
			Error:       "not processed: batch cancelled",
		})
	}
}

// deliver returns the single output as-is, or bundles every success.
func (o *Orchestrator) deliver(job *models.BatchJob, outputs []converters.Entry) (*models.OutputArtifact, error) {
	if len(job.Inputs) == 1 {
		return &models.OutputArtifact{
			Name:        outputs[0].Name,
			ContentType: models.DocxContentType,
			Data:        outputs[0].Data,
		}, nil
	}
	data, err := o.bundler.Bundle(outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to bundle outputs: %w", err)
	}
	return &models.OutputArtifact{
		Name:        models.BundleName,
		ContentType: models.ZipContentType,
		Data:        data,
	}, nil
}

// ExportPreview encodes the snapshot text as formatted_document.docx.
func (o *Orchestrator) ExportPreview(ctx context.Context, preview *models.PreviewSnapshot, profile models.FormatProfile) (*models.OutputArtifact, error) {
	if preview == nil {
		return nil, ErrNoPreview
	}
	exporter, ok := o.pipeline.(PreviewExporter)
	if !ok {
		return nil, errors.New("pipeline does not support preview export")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	data, err := exporter.ExportPreview(ctx, preview, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to export preview: %w", err)
	}
	return &models.OutputArtifact{
		Name:        models.PreviewExportName,
		ContentType: models.DocxContentType,
		Data:        data,
	}, nil
}

func failureKind(parent context.Context, err error) models.FailureKind {
	var de *docx.DecodeError
	var ee *docx.EncodeError
	switch {
	case errors.As(err, &de):
		return models.FailureDecode
	case errors.As(err, &ee):
		return models.FailureEncode
	case parent.Err() != nil:
		return models.FailureCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return models.FailureTimeout
	case errors.Is(err, context.Canceled):
		return models.FailureCancelled
	default:
		return models.FailureInternal
	}
}
