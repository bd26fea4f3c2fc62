package models

import (
	"path/filepath"
	"time"
)

const (
	// OutputPrefix is prepended to every formatted file name.
	OutputPrefix = "formatted_"
	// BundleName names the archive delivered for multi-file batches.
	BundleName = "formatted_documents.zip"
	// PreviewExportName names the document exported from a preview snapshot.
	PreviewExportName = "formatted_document.docx"

	DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ZipContentType  = "application/zip"
)

// FormattedName returns the delivery name for an input file.
func FormattedName(original string) string {
	return OutputPrefix + filepath.Base(original)
}

// JobStatus 批处理任务状态
type JobStatus string

const (
	StatusIdle      JobStatus = "idle"
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// InputFile 待排版的原始文件
type InputFile struct {
	Name string `json:"name"`
	Data []byte `json:"-"`
}

// FailureKind classifies why a single file did not produce output.
type FailureKind string

const (
	FailureDecode    FailureKind = "decode"
	FailureEncode    FailureKind = "encode"
	FailureTimeout   FailureKind = "timeout"
	FailureCancelled FailureKind = "cancelled"
	FailureInternal  FailureKind = "internal"
)

// FileOutcome 单个文件的处理结果
type FileOutcome struct {
	Index       int           `json:"index"`
	Filename    string        `json:"filename"`
	OutputName  string        `json:"outputName,omitempty"`
	Succeeded   bool          `json:"succeeded"`
	FailureKind FailureKind   `json:"failureKind,omitempty"`
	Error       string        `json:"error,omitempty"`
	Paragraphs  int           `json:"paragraphs"`
	Images      int           `json:"images"`
	Duration    time.Duration `json:"durationNs"`
}

// PreviewSnapshot is the read-only view of the most recently formatted document.
type PreviewSnapshot struct {
	Filename       string    `json:"filename"`
	Text           string    `json:"text"`
	Images         []string  `json:"images"`
	ParagraphCount int       `json:"paragraphCount"`
	ImageCount     int       `json:"imageCount"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// BatchJob is owned by a single orchestrator run for its whole lifetime.
type BatchJob struct {
	ID         string           `json:"id"`
	Inputs     []InputFile      `json:"-"`
	Filenames  []string         `json:"filenames"`
	Profile    FormatProfile    `json:"profile"`
	Status     JobStatus        `json:"status"`
	Progress   float64          `json:"progress"`
	Preview    *PreviewSnapshot `json:"-"`
	Outcomes   []FileOutcome    `json:"outcomes"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	StartedAt  time.Time        `json:"startedAt,omitempty"`
	FinishedAt time.Time        `json:"finishedAt,omitempty"`
}

// NewBatchJob 创建空闲状态的批处理任务
func NewBatchJob(id string, inputs []InputFile, profile FormatProfile) *BatchJob {
	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	return &BatchJob{
		ID:        id,
		Inputs:    inputs,
		Filenames: names,
		Profile:   profile,
		Status:    StatusIdle,
		CreatedAt: time.Now(),
	}
}

// Summary counts outcomes recorded so far.
func (j *BatchJob) Summary() BatchSummary {
	s := BatchSummary{
		JobID:      j.ID,
		Status:     j.Status,
		Total:      len(j.Filenames),
		Outcomes:   append([]FileOutcome(nil), j.Outcomes...),
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
	for _, o := range j.Outcomes {
		if o.Succeeded {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// BatchSummary 批处理汇总
type BatchSummary struct {
	JobID      string        `json:"jobId"`
	Status     JobStatus     `json:"status"`
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Outcomes   []FileOutcome `json:"outcomes"`
	OutputName string        `json:"outputName,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// OutputArtifact is the deliverable of a batch: a single document or a bundle.
type OutputArtifact struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"-"`
}

// BatchResult 批处理结果
type BatchResult struct {
	Summary BatchSummary    `json:"summary"`
	Output  *OutputArtifact `json:"output,omitempty"`
}
