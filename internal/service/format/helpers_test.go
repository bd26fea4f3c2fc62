package format

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/pkg/queue"
)

// docxWith builds a minimal WordprocessingML package with one paragraph per text.
func docxWith(t *testing.T, texts ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, text := range texts {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, text)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>%s</w:body></w:document>`, body.String())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zipEntries(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = b
	}
	return out
}

type pipelineFunc func(ctx context.Context, in models.InputFile, profile models.FormatProfile) (*FileResult, error)

func (f pipelineFunc) Format(ctx context.Context, in models.InputFile, profile models.FormatProfile) (*FileResult, error) {
	return f(ctx, in, profile)
}

// recorder captures observer events.
type recorder struct {
	mu       sync.Mutex
	kinds    []EventKind
	progress []float64
	states   []models.JobStatus
	previews []string
}

func (r *recorder) Notify(_ context.Context, job *models.BatchJob, kind EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	switch kind {
	case EventProgress:
		r.progress = append(r.progress, job.Progress)
	case EventState:
		r.states = append(r.states, job.Status)
	case EventPreview:
		r.previews = append(r.previews, job.Preview.Filename)
	}
}

// fakeQueue keeps tasks, statuses and previews in memory.
type fakeQueue struct {
	mu        sync.Mutex
	tasks     []*queue.Task
	statuses  map[string]*queue.TaskStatus
	previews  map[string]*models.PreviewSnapshot
	cancelled []string
	// onEnqueue runs after the task is recorded, outside the lock, so it
	// may call back into the service like a fast worker would.
	onEnqueue func(task *queue.Task) error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		statuses: make(map[string]*queue.TaskStatus),
		previews: make(map[string]*models.PreviewSnapshot),
	}
}

func (q *fakeQueue) Enqueue(_ context.Context, task *queue.Task) error {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	hook := q.onEnqueue
	q.mu.Unlock()
	if hook != nil {
		return hook(task)
	}
	return nil
}

func (q *fakeQueue) GetTaskStatus(_ context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.statuses[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	cp := *s
	return &cp, nil
}

func (q *fakeQueue) CancelTask(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, taskID)
	return nil
}

func (q *fakeQueue) SaveStatus(_ context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *status
	q.statuses[status.TaskID] = &cp
	return nil
}

func (q *fakeQueue) SavePreview(_ context.Context, taskID string, preview *models.PreviewSnapshot) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.previews[taskID] = preview
	return nil
}

func (q *fakeQueue) GetPreview(_ context.Context, taskID string) (*models.PreviewSnapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.previews[taskID], nil
}
