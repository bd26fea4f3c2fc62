package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/docformat/api/handlers"
	"github.com/feichai0017/docformat/config"
	"github.com/feichai0017/docformat/internal/agent/assistant"
	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/internal/service/format"
	"github.com/feichai0017/docformat/pkg/history"
	"github.com/feichai0017/docformat/pkg/logger"
	"github.com/feichai0017/docformat/pkg/queue"
)

// stubService records the last call and returns canned values.
type stubService struct {
	inputs  []models.InputFile
	profile models.FormatProfile
	result  *models.BatchResult
	status  *queue.TaskStatus
	preview *models.PreviewSnapshot
	err     error
}

func (s *stubService) SubmitBatch(_ context.Context, inputs []models.InputFile, profile models.FormatProfile) (*queue.TaskStatus, error) {
	s.inputs, s.profile = inputs, profile
	if s.err != nil {
		return nil, s.err
	}
	return &queue.TaskStatus{TaskID: "job-1", Status: models.StatusPending, Filenames: []string{inputs[0].Name}, StartedAt: time.Now()}, nil
}

func (s *stubService) HandleBatch(context.Context, *queue.Task) error { return nil }

func (s *stubService) FormatNow(_ context.Context, inputs []models.InputFile, profile models.FormatProfile, _ format.Observer) (*models.BatchResult, error) {
	s.inputs, s.profile = inputs, profile
	return s.result, s.err
}

func (s *stubService) GetJobStatus(_ context.Context, jobID string) (*queue.TaskStatus, error) {
	if s.status == nil || s.status.TaskID != jobID {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, jobID)
	}
	return s.status, nil
}

func (s *stubService) GetPreview(ctx context.Context, jobID string) (*models.PreviewSnapshot, error) {
	if _, err := s.GetJobStatus(ctx, jobID); err != nil {
		return nil, err
	}
	return s.preview, nil
}

func (s *stubService) GetResult(ctx context.Context, jobID string) (*models.OutputArtifact, error) {
	status, err := s.GetJobStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !status.Status.Terminal() {
		return nil, format.ErrJobNotFinished
	}
	return s.result.Output, nil
}

func (s *stubService) ExportPreview(ctx context.Context, jobID string) (*models.OutputArtifact, error) {
	if _, err := s.GetJobStatus(ctx, jobID); err != nil {
		return nil, err
	}
	if s.preview == nil {
		return nil, format.ErrNoPreview
	}
	return &models.OutputArtifact{Name: models.PreviewExportName, ContentType: models.DocxContentType, Data: []byte(s.preview.Text)}, nil
}

func (s *stubService) CancelJob(ctx context.Context, jobID string) error {
	_, err := s.GetJobStatus(ctx, jobID)
	return err
}

func (s *stubService) History(context.Context, int) ([]history.Record, error) {
	return []history.Record{}, nil
}

func (s *stubService) CleanupJobs(context.Context) error { return nil }

type stubChat struct{}

func (stubChat) Chat(_ context.Context, messages []assistant.Message) (*assistant.Reply, error) {
	if len(messages) == 0 {
		return nil, assistant.ErrEmptyConversation
	}
	return &assistant.Reply{Content: "re: " + messages[len(messages)-1].Content}, nil
}

func newRouter(svc *stubService, checks map[string]handlers.Check) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewHandlers(svc, stubChat{}, handlers.Options{
		Presets:     config.BuiltinPresets(),
		Defaults:    models.DefaultProfile(),
		MaxFileSize: 1 << 20,
		Checks:      checks,
	}, logger.NewNop())
	SetupRoutes(r, h, nil, logger.NewNop())
	return r
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFormatSync(t *testing.T) {
	svc := &stubService{result: &models.BatchResult{
		Summary: models.BatchSummary{Total: 2, Succeeded: 1, Failed: 1},
		Output:  &models.OutputArtifact{Name: "formatted_报告.docx", ContentType: models.DocxContentType, Data: []byte("docx")},
	}}
	router := newRouter(svc, nil)

	body, ct := multipartBody(t, map[string]string{"preset": "compact", "font": "宋体", "lineSpacing": "1.5"}, map[string]string{"报告.docx": "data"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/format/sync", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get(handlers.FailedCountHeader))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, models.DocxContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "docx", w.Body.String())

	compact := config.BuiltinPresets()["compact"]
	assert.Equal(t, "宋体", svc.profile.Font)
	assert.Equal(t, 1.5, svc.profile.LineSpacingMultiplier)
	assert.Equal(t, compact.FontSizeHalfPoints, svc.profile.FontSizeHalfPoints)
	require.Len(t, svc.inputs, 1)
	assert.Equal(t, []byte("data"), svc.inputs[0].Data)
}

func TestFormatSyncAllFailed(t *testing.T) {
	svc := &stubService{result: &models.BatchResult{Summary: models.BatchSummary{Total: 1, Failed: 1}}}
	router := newRouter(svc, nil)

	body, ct := multipartBody(t, nil, map[string]string{"a.docx": "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/format/sync", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSubmitJobValidation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		files  map[string]string
		want   int
	}{
		{name: "accepted", files: map[string]string{"a.docx": "x"}, want: http.StatusAccepted},
		{name: "no files", fields: map[string]string{"font": "宋体"}, want: http.StatusBadRequest},
		{name: "unknown preset", fields: map[string]string{"preset": "nope"}, files: map[string]string{"a.docx": "x"}, want: http.StatusBadRequest},
		{name: "bad number", fields: map[string]string{"fontSize": "big"}, files: map[string]string{"a.docx": "x"}, want: http.StatusBadRequest},
		{name: "invalid profile", fields: map[string]string{"lineSpacing": "0"}, files: map[string]string{"a.docx": "x"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&stubService{}, nil)
			body, ct := multipartBody(t, tt.fields, tt.files)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/format/jobs", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestSubmitJobMapsServiceErrors(t *testing.T) {
	router := newRouter(&stubService{err: errors.New("redis down")}, nil)
	body, ct := multipartBody(t, nil, map[string]string{"a.docx": "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/format/jobs", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "redis down", resp.Error)
}

func TestJobEndpoints(t *testing.T) {
	svc := &stubService{
		status: &queue.TaskStatus{TaskID: "job-1", Status: models.StatusRunning, Progress: 50},
		result: &models.BatchResult{Output: &models.OutputArtifact{Name: models.BundleName, ContentType: models.ZipContentType, Data: []byte("zip")}},
	}
	router := newRouter(svc, nil)

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	w := do(http.MethodGet, "/api/v1/format/jobs/job-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"progress":50`)

	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/api/v1/format/jobs/other").Code)
	assert.Equal(t, http.StatusNoContent, do(http.MethodGet, "/api/v1/format/jobs/job-1/preview").Code)
	assert.Equal(t, http.StatusConflict, do(http.MethodGet, "/api/v1/format/jobs/job-1/download").Code)
	assert.Equal(t, http.StatusOK, do(http.MethodDelete, "/api/v1/format/jobs/job-1").Code)

	svc.status.Status = models.StatusCompleted
	svc.preview = &models.PreviewSnapshot{Filename: "a.docx", Text: "hello"}
	w = do(http.MethodGet, "/api/v1/format/jobs/job-1/preview")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hello")

	w = do(http.MethodGet, "/api/v1/format/jobs/job-1/download")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ZipContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), models.BundleName)

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/v1/format/history").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/api/v1/format/history?limit=-1").Code)

	w = do(http.MethodGet, "/api/v1/format/presets")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"official"`)
}

func TestPreviewExport(t *testing.T) {
	svc := &stubService{status: &queue.TaskStatus{TaskID: "job-1", Status: models.StatusRunning}}
	router := newRouter(svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/format/jobs/job-1/preview/export", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.preview = &models.PreviewSnapshot{Filename: "a.docx", Text: "exported"}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/format/jobs/job-1/preview/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DocxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), models.PreviewExportName)
	assert.Equal(t, "exported", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/format/jobs/missing/preview/export", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNameListCompare(t *testing.T) {
	router := newRouter(&stubService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/namelist/compare",
		strings.NewReader(`{"list1":"Alice\nBob\nAlice","list2":"Bob\nCarol"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"onlyInList1": ["Alice", "Alice"],
		"onlyInList2": ["Carol"],
		"duplicatesInBoth": [{"name": "Alice", "count": 2}, {"name": "Bob", "count": 2}]
	}`, w.Body.String())
}

func TestAssistantChat(t *testing.T) {
	router := newRouter(&stubService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"content":"re: hi","fallback":false}`, w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/assistant/chat", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	router := newRouter(&stubService{}, map[string]handlers.Check{
		"redis": func(context.Context) error { return nil },
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	router = newRouter(&stubService{}, map[string]handlers.Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
