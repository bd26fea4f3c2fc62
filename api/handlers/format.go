package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/docformat/config"
	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/internal/service/format"
	"github.com/feichai0017/docformat/internal/utils/validator"
	"github.com/feichai0017/docformat/pkg/logger"
	"github.com/feichai0017/docformat/pkg/queue"
)

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SubmitResponse 定义提交响应结构
type SubmitResponse struct {
	JobID     string           `json:"jobId"`
	Status    models.JobStatus `json:"status"`
	Filenames []string         `json:"filenames"`
	CreatedAt string           `json:"createdAt"`
}

// FailedCountHeader carries the number of files missing from a sync response.
const FailedCountHeader = "X-Failed-Count"

type FormatHandler struct {
	service     format.FormatService
	presets     config.Presets
	defaults    models.FormatProfile
	maxFileSize int64
	logger      logger.Logger
}

func NewFormatHandler(service format.FormatService, presets config.Presets, defaults models.FormatProfile, maxFileSize int64, log logger.Logger) *FormatHandler {
	if presets == nil {
		presets = config.BuiltinPresets()
	}
	return &FormatHandler{
		service:     service,
		presets:     presets,
		defaults:    defaults,
		maxFileSize: maxFileSize,
		logger:      log,
	}
}

// SubmitJob 提交异步排版任务
func (h *FormatHandler) SubmitJob(c *gin.Context) {
	inputs, profile, ok := h.parseRequest(c)
	if !ok {
		return
	}

	status, err := h.service.SubmitBatch(c.Request.Context(), inputs, profile)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to submit format job", err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{
		JobID:     status.TaskID,
		Status:    status.Status,
		Filenames: status.Filenames,
		CreatedAt: status.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// FormatSync 同步排版并直接返回结果
func (h *FormatHandler) FormatSync(c *gin.Context) {
	inputs, profile, ok := h.parseRequest(c)
	if !ok {
		return
	}

	result, err := h.service.FormatNow(c.Request.Context(), inputs, profile, nil)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to format documents", err)
		return
	}
	if result.Output == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "no document could be formatted",
			"message": "All files failed",
			"summary": result.Summary,
		})
		return
	}

	c.Header(FailedCountHeader, strconv.Itoa(result.Summary.Failed))
	c.Header("Content-Disposition", attachment(result.Output.Name))
	c.Data(http.StatusOK, result.Output.ContentType, result.Output.Data)
}

// GetStatus 获取任务状态
func (h *FormatHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("jobId")
	status, err := h.service.GetJobStatus(c.Request.Context(), jobID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetPreview returns 204 while no file of the job has finished.
func (h *FormatHandler) GetPreview(c *gin.Context) {
	jobID := c.Param("jobId")
	preview, err := h.service.GetPreview(c.Request.Context(), jobID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get preview", err)
		return
	}
	if preview == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// Download 下载排版结果
func (h *FormatHandler) Download(c *gin.Context) {
	jobID := c.Param("jobId")
	artifact, err := h.service.GetResult(c.Request.Context(), jobID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get result", err)
		return
	}
	c.Header("Content-Disposition", attachment(artifact.Name))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

// ExportPreview downloads the latest preview as formatted_document.docx.
func (h *FormatHandler) ExportPreview(c *gin.Context) {
	jobID := c.Param("jobId")
	artifact, err := h.service.ExportPreview(c.Request.Context(), jobID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to export preview", err)
		return
	}
	c.Header("Content-Disposition", attachment(artifact.Name))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

// Cancel 取消任务
func (h *FormatHandler) Cancel(c *gin.Context) {
	jobID := c.Param("jobId")
	if err := h.service.CancelJob(c.Request.Context(), jobID); err != nil {
		h.handleError(c, statusFor(err), "Failed to cancel job", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Job cancelled",
		"jobId":   jobID,
	})
}

// History 列出历史批处理
func (h *FormatHandler) History(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		h.handleError(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	records, err := h.service.History(c.Request.Context(), limit)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to list history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

// Presets 列出可用排版预设
func (h *FormatHandler) Presets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default": h.defaults,
		"presets": h.presets,
		"fonts":   models.KnownFonts,
	})
}

// parseRequest reads the uploaded files and the profile; it writes the error
// response itself and reports ok=false.
func (h *FormatHandler) parseRequest(c *gin.Context) ([]models.InputFile, models.FormatProfile, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return nil, models.FormatProfile{}, false
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return nil, models.FormatProfile{}, false
	}

	profile, err := h.profileFrom(form.Value)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid format profile", err)
		return nil, models.FormatProfile{}, false
	}

	inputs := make([]models.InputFile, 0, len(headers))
	for _, fh := range headers {
		data, err := h.readUpload(fh)
		if err != nil {
			h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
			return nil, models.FormatProfile{}, false
		}
		inputs = append(inputs, models.InputFile{Name: fh.Filename, Data: data})
	}
	return inputs, profile, true
}

// readUpload reads at most one byte past the size limit so the validator can
// still report the file as too large.
func (h *FormatHandler) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxFileSize > 0 {
		r = io.LimitReader(f, h.maxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return data, nil
}

// profileFrom starts from the named preset (or the server default) and
// overrides the fields present in the form.
func (h *FormatHandler) profileFrom(values map[string][]string) (models.FormatProfile, error) {
	get := func(key string) string {
		if v := values[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	profile := h.defaults
	if name := get("preset"); name != "" {
		p, err := h.presets.Lookup(name)
		if err != nil {
			return profile, err
		}
		profile = p
	}

	if v := get("font"); v != "" {
		profile.Font = v
	}
	if v := get("fontSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return profile, fmt.Errorf("fontSize: %w", err)
		}
		profile.FontSizeHalfPoints = n
	}
	if v := get("lineSpacing"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return profile, fmt.Errorf("lineSpacing: %w", err)
		}
		profile.LineSpacingMultiplier = f
	}
	if v := get("paragraphSpacing"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return profile, fmt.Errorf("paragraphSpacing: %w", err)
		}
		profile.ParagraphSpacingPoints = f
	}
	if v := get("firstLineIndent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return profile, fmt.Errorf("firstLineIndent: %w", err)
		}
		profile.FirstLineIndentChars = n
	}
	return profile, profile.Validate()
}

// handleError 统一错误处理
func (h *FormatHandler) handleError(c *gin.Context, status int, message string, err error) {
	respondError(c, h.logger, status, message, err)
}

func respondError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}

func statusFor(err error) int {
	var be *validator.BatchError
	switch {
	case errors.As(err, &be),
		errors.Is(err, models.ErrInvalidProfile),
		errors.Is(err, format.ErrNoInputs):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrTaskNotFound),
		errors.Is(err, format.ErrNoOutput),
		errors.Is(err, format.ErrNoPreview):
		return http.StatusNotFound
	case errors.Is(err, format.ErrJobNotFinished),
		errors.Is(err, format.ErrJobFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
