// internal/utils/validator/document.go
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/docformat/pkg/logger"
)

// DocumentValidator 上传文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 最大文件大小（字节）
	MaxFiles     int                 // 单批最大文件数
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e ValidationError) Error() string { return e.Message }

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// BatchError reports every rejected file of a batch.
type BatchError struct {
	Errors []ValidationError
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Message
	}
	return "invalid upload: " + strings.Join(msgs, "; ")
}

const (
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeDoc  = "application/msword"
)

func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 20 * 1024 * 1024,
		MaxFiles:    50,
		AllowedTypes: map[string][]string{
			// a .docx renamed to .doc is accepted, and so is the reverse
			".doc":  {mimeDoc, "application/x-ole-storage", mimeDocx, "application/zip"},
			".docx": {mimeDocx, "application/zip", mimeDoc, "application/x-ole-storage"},
		},
	}
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// ValidateFile checks size and extension (errors) and sniffed content type
// (warning only: a mismatching file still reaches the decoder, which reports
// it as a per-file failure).
func (v *DocumentValidator) ValidateFile(filename string, data []byte) *ValidationResult {
	sum := sha256.Sum256(data)
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      int64(len(data)),
			Extension: strings.ToLower(filepath.Ext(filename)),
			Hash:      hex.EncodeToString(sum[:]),
		},
	}

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result
	}

	mtype := mimetype.Detect(data)
	result.FileInfo.MimeType = mtype.String()
	if w := v.validateMimeType(mtype, result.FileInfo); w != nil {
		result.Warnings = append(result.Warnings, *w)
		v.logger.Warn("Content does not look like a Word document",
			logger.String("filename", filename),
			logger.String("mimeType", mtype.String()),
		)
	}
	return result
}

// ValidateBatch validates every file and joins all errors.
func (v *DocumentValidator) ValidateBatch(names []string, data [][]byte) ([]*ValidationResult, error) {
	if len(names) == 0 {
		return nil, &BatchError{Errors: []ValidationError{{Code: "NO_FILES", Message: "no files provided", Field: "files"}}}
	}
	if v.config.MaxFiles > 0 && len(names) > v.config.MaxFiles {
		return nil, &BatchError{Errors: []ValidationError{{
			Code:    "TOO_MANY_FILES",
			Message: fmt.Sprintf("too many files: %d (max %d)", len(names), v.config.MaxFiles),
			Field:   "files",
		}}}
	}

	results := make([]*ValidationResult, len(names))
	var errs []ValidationError
	for i := range names {
		results[i] = v.ValidateFile(names[i], data[i])
		errs = append(errs, results[i].Errors...)
	}
	if len(errs) > 0 {
		return results, &BatchError{Errors: errs}
	}
	return results, nil
}

func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errs []ValidationError

	if info.Size == 0 {
		errs = append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: fmt.Sprintf("%s is empty", info.Filename),
			Field:   "size",
		})
	}
	if v.config.MaxFileSize > 0 && info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("%s exceeds maximum size of %d bytes", info.Filename, v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("%s: file type %q is not allowed", info.Filename, info.Extension),
			Field:   "extension",
		})
	}
	return errs
}

func (v *DocumentValidator) validateMimeType(mtype *mimetype.MIME, info FileInfo) *ValidationError {
	allowed := v.config.AllowedTypes[info.Extension]
	for m := mtype; m != nil; m = m.Parent() {
		for _, want := range allowed {
			if m.Is(want) {
				return nil
			}
		}
	}
	return &ValidationError{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("%s: content type %s does not match extension %s", info.Filename, mtype.String(), info.Extension),
		Field:   "mimeType",
	}
}
