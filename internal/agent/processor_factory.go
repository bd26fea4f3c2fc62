package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/feichai0017/docformat/internal/agent/document"
	"github.com/feichai0017/docformat/internal/agent/document/docx"
	"github.com/feichai0017/docformat/pkg/logger"
)

// 扩展名到 MIME 类型的映射
var extToMIME = map[string]string{
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// SupportedExtensions lists the upload extensions a decoder is registered for.
func SupportedExtensions() []string {
	return []string{".doc", ".docx"}
}

// ProcessorFactory picks the decoder for an input file.
type ProcessorFactory struct {
	decoders map[string]document.Decoder
	logger   logger.Logger
}

func NewProcessorFactory(log logger.Logger) *ProcessorFactory {
	factory := &ProcessorFactory{
		decoders: make(map[string]document.Decoder),
		logger:   log.Named("processor_factory"),
	}

	// .doc uploads are frequently OOXML packages with the old extension; the
	// decoder rejects real OLE2 files with ErrLegacyFormat.
	wordDecoder := docx.NewDecoder(log)
	factory.Register(extToMIME[".doc"], wordDecoder)
	factory.Register(extToMIME[".docx"], wordDecoder)

	return factory
}

// Register maps a MIME type to a decoder, replacing any previous one.
func (f *ProcessorFactory) Register(mimeType string, d document.Decoder) {
	f.decoders[mimeType] = d
}

// GetDecoder resolves a decoder from the file name's extension.
func (f *ProcessorFactory) GetDecoder(filename string) (document.Decoder, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	mimeType, ok := extToMIME[ext]
	if !ok {
		f.logger.Warn("Unsupported file type",
			logger.String("filename", filename),
			logger.String("extension", ext),
		)
		return nil, fmt.Errorf("unsupported file type: %q", ext)
	}

	d, ok := f.decoders[mimeType]
	if !ok {
		return nil, fmt.Errorf("no decoder found for mime type: %s", mimeType)
	}
	return d, nil
}
