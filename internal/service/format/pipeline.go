package format

import (
	"context"
	"fmt"
	"strings"

	"github.com/feichai0017/docformat/internal/agent"
	"github.com/feichai0017/docformat/internal/agent/document"
	"github.com/feichai0017/docformat/internal/agent/document/classify"
	"github.com/feichai0017/docformat/internal/agent/document/docx"
	docimage "github.com/feichai0017/docformat/internal/agent/document/image"
	"github.com/feichai0017/docformat/internal/agent/document/style"
	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/pkg/logger"
)

// FileResult is the output of one formatted document.
type FileResult struct {
	OutputName string
	Data       []byte
	Elements   []models.ContentElement
	Paragraphs int
	Images     int
}

// FilePipeline formats a single input file.
type FilePipeline interface {
	Format(ctx context.Context, in models.InputFile, profile models.FormatProfile) (*FileResult, error)
}

// Pipeline runs decode, classify, style and encode for one file.
type Pipeline struct {
	factory    *agent.ProcessorFactory
	classifier document.Classifier
	styler     document.Styler
	encoder    document.Encoder
	normalizer *docimage.Normalizer
	logger     logger.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithImageNormalizer re-encodes oversized or non-native images before
// encoding. Without it image bytes are embedded exactly as decoded.
func WithImageNormalizer(n *docimage.Normalizer) PipelineOption {
	return func(p *Pipeline) { p.normalizer = n }
}

func NewPipeline(log logger.Logger, indent models.IndentMode, layout models.ImageLayout, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		factory:    agent.NewProcessorFactory(log),
		classifier: document.ClassifierFunc(classify.Classify),
		styler:     style.NewApplicator(indent, layout),
		encoder:    docx.NewEncoder(log),
		logger:     log.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Format(ctx context.Context, in models.InputFile, profile models.FormatProfile) (*FileResult, error) {
	decoder, err := p.factory.GetDecoder(in.Name)
	if err != nil {
		return nil, &docx.DecodeError{Filename: in.Name, Err: err}
	}

	decoded, err := decoder.Decode(ctx, in.Name, in.Data)
	if err != nil {
		return nil, err
	}

	elements := p.classifier.Classify(decoded.Body)

	styled, err := p.styler.Apply(elements, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to apply style: %w", err)
	}

	if p.normalizer != nil {
		p.normalizeImages(in.Name, styled)
	}

	out, err := p.encoder.Encode(ctx, in.Name, styled)
	if err != nil {
		return nil, err
	}

	res := &FileResult{
		OutputName: models.FormattedName(in.Name),
		Data:       out,
		Elements:   elements,
	}
	for _, el := range elements {
		if el.IsImage() {
			res.Images++
		} else {
			res.Paragraphs++
		}
	}
	p.logger.Debug("File formatted",
		logger.String("filename", in.Name),
		logger.Int("paragraphs", res.Paragraphs),
		logger.Int("images", res.Images),
		logger.Int("tablesSkipped", decoded.Tables),
	)
	return res, nil
}

// PreviewExporter renders a preview snapshot as a document of its own.
type PreviewExporter interface {
	ExportPreview(ctx context.Context, preview *models.PreviewSnapshot, profile models.FormatProfile) ([]byte, error)
}

// ExportPreview styles the snapshot text with profile, one paragraph per
// blank-line separated block. Images are not part of the export.
func (p *Pipeline) ExportPreview(ctx context.Context, preview *models.PreviewSnapshot, profile models.FormatProfile) ([]byte, error) {
	var elements []models.ContentElement
	for i, block := range strings.Split(preview.Text, "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			elements = append(elements, models.NewParagraph(block, i))
		}
	}
	styled, err := p.styler.Apply(elements, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to apply style: %w", err)
	}
	return p.encoder.Encode(ctx, models.PreviewExportName, styled)
}

// normalizeImages rewrites image sources in place; an image that cannot be
// normalized is embedded as decoded.
func (p *Pipeline) normalizeImages(filename string, styled []models.StyledElement) {
	for i := range styled {
		if !styled[i].IsImage() {
			continue
		}
		src, changed, err := p.normalizer.Normalize(styled[i].SourceDataURI)
		if err != nil {
			p.logger.Warn("Image left as is",
				logger.String("filename", filename),
				logger.Int("position", styled[i].OriginalPosition),
				logger.Error(err),
			)
			continue
		}
		if changed {
			styled[i].SourceDataURI = src
		}
	}
}
