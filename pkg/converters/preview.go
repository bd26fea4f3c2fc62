package converters

import (
	"strings"
	"time"

	"github.com/feichai0017/docformat/internal/models"
)

// PreviewConverter 将元素列表转换为预览快照
type PreviewConverter interface {
	Convert(filename string, elements []models.ContentElement) *models.PreviewSnapshot
}

// TextPreviewConverter joins paragraph text with blank lines and lists image sources.
type TextPreviewConverter struct {
	now func() time.Time
}

func NewTextPreviewConverter() *TextPreviewConverter {
	return &TextPreviewConverter{now: time.Now}
}

func (c *TextPreviewConverter) Convert(filename string, elements []models.ContentElement) *models.PreviewSnapshot {
	snap := &models.PreviewSnapshot{
		Filename:  filename,
		Images:    make([]string, 0),
		UpdatedAt: c.now(),
	}
	texts := make([]string, 0, len(elements))
	for _, el := range elements {
		switch {
		case el.IsParagraph():
			texts = append(texts, el.Text)
			snap.ParagraphCount++
		case el.IsImage():
			snap.Images = append(snap.Images, el.SourceDataURI)
			snap.ImageCount++
		}
	}
	snap.Text = strings.Join(texts, "\n\n")
	return snap
}

// NewPreview builds a snapshot with the default converter.
func NewPreview(filename string, elements []models.ContentElement) *models.PreviewSnapshot {
	return NewTextPreviewConverter().Convert(filename, elements)
}

// Truncated shortens text to at most n runes, marking the cut with an ellipsis.
func Truncated(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}
