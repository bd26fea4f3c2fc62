package document

import (
	"context"

	"golang.org/x/net/html"

	"github.com/feichai0017/docformat/internal/agent/document/docx"
	"github.com/feichai0017/docformat/internal/models"
)

// Decoder 文档解码器接口
type Decoder interface {
	// CanDecode 检查是否可以解码指定扩展名的文件
	CanDecode(ext string) bool
	// Decode 将原始字节解析为 HTML 块树
	Decode(ctx context.Context, filename string, data []byte) (*docx.Decoded, error)
}

// Classifier flattens a block tree into content elements.
type Classifier interface {
	Classify(root *html.Node) []models.ContentElement
}

// Styler attaches rendering attributes to content elements.
type Styler interface {
	Apply(elements []models.ContentElement, profile models.FormatProfile) ([]models.StyledElement, error)
}

// Encoder 文档编码器接口
type Encoder interface {
	Encode(ctx context.Context, filename string, elements []models.StyledElement) ([]byte, error)
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(root *html.Node) []models.ContentElement

func (f ClassifierFunc) Classify(root *html.Node) []models.ContentElement { return f(root) }
