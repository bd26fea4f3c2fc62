package models

// ElementKind 内容元素类型
type ElementKind string

const (
	ElementParagraph ElementKind = "paragraph"
	ElementImage     ElementKind = "image"
)

// ContentElement is one classified unit of a document: a paragraph's text or a
// single image. Paragraph text and the images it contained become siblings that
// share the same OriginalPosition.
type ContentElement struct {
	Kind             ElementKind `json:"type"`
	Text             string      `json:"content,omitempty"`
	SourceDataURI    string      `json:"src,omitempty"`
	OriginalPosition int         `json:"originalPosition"`
}

func NewParagraph(text string, position int) ContentElement {
	return ContentElement{Kind: ElementParagraph, Text: text, OriginalPosition: position}
}

func NewImage(dataURI string, position int) ContentElement {
	return ContentElement{Kind: ElementImage, SourceDataURI: dataURI, OriginalPosition: position}
}

func (e ContentElement) IsParagraph() bool { return e.Kind == ElementParagraph }
func (e ContentElement) IsImage() bool     { return e.Kind == ElementImage }

// ParagraphStyle 段落渲染属性，单位为 twip (1/20 磅)
type ParagraphStyle struct {
	Font           string `json:"font"`
	SizeHalfPoints int    `json:"size"`
	LineTwips      int    `json:"line"`
	LineRule       string `json:"lineRule"`
	BeforeTwips    int    `json:"before"`
	AfterTwips     int    `json:"after"`
	FirstLineTwips int    `json:"firstLine"`
	Justification  string `json:"justification"`
}

// ImageStyle 图片渲染属性，显示框单位为像素
type ImageStyle struct {
	WidthPx       int    `json:"width"`
	HeightPx      int    `json:"height"`
	Justification string `json:"justification"`
	BeforeTwips   int    `json:"before"`
	AfterTwips    int    `json:"after"`
}

// StyledElement is a ContentElement with exactly one of Paragraph or Image set,
// matching its Kind.
type StyledElement struct {
	ContentElement
	Paragraph *ParagraphStyle `json:"paragraphStyle,omitempty"`
	Image     *ImageStyle     `json:"imageStyle,omitempty"`
}
