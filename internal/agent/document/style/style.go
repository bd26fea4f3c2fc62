// Package style attaches rendering attributes to classified content elements.
package style

import (
	"bytes"
	"encoding/base64"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/docformat/internal/models"
)

const (
	// TwipsPerPoint converts points to twentieths of a point.
	TwipsPerPoint = 20
	// LineUnit is one single line in auto line-rule units.
	LineUnit = 240
	// FullWidthCharTwips is the indent unit of the fixed mode.
	FullWidthCharTwips = 240

	ImageBoxWidth  = 400
	ImageBoxHeight = 300
	// ImageSpacingTwips is 30/72 inch above and below every image.
	ImageSpacingTwips = 600

	JustifyBoth   = "both"
	JustifyCenter = "center"
	LineRuleAuto  = "auto"
)

// Applicator styles elements with a profile. The zero value uses the fixed
// indent and the fixed image box.
type Applicator struct {
	IndentMode  models.IndentMode
	ImageLayout models.ImageLayout
}

func NewApplicator(indent models.IndentMode, layout models.ImageLayout) *Applicator {
	return &Applicator{IndentMode: indent, ImageLayout: layout}
}

// Apply returns a new slice; elements is not modified.
func (a *Applicator) Apply(elements []models.ContentElement, profile models.FormatProfile) ([]models.StyledElement, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	para := a.paragraphStyle(profile)

	out := make([]models.StyledElement, 0, len(elements))
	for _, el := range elements {
		styled := models.StyledElement{ContentElement: el}
		if el.IsImage() {
			styled.Image = a.imageStyle(el.SourceDataURI)
		} else {
			p := para
			styled.Paragraph = &p
		}
		out = append(out, styled)
	}
	return out, nil
}

func (a *Applicator) paragraphStyle(p models.FormatProfile) models.ParagraphStyle {
	return models.ParagraphStyle{
		Font:           p.Font,
		SizeHalfPoints: p.FontSizeHalfPoints,
		LineTwips:      int(math.Round(p.LineSpacingMultiplier * LineUnit)),
		LineRule:       LineRuleAuto,
		BeforeTwips:    int(math.Round(p.ParagraphSpacingPoints * TwipsPerPoint)),
		AfterTwips:     int(math.Round(p.ParagraphSpacingPoints * TwipsPerPoint)),
		FirstLineTwips: a.firstLineIndent(p),
		Justification:  JustifyBoth,
	}
}

// firstLineIndent: a full-width character is as wide as the font size, and one
// half-point is 10 twips.
func (a *Applicator) firstLineIndent(p models.FormatProfile) int {
	if a.IndentMode == models.IndentConfigurable {
		return p.FirstLineIndentChars * p.FontSizeHalfPoints * 10
	}
	return 2 * FullWidthCharTwips
}

func (a *Applicator) imageStyle(src string) *models.ImageStyle {
	s := &models.ImageStyle{
		WidthPx:       ImageBoxWidth,
		HeightPx:      ImageBoxHeight,
		Justification: JustifyCenter,
		BeforeTwips:   ImageSpacingTwips,
		AfterTwips:    ImageSpacingTwips,
	}
	if a.ImageLayout == models.ImageLayoutAspect {
		if w, h, ok := naturalSize(src); ok {
			s.HeightPx = max(1, int(math.Round(float64(ImageBoxWidth)*float64(h)/float64(w))))
		}
	}
	return s
}

func naturalSize(src string) (int, int, bool) {
	_, payload, ok := strings.Cut(src, ";base64,")
	if !ok {
		return 0, 0, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return 0, 0, false
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 0, 0, false
	}
	return b.Dx(), b.Dy(), true
}
