package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidProfile wraps every profile validation failure.
var ErrInvalidProfile = errors.New("invalid format profile")

// Fonts offered to callers; any other non-empty name is still substituted verbatim.
var KnownFonts = []string{"微软雅黑", "宋体", "黑体"}

// FormatProfile 排版配置，一次批处理内不可变
type FormatProfile struct {
	Font                   string  `json:"font" yaml:"font" mapstructure:"font"`
	FontSizeHalfPoints     int     `json:"fontSize" yaml:"fontSize" mapstructure:"font_size"`
	LineSpacingMultiplier  float64 `json:"lineSpacing" yaml:"lineSpacing" mapstructure:"line_spacing"`
	ParagraphSpacingPoints float64 `json:"paragraphSpacing" yaml:"paragraphSpacing" mapstructure:"paragraph_spacing"`
	FirstLineIndentChars   int     `json:"firstLineIndent" yaml:"firstLineIndent" mapstructure:"first_line_indent"`
}

// DefaultProfile 默认排版配置 (微软雅黑, 小四, 2.2 倍行距)
func DefaultProfile() FormatProfile {
	return FormatProfile{
		Font:                   "微软雅黑",
		FontSizeHalfPoints:     24,
		LineSpacingMultiplier:  2.2,
		ParagraphSpacingPoints: 10,
		FirstLineIndentChars:   2,
	}
}

// Validate reports every invalid field at once.
func (p FormatProfile) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Font) == "" {
		errs = append(errs, errors.New("font is required"))
	}
	if p.FontSizeHalfPoints <= 0 {
		errs = append(errs, fmt.Errorf("fontSize must be positive, got %d", p.FontSizeHalfPoints))
	}
	if p.LineSpacingMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("lineSpacing must be positive, got %g", p.LineSpacingMultiplier))
	}
	if p.ParagraphSpacingPoints < 0 {
		errs = append(errs, fmt.Errorf("paragraphSpacing must not be negative, got %g", p.ParagraphSpacingPoints))
	}
	if p.FirstLineIndentChars < 0 {
		errs = append(errs, fmt.Errorf("firstLineIndent must not be negative, got %d", p.FirstLineIndentChars))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, errors.Join(errs...))
	}
	return nil
}

// IndentMode selects how the first-line indent is derived.
type IndentMode string

const (
	// IndentFixed always indents two full-width characters of 240 twips.
	IndentFixed IndentMode = "fixed"
	// IndentConfigurable uses FirstLineIndentChars at the profile's font size.
	IndentConfigurable IndentMode = "configurable"
)

// ParseIndentMode 解析缩进模式
func ParseIndentMode(s string) (IndentMode, error) {
	switch IndentMode(strings.ToLower(strings.TrimSpace(s))) {
	case IndentFixed:
		return IndentFixed, nil
	case IndentConfigurable:
		return IndentConfigurable, nil
	default:
		return "", fmt.Errorf("unknown indent mode %q (want fixed or configurable)", s)
	}
}

// ImageLayout selects the display box of images.
type ImageLayout string

const (
	// ImageLayoutFixed renders every image in a 400x300 box, ignoring aspect ratio.
	ImageLayoutFixed ImageLayout = "fixed"
	// ImageLayoutAspect keeps the 400 width and derives the height from the image.
	ImageLayoutAspect ImageLayout = "aspect"
)

// ParseImageLayout 解析图片布局模式
func ParseImageLayout(s string) (ImageLayout, error) {
	switch ImageLayout(strings.ToLower(strings.TrimSpace(s))) {
	case ImageLayoutFixed:
		return ImageLayoutFixed, nil
	case ImageLayoutAspect:
		return ImageLayoutAspect, nil
	default:
		return "", fmt.Errorf("unknown image layout %q (want fixed or aspect)", s)
	}
}
