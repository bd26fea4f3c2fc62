// Package image normalizes embedded pictures before they are written to DOCX.
package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// Processor transforms a decoded image.
type Processor interface {
	Process(img image.Image) (image.Image, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(img image.Image) (image.Image, error)

func (f ProcessorFunc) Process(img image.Image) (image.Image, error) { return f(img) }

// 缩放处理器: 超出尺寸的图片等比缩小
type FitProcessor struct {
	maxWidth  int
	maxHeight int
}

func NewFitProcessor(maxWidth, maxHeight int) *FitProcessor {
	return &FitProcessor{maxWidth: maxWidth, maxHeight: maxHeight}
}

func (p *FitProcessor) Process(img image.Image) (image.Image, error) {
	b := img.Bounds()
	if b.Dx() <= p.maxWidth && b.Dy() <= p.maxHeight {
		return img, nil
	}
	return imaging.Fit(img, p.maxWidth, p.maxHeight, imaging.Lanczos), nil
}

// Default limits keep a 400px display box sharp on high-DPI screens.
const (
	DefaultMaxWidth  = 1600
	DefaultMaxHeight = 1600
)

// nativeTypes are embedded as-is when no resize is needed.
var nativeTypes = map[string]imaging.Format{
	"image/png":  imaging.PNG,
	"image/jpeg": imaging.JPEG,
	"image/gif":  imaging.GIF,
}

var errNotDataURI = errors.New("not a base64 data URI")

// Normalizer re-encodes images that are oversized or in a format Word does
// not render everywhere (BMP, TIFF) as PNG or JPEG.
type Normalizer struct {
	maxWidth   int
	maxHeight  int
	processors []Processor
}

func NewNormalizer(maxWidth, maxHeight int, extra ...Processor) *Normalizer {
	return &Normalizer{
		maxWidth:   maxWidth,
		maxHeight:  maxHeight,
		processors: append([]Processor{NewFitProcessor(maxWidth, maxHeight)}, extra...),
	}
}

func NewDefaultNormalizer() *Normalizer {
	return NewNormalizer(DefaultMaxWidth, DefaultMaxHeight)
}

// Normalize returns src unchanged when nothing needs to be done. On error the
// caller should keep src.
func (n *Normalizer) Normalize(src string) (string, bool, error) {
	data, err := decodeDataURI(src)
	if err != nil {
		return src, false, err
	}
	mtype := mimetype.Detect(data).String()

	cfg, _, cfgErr := image.DecodeConfig(bytes.NewReader(data))
	format, native := nativeTypes[mtype]
	if native && cfgErr == nil && cfg.Width <= n.maxWidth && cfg.Height <= n.maxHeight {
		return src, false, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return src, false, fmt.Errorf("failed to decode %s image: %w", mtype, err)
	}
	for _, p := range n.processors {
		if img, err = p.Process(img); err != nil {
			return src, false, err
		}
	}

	if !native || format == imaging.GIF {
		format = imaging.PNG
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(90)); err != nil {
		return src, false, fmt.Errorf("failed to encode image: %w", err)
	}
	out := "image/png"
	if format == imaging.JPEG {
		out = "image/jpeg"
	}
	return "data:" + out + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), true, nil
}

func decodeDataURI(src string) ([]byte, error) {
	if !strings.HasPrefix(src, "data:") {
		return nil, errNotDataURI
	}
	_, payload, ok := strings.Cut(src, ";base64,")
	if !ok {
		return nil, errNotDataURI
	}
	return base64.StdEncoding.DecodeString(payload)
}
