package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/pkg/logger"
)

// EMUPerPixel converts 96 dpi pixels to English Metric Units.
const EMUPerPixel = 9525

// Encoder writes styled elements into a fresh WordprocessingML package.
type Encoder struct {
	logger logger.Logger
}

func NewEncoder(log logger.Logger) *Encoder {
	return &Encoder{logger: log.Named("docx.encoder")}
}

// media is one image part queued for word/media/.
type media struct {
	relID string
	name  string
	ext   string
	mime  string
	data  []byte
}

// Encode renders elements in order. Every failure is reported as *EncodeError.
func (e *Encoder) Encode(ctx context.Context, filename string, elements []models.StyledElement) ([]byte, error) {
	out, err := e.encode(ctx, elements)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &EncodeError{Filename: filename, Err: err}
	}
	e.logger.Debug("Document encoded",
		logger.String("filename", filename),
		logger.Int("elements", len(elements)),
		logger.Int("bytes", len(out)),
	)
	return out, nil
}

func (e *Encoder) encode(ctx context.Context, elements []models.StyledElement) ([]byte, error) {
	var (
		body   strings.Builder
		images []media
	)
	for i, el := range elements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case el.IsParagraph():
			if el.Paragraph == nil {
				return nil, fmt.Errorf("element %d: paragraph without paragraph style", i)
			}
			writeParagraph(&body, el.Text, el.Paragraph)
		case el.IsImage():
			if el.Image == nil {
				return nil, fmt.Errorf("element %d: image without image style", i)
			}
			m, err := decodeDataURI(el.SourceDataURI)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			n := len(images) + 1
			m.relID = "rIdImg" + strconv.Itoa(n)
			m.name = "image" + strconv.Itoa(n) + m.ext
			images = append(images, m)
			writeImage(&body, n, m, el.Image)
		default:
			return nil, fmt.Errorf("element %d: unknown kind %q", i, el.Kind)
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name string
		data string
	}{
		{"[Content_Types].xml", contentTypesXML(images)},
		{"_rels/.rels", packageRelsXML},
		{documentPart, documentXML(body.String())},
		{relsPart, documentRelsXML(images)},
	}
	for _, p := range parts {
		if err := writeZipEntry(zw, p.name, []byte(p.data)); err != nil {
			return nil, err
		}
	}
	for _, m := range images {
		if err := writeZipEntry(zw, "word/media/"+m.name, m.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing package: %w", err)
	}
	return buf.Bytes(), nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// decodeDataURI accepts data:<image mime>;base64,<payload>.
func decodeDataURI(uri string) (media, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return media{}, fmt.Errorf("image source is not a data URI")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return media{}, fmt.Errorf("image data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return media{}, fmt.Errorf("decoding image payload: %w", err)
	}
	if len(data) == 0 {
		return media{}, fmt.Errorf("image payload is empty")
	}

	declared := canonicalImageType(strings.TrimSuffix(header, ";base64"))
	mt := sniffImageType(data)
	if mt == "" {
		if !metafileTypes[declared] {
			return media{}, fmt.Errorf("unsupported image type %q", declared)
		}
		mt = declared
	}
	ext, ok := imageExtensions[mt]
	if !ok {
		if m := mimetype.Lookup(mt); m != nil {
			ext = m.Extension()
		}
	}
	if ext == "" {
		ext = ".bin"
	}
	return media{mime: mt, ext: ext, data: data}, nil
}

func writeParagraph(b *strings.Builder, text string, s *models.ParagraphStyle) {
	b.WriteString(`<w:p><w:pPr>`)
	fmt.Fprintf(b, `<w:spacing w:before="%d" w:after="%d" w:line="%d" w:lineRule="%s"/>`,
		s.BeforeTwips, s.AfterTwips, s.LineTwips, escapeAttr(s.LineRule))
	fmt.Fprintf(b, `<w:ind w:firstLine="%d"/>`, s.FirstLineTwips)
	fmt.Fprintf(b, `<w:jc w:val="%s"/>`, escapeAttr(s.Justification))
	b.WriteString(`</w:pPr><w:r>`)
	writeRunProps(b, s)
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString(`<w:br/>`)
		}
		if line == "" {
			continue
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(b, []byte(line))
		b.WriteString(`</w:t>`)
	}
	b.WriteString(`</w:r></w:p>`)
}

func writeRunProps(b *strings.Builder, s *models.ParagraphStyle) {
	font := escapeAttr(s.Font)
	fmt.Fprintf(b, `<w:rPr><w:rFonts w:ascii="%[1]s" w:hAnsi="%[1]s" w:eastAsia="%[1]s" w:cs="%[1]s"/>`, font)
	fmt.Fprintf(b, `<w:sz w:val="%[1]d"/><w:szCs w:val="%[1]d"/></w:rPr>`, s.SizeHalfPoints)
}

func writeImage(b *strings.Builder, n int, m media, s *models.ImageStyle) {
	cx := int64(s.WidthPx) * EMUPerPixel
	cy := int64(s.HeightPx) * EMUPerPixel
	b.WriteString(`<w:p><w:pPr>`)
	fmt.Fprintf(b, `<w:spacing w:before="%d" w:after="%d"/>`, s.BeforeTwips, s.AfterTwips)
	fmt.Fprintf(b, `<w:jc w:val="%s"/>`, escapeAttr(s.Justification))
	b.WriteString(`</w:pPr><w:r><w:drawing>`)
	fmt.Fprintf(b, `<wp:inline distT="0" distB="0" distL="0" distR="0"><wp:extent cx="%d" cy="%d"/>`, cx, cy)
	fmt.Fprintf(b, `<wp:docPr id="%d" name="Picture %d"/>`, n, n)
	fmt.Fprintf(b, `<a:graphic xmlns:a="%s"><a:graphicData uri="%s">`, nsDrawingML, nsPicture)
	fmt.Fprintf(b, `<pic:pic xmlns:pic="%s">`, nsPicture)
	fmt.Fprintf(b, `<pic:nvPicPr><pic:cNvPr id="%d" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`, n, m.name)
	fmt.Fprintf(b, `<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`, m.relID)
	fmt.Fprintf(b, `<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`, cx, cy)
	b.WriteString(`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`)
}

func escapeAttr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

// A4 portrait with 1 inch margins.
const sectionProps = `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/>` +
	`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="851" w:footer="992" w:gutter="0"/></w:sectPr>`

func documentXML(body string) string {
	return xmlHeader +
		`<w:document xmlns:w="` + nsWordML + `" xmlns:r="` + nsRelationships + `" xmlns:wp="` + nsWPDrawing + `">` +
		`<w:body>` + body + sectionProps + `</w:body></w:document>`
}

var packageRelsXML = xmlHeader +
	`<Relationships xmlns="` + nsPackageRels + `">` +
	`<Relationship Id="rId1" Type="` + relTypeOfficeDocument + `" Target="word/document.xml"/>` +
	`</Relationships>`

func documentRelsXML(images []media) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="` + nsPackageRels + `">`)
	for _, m := range images {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="media/%s"/>`, m.relID, relTypeImage, m.name)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func contentTypesXML(images []media) string {
	defaults := map[string]string{
		"rels": "application/vnd.openxmlformats-package.relationships+xml",
		"xml":  "application/xml",
	}
	for _, m := range images {
		defaults[strings.TrimPrefix(m.ext, ".")] = m.mime
	}
	exts := make([]string, 0, len(defaults))
	for ext := range defaults {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="` + nsContentTypes + `">`)
	for _, ext := range exts {
		fmt.Fprintf(&b, `<Default Extension="%s" ContentType="%s"/>`, ext, defaults[ext])
	}
	b.WriteString(`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`)
	b.WriteString(`</Types>`)
	return b.String()
}
