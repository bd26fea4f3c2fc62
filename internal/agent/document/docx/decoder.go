package docx

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/feichai0017/docformat/pkg/logger"
)

// AlignAttr carries the normalized paragraph alignment on decoded blocks.
const AlignAttr = "data-align"

// Decoded is the HTML block tree produced from one document.
type Decoded struct {
	Filename string
	// Body is the <body> element; its children are the top-level blocks.
	Body       *html.Node
	Paragraphs int
	Tables     int
	Images     int
}

// HTML renders the block tree.
func (d *Decoded) HTML() (string, error) {
	var buf bytes.Buffer
	for c := d.Body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Decoder converts WordprocessingML packages into HTML block trees.
type Decoder struct {
	logger logger.Logger
}

func NewDecoder(log logger.Logger) *Decoder {
	return &Decoder{logger: log.Named("docx.decoder")}
}

func (d *Decoder) CanDecode(ext string) bool {
	switch strings.ToLower(ext) {
	case ".docx", ".doc":
		return true
	}
	return false
}

// Decode parses data. Every failure is reported as *DecodeError.
func (d *Decoder) Decode(ctx context.Context, filename string, data []byte) (*Decoded, error) {
	doc, err := d.decode(ctx, filename, data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &DecodeError{Filename: filename, Err: err}
	}
	d.logger.Debug("Document decoded",
		logger.String("filename", filename),
		logger.Int("paragraphs", doc.Paragraphs),
		logger.Int("tables", doc.Tables),
		logger.Int("images", doc.Images),
	)
	return doc, nil
}

func (d *Decoder) decode(ctx context.Context, filename string, data []byte) (*Decoded, error) {
	pkg, err := openArchive(data)
	if err != nil {
		return nil, err
	}
	rels, err := pkg.relationships()
	if err != nil {
		return nil, err
	}
	types, err := pkg.contentTypes()
	if err != nil {
		return nil, err
	}
	body, err := pkg.read(documentPart)
	if err != nil {
		return nil, err
	}

	w := &walker{
		ctx:    ctx,
		pkg:    pkg,
		rels:   rels,
		types:  types,
		dec:    xml.NewDecoder(bytes.NewReader(body)),
		out:    &Decoded{Filename: filename, Body: newElement(atom.Body)},
		images: make(map[string]string),
	}
	w.dec.Strict = false
	if err := w.walkBody(); err != nil {
		return nil, err
	}
	return w.out, nil
}

// walker streams word/document.xml and appends blocks to out.Body.
type walker struct {
	ctx    context.Context
	pkg    *archive
	rels   map[string]relationship
	types  *partTypes
	dec    *xml.Decoder
	out    *Decoded
	images map[string]string // relationship id -> data uri
}

func (w *walker) walkBody() error {
	var inBody bool
	for {
		tok, err := w.dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parsing %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "body" {
				inBody = true
				continue
			}
			if !inBody {
				continue
			}
			// sdt and other wrappers are transparent; only p and tbl produce blocks.
			switch t.Name.Local {
			case "p":
				if err := w.ctx.Err(); err != nil {
					return err
				}
				node, err := w.paragraph()
				if err != nil {
					return err
				}
				w.out.Body.AppendChild(node)
				w.out.Paragraphs++
			case "tbl":
				node, err := w.table()
				if err != nil {
					return err
				}
				w.out.Body.AppendChild(node)
				w.out.Tables++
			}
		case xml.EndElement:
			if t.Name.Local == "body" {
				inBody = false
			}
		}
	}
	return nil
}

// paragraph consumes tokens up to the matching </w:p>.
func (w *walker) paragraph() (*html.Node, error) {
	var (
		style, align string
		inPPr        bool
		depth        = 1
		inline       inlineBuilder
	)

	for depth > 0 {
		tok, err := w.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing paragraph: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				depth++
			case "pPr":
				inPPr = true
			case "pStyle":
				if inPPr && depth == 1 {
					style = attr(t, "val")
				}
			case "jc":
				if inPPr && depth == 1 {
					align = attr(t, "val")
				}
			case "t":
				var s string
				if err := w.dec.DecodeElement(&s, &t); err != nil {
					return nil, fmt.Errorf("reading text: %w", err)
				}
				inline.text(s)
			case "tab":
				if !inPPr {
					inline.text("\t")
				}
			case "br", "cr":
				if !inPPr && attr(t, "type") != "page" {
					inline.lineBreak()
				}
			case "drawing", "pict":
				src, err := w.drawing(t.Name.Local)
				if err != nil {
					return nil, err
				}
				if src != "" {
					inline.image(src)
					w.out.Images++
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				depth--
			case "pPr":
				inPPr = false
			}
		}
	}

	tag := atom.P
	if level := headingLevel(style); level > 0 {
		tag = headingAtoms[level-1]
	}
	node := newElement(tag)
	node.Attr = append(node.Attr, html.Attribute{Key: AlignAttr, Val: normalizeAlignment(align)})
	inline.appendTo(node)
	return node, nil
}

// drawing consumes a w:drawing or w:pict element and returns the image data URI.
func (w *walker) drawing(closing string) (string, error) {
	var relID string
	for {
		tok, err := w.dec.Token()
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", closing, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "blip":
				if id := attr(t, "embed"); id != "" && relID == "" {
					relID = id
				}
			case "imagedata":
				if id := attr(t, "id"); id != "" && relID == "" {
					relID = id
				}
			}
		case xml.EndElement:
			if t.Name.Local == closing {
				if relID == "" {
					return "", nil
				}
				return w.imageURI(relID)
			}
		}
	}
}

func (w *walker) imageURI(relID string) (string, error) {
	if uri, ok := w.images[relID]; ok {
		return uri, nil
	}
	rel, ok := w.rels[relID]
	if !ok || rel.Type != relTypeImage || rel.TargetMode == "External" {
		return "", nil
	}
	part := partPath(rel.Target)
	data, err := w.pkg.read(part)
	if err != nil {
		// dangling relationship: the image is simply missing from the package
		return "", nil
	}
	uri := "data:" + w.types.imageType(part, data) + ";base64," + base64.StdEncoding.EncodeToString(data)
	w.images[relID] = uri
	return uri, nil
}

// table consumes a w:tbl element into an opaque <table>. Nested tables are
// flattened into the enclosing cell.
func (w *walker) table() (*html.Node, error) {
	tbl := newElement(atom.Table)
	tbody := newElement(atom.Tbody)
	tbl.AppendChild(tbody)

	var (
		row   *html.Node
		cell  inlineBuilder
		inTc  bool
		depth = 1
	)
	for depth > 0 {
		tok, err := w.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing table: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				depth++
			case "tr":
				if depth == 1 {
					row = newElement(atom.Tr)
					tbody.AppendChild(row)
				}
			case "tc":
				if depth == 1 {
					cell = inlineBuilder{}
					inTc = true
				}
			case "t":
				var s string
				if err := w.dec.DecodeElement(&s, &t); err != nil {
					return nil, fmt.Errorf("reading cell text: %w", err)
				}
				if inTc {
					cell.text(s)
				}
			case "drawing", "pict":
				src, err := w.drawing(t.Name.Local)
				if err != nil {
					return nil, err
				}
				if src != "" && inTc {
					cell.image(src)
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				depth--
			case "p":
				if inTc {
					cell.lineBreak()
				}
			case "tc":
				if depth == 1 && row != nil {
					td := newElement(atom.Td)
					cell.trimTrailingBreak()
					cell.appendTo(td)
					row.AppendChild(td)
					inTc = false
				}
			}
		}
	}
	return tbl, nil
}

// inlineBuilder collects the inline content of one block in document order.
type inlineBuilder struct {
	parts []inlinePart
}

type inlinePart struct {
	text  string
	src   string
	br    bool
	isImg bool
}

func (b *inlineBuilder) text(s string) {
	if s == "" {
		return
	}
	if n := len(b.parts); n > 0 && !b.parts[n-1].isImg && !b.parts[n-1].br {
		b.parts[n-1].text += s
		return
	}
	b.parts = append(b.parts, inlinePart{text: s})
}

func (b *inlineBuilder) image(src string) {
	b.parts = append(b.parts, inlinePart{src: src, isImg: true})
}

func (b *inlineBuilder) lineBreak() {
	b.parts = append(b.parts, inlinePart{br: true})
}

func (b *inlineBuilder) trimTrailingBreak() {
	for n := len(b.parts); n > 0 && b.parts[n-1].br; n = len(b.parts) {
		b.parts = b.parts[:n-1]
	}
}

func (b *inlineBuilder) appendTo(parent *html.Node) {
	for _, p := range b.parts {
		switch {
		case p.isImg:
			img := newElement(atom.Img)
			img.Attr = []html.Attribute{{Key: "src", Val: p.src}}
			parent.AppendChild(img)
		case p.br:
			parent.AppendChild(newElement(atom.Br))
		default:
			parent.AppendChild(&html.Node{Type: html.TextNode, Data: p.text})
		}
	}
}

var headingAtoms = [6]atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}

func newElement(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// normalizeAlignment maps w:jc values onto CSS-like names; unset means left.
func normalizeAlignment(jc string) string {
	switch strings.ToLower(jc) {
	case "center":
		return "center"
	case "right", "end":
		return "right"
	case "both", "distribute", "justify":
		return "justify"
	default:
		return "left"
	}
}

// headingLevel extracts the heading level from a paragraph style id.
// "Heading1" -> 1, "Title" -> 1, "Subtitle" -> 2.
func headingLevel(style string) int {
	lower := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}
