package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/pkg/logger"
)

func buildDocx(t *testing.T, body string, rels string, parts map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	add(documentPart, []byte(`<?xml version="1.0"?><w:document xmlns:w="`+nsWordML+
		`" xmlns:r="`+nsRelationships+`" xmlns:a="`+nsDrawingML+`"><w:body>`+body+`</w:body></w:document>`))
	if rels != "" {
		add(relsPart, []byte(`<Relationships xmlns="`+nsPackageRels+`">`+rels+`</Relationships>`))
	}
	for name, data := range parts {
		add(name, data)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func tinyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			b.WriteString(c.Data)
		case c.DataAtom == atom.Br:
			b.WriteString("\n")
		}
	}
	return b.String()
}

func TestDecodeParagraphsAndHeadings(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:pPr><w:pStyle w:val="Heading2"/><w:jc w:val="center"/></w:pPr><w:r><w:t>Title</w:t></w:r></w:p>`+
			`<w:p><w:pPr><w:jc w:val="both"/></w:pPr><w:r><w:t xml:space="preserve">Hello </w:t></w:r><w:r><w:t>world</w:t><w:br/><w:t>again</w:t></w:r></w:p>`+
			`<w:p/>`,
		"", nil)

	doc, err := NewDecoder(logger.NewNop()).Decode(context.Background(), "a.docx", data)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Paragraphs)

	first := doc.Body.FirstChild
	require.NotNil(t, first)
	assert.Equal(t, atom.H2, first.DataAtom)
	assert.Equal(t, "Title", textOf(first))
	assert.Equal(t, []html.Attribute{{Key: AlignAttr, Val: "center"}}, first.Attr)

	second := first.NextSibling
	assert.Equal(t, atom.P, second.DataAtom)
	assert.Equal(t, "Hello world\nagain", textOf(second))
	assert.Equal(t, "justify", second.Attr[0].Val)

	third := second.NextSibling
	assert.Equal(t, "", textOf(third))
	assert.Equal(t, "left", third.Attr[0].Val)

	rendered, err := doc.HTML()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rendered, `<h2 data-align="center">Title</h2>`))
}

func TestDecodeEmbeddedImage(t *testing.T) {
	pic := tinyPNG(t, 4, 3)
	data := buildDocx(t,
		`<w:p><w:r><w:t>Caption</w:t></w:r><w:r><w:drawing><a:graphic><a:graphicData><a:blip r:embed="rId5"/></a:graphicData></a:graphic></w:drawing></w:r></w:p>`,
		`<Relationship Id="rId5" Type="`+relTypeImage+`" Target="media/image1.png"/>`,
		map[string][]byte{"word/media/image1.png": pic})

	doc, err := NewDecoder(logger.NewNop()).Decode(context.Background(), "img.docx", data)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Images)

	p := doc.Body.FirstChild
	img := p.LastChild
	require.Equal(t, atom.Img, img.DataAtom)
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pic)
	assert.Equal(t, want, img.Attr[0].Val)
}

func TestDecodeDanglingImageIsSkipped(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:drawing><a:blip r:embed="rId9"/></w:drawing></w:r></w:p>`,
		`<Relationship Id="rId9" Type="`+relTypeImage+`" Target="media/missing.png"/>`, nil)

	doc, err := NewDecoder(logger.NewNop()).Decode(context.Background(), "x.docx", data)
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Images)
	assert.Nil(t, doc.Body.FirstChild.FirstChild)
}

func TestDecodeTableIsOpaqueBlock(t *testing.T) {
	data := buildDocx(t,
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>A1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>B1</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`+
			`<w:p><w:r><w:t>after</w:t></w:r></w:p>`,
		"", nil)

	doc, err := NewDecoder(logger.NewNop()).Decode(context.Background(), "t.docx", data)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Tables)
	assert.Equal(t, 1, doc.Paragraphs)

	rendered, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, rendered, "<td>A1</td><td>B1</td>")
	assert.Contains(t, rendered, `<p data-align="left">after</p>`)
}

func TestDecodeRejectsInvalidInput(t *testing.T) {
	dec := NewDecoder(logger.NewNop())

	legacy := append(append([]byte{}, oleSignature...), make([]byte, 64)...)
	_, err := dec.Decode(context.Background(), "old.doc", legacy)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "old.doc", de.Filename)
	assert.ErrorIs(t, err, ErrLegacyFormat)

	_, err = dec.Decode(context.Background(), "junk.docx", []byte("not a zip"))
	require.ErrorAs(t, err, &de)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, _ = zw.Create("hello.txt")
	require.NoError(t, zw.Close())
	_, err = dec.Decode(context.Background(), "plain.zip", buf.Bytes())
	assert.ErrorIs(t, err, ErrNotDocx)
}

func TestDecodeHonorsCancellation(t *testing.T) {
	data := buildDocx(t, `<w:p><w:r><w:t>x</w:t></w:r></w:p>`, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDecoder(logger.NewNop()).Decode(ctx, "x.docx", data)
	assert.True(t, errors.Is(err, context.Canceled))
}

func paragraphStyle() *models.ParagraphStyle {
	return &models.ParagraphStyle{
		Font:           "宋体",
		SizeHalfPoints: 24,
		LineTwips:      528,
		LineRule:       "auto",
		BeforeTwips:    200,
		AfterTwips:     200,
		FirstLineTwips: 480,
		Justification:  "both",
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	pic := tinyPNG(t, 8, 6)
	elements := []models.StyledElement{
		{ContentElement: models.NewParagraph("Hello\nline two & more", 0), Paragraph: paragraphStyle()},
		{
			ContentElement: models.NewImage("data:image/png;base64,"+base64.StdEncoding.EncodeToString(pic), 0),
			Image:          &models.ImageStyle{WidthPx: 400, HeightPx: 300, Justification: "center", BeforeTwips: 600, AfterTwips: 600},
		},
	}

	out, err := NewEncoder(logger.NewNop()).Encode(context.Background(), "r.docx", elements)
	require.NoError(t, err)

	pkg, err := openArchive(out)
	require.NoError(t, err)
	docXML, err := pkg.read(documentPart)
	require.NoError(t, err)
	s := string(docXML)
	assert.Contains(t, s, `w:line="528" w:lineRule="auto"`)
	assert.Contains(t, s, `<w:ind w:firstLine="480"/>`)
	assert.Contains(t, s, `w:eastAsia="宋体"`)
	assert.Contains(t, s, `<w:sz w:val="24"/><w:szCs w:val="24"/>`)
	assert.Contains(t, s, `<wp:extent cx="3810000" cy="2857500"/>`)
	assert.Contains(t, s, `line two &amp; more`)
	assert.True(t, pkg.has("word/media/image1.png"))
	assert.True(t, pkg.has("[Content_Types].xml"))

	doc, err := NewDecoder(logger.NewNop()).Decode(context.Background(), "r.docx", out)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Paragraphs)
	assert.Equal(t, 1, doc.Images)
	assert.Equal(t, "Hello\nline two & more", textOf(doc.Body.FirstChild))
}

func TestEncodeRejectsBadImageSource(t *testing.T) {
	enc := NewEncoder(logger.NewNop())
	style := &models.ImageStyle{WidthPx: 400, HeightPx: 300}

	for _, src := range []string{
		"http://example.com/a.png",
		"data:image/png,rawbytes",
		"data:image/png;base64,!!!",
		"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("plain text, not an image")),
	} {
		_, err := enc.Encode(context.Background(), "bad.docx", []models.StyledElement{
			{ContentElement: models.NewImage(src, 0), Image: style},
		})
		var ee *EncodeError
		assert.ErrorAs(t, err, &ee, src)
	}
}

func TestEncodeEmptyDocument(t *testing.T) {
	out, err := NewEncoder(logger.NewNop()).Encode(context.Background(), "empty.docx", nil)
	require.NoError(t, err)

	doc, err := NewDecoder(logger.NewNop()).Decode(context.Background(), "empty.docx", out)
	require.NoError(t, err)
	assert.Nil(t, doc.Body.FirstChild)
}

func wmfBytes() []byte {
	return append([]byte{0xD7, 0xCD, 0xC6, 0x9A}, make([]byte, 40)...)
}

func emfBytes() []byte {
	b := make([]byte, 88)
	b[0] = 0x01
	copy(b[40:], " EMF")
	return b
}

func TestDecodeMetafileImagesKeepTheirType(t *testing.T) {
	body := `<w:p><w:r><w:drawing><a:blip r:embed="rId1"/></w:drawing></w:r>` +
		`<w:r><w:drawing><a:blip r:embed="rId2"/></w:drawing></w:r>` +
		`<w:r><w:drawing><a:blip r:embed="rId3"/></w:drawing></w:r></w:p>`
	rels := `<Relationship Id="rId1" Type="` + relTypeImage + `" Target="media/image1.wmf"/>` +
		`<Relationship Id="rId2" Type="` + relTypeImage + `" Target="media/image2.emf"/>` +
		`<Relationship Id="rId3" Type="` + relTypeImage + `" Target="media/image3.bin"/>`
	types := `<Types xmlns="` + nsContentTypes + `"><Default Extension="wmf" ContentType="image/x-wmf"/>` +
		`<Override PartName="/word/media/image3.bin" ContentType="image/emf"/></Types>`
	data := buildDocx(t, body, rels, map[string][]byte{
		"[Content_Types].xml":   []byte(types),
		"word/media/image1.wmf": wmfBytes(),
		"word/media/image2.emf": emfBytes(),
		"word/media/image3.bin": []byte("opaque"),
	})

	doc, err := NewDecoder(logger.NewNop()).Decode(context.Background(), "clipart.docx", data)
	require.NoError(t, err)
	require.Equal(t, 3, doc.Images)

	var srcs []string
	for c := doc.Body.FirstChild.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom == atom.Img {
			srcs = append(srcs, c.Attr[0].Val)
		}
	}
	require.Len(t, srcs, 3)
	assert.True(t, strings.HasPrefix(srcs[0], "data:image/x-wmf;base64,"))
	assert.True(t, strings.HasPrefix(srcs[1], "data:image/x-emf;base64,"))
	assert.True(t, strings.HasPrefix(srcs[2], "data:image/x-emf;base64,"))
}

func TestEncodeMetafileImages(t *testing.T) {
	style := &models.ImageStyle{WidthPx: 400, HeightPx: 300, Justification: "center"}
	elements := []models.StyledElement{
		{ContentElement: models.NewImage("data:image/x-wmf;base64,"+base64.StdEncoding.EncodeToString(wmfBytes()), 0), Image: style},
		// type recovered from the header even when the declaration is generic
		{ContentElement: models.NewImage("data:application/octet-stream;base64,"+base64.StdEncoding.EncodeToString(emfBytes()), 1), Image: style},
		{ContentElement: models.NewImage("data:image/emf;base64,"+base64.StdEncoding.EncodeToString([]byte("EMF+ record stream")), 2), Image: style},
	}

	out, err := NewEncoder(logger.NewNop()).Encode(context.Background(), "clipart.docx", elements)
	require.NoError(t, err)

	pkg, err := openArchive(out)
	require.NoError(t, err)
	assert.True(t, pkg.has("word/media/image1.wmf"))
	assert.True(t, pkg.has("word/media/image2.emf"))
	assert.True(t, pkg.has("word/media/image3.emf"))
	types, err := pkg.read("[Content_Types].xml")
	require.NoError(t, err)
	assert.Contains(t, string(types), `<Default Extension="wmf" ContentType="image/x-wmf"/>`)
	assert.Contains(t, string(types), `<Default Extension="emf" ContentType="image/x-emf"/>`)

	_, err = NewEncoder(logger.NewNop()).Encode(context.Background(), "bad.docx", []models.StyledElement{
		{ContentElement: models.NewImage("data:application/octet-stream;base64,"+base64.StdEncoding.EncodeToString([]byte("??")), 0), Image: style},
	})
	var ee *EncodeError
	assert.ErrorAs(t, err, &ee)
}
