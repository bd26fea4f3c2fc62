package converters

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/docformat/internal/models"
)

func TestNewPreview(t *testing.T) {
	snap := NewPreview("a.docx", []models.ContentElement{
		models.NewParagraph("one", 0),
		models.NewImage("data:image/png;base64,AA", 0),
		models.NewParagraph("two", 1),
	})

	assert.Equal(t, "a.docx", snap.Filename)
	assert.Equal(t, "one\n\ntwo", snap.Text)
	assert.Equal(t, []string{"data:image/png;base64,AA"}, snap.Images)
	assert.Equal(t, 2, snap.ParagraphCount)
	assert.Equal(t, 1, snap.ImageCount)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestTruncated(t *testing.T) {
	assert.Equal(t, "短文本", Truncated("短文本", 10))
	assert.Equal(t, "排版…", Truncated("排版工具", 2))
	assert.Equal(t, "", Truncated("abc", 0))
}

func TestUniqueNames(t *testing.T) {
	got := UniqueNames([]string{"formatted_a.docx", "formatted_b.docx", "formatted_a.docx", "formatted_a.docx", "x"})
	assert.Equal(t, []string{"formatted_a.docx", "formatted_b.docx", "formatted_a_2.docx", "formatted_a_3.docx", "x"}, got)
}

func TestZipBundlerBundle(t *testing.T) {
	data, err := NewZipBundler().Bundle([]Entry{
		{Name: "formatted_a.docx", Data: []byte("A")},
		{Name: "formatted_a.docx", Data: []byte("B")},
	})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	want := map[string]string{"formatted_a.docx": "A", "formatted_a_2.docx": "B"}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		assert.Equal(t, want[f.Name], string(body), f.Name)
	}
}
