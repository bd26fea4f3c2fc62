package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, verbose = "", false
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeDocx(t *testing.T, dir, name, text string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestCompareCommand(t *testing.T) {
	dir := t.TempDir()
	l1 := filepath.Join(dir, "a.txt")
	l2 := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(l1, []byte("Alice\nBob\nAlice\n"), 0o644))
	require.NoError(t, os.WriteFile(l2, []byte("Bob\nCarol\n"), 0o644))

	out, err := run(t, "compare", "--json", l1, l2)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"onlyInList1": ["Alice", "Alice"],
		"onlyInList2": ["Carol"],
		"duplicatesInBoth": [{"name": "Alice", "count": 2}, {"name": "Bob", "count": 2}]
	}`, out)

	_, err = run(t, "compare", l1)
	assert.Error(t, err)
}

func TestFormatCommand(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	a := writeDocx(t, dir, "a.docx", "first")
	b := writeDocx(t, dir, "b.docx", "second")
	broken := filepath.Join(dir, "broken.docx")
	require.NoError(t, os.WriteFile(broken, []byte("nope"), 0o644))

	out, err := run(t, "format", "--no-history", "--out", outDir, "--preset", "official", "--size", "28", a, broken, b)
	require.NoError(t, err)
	assert.Contains(t, out, "completed: 2 succeeded, 1 failed of 3")
	assert.Contains(t, out, "failed (decode)")
	assert.FileExists(t, filepath.Join(outDir, "formatted_documents.zip"))

	out, err = run(t, "format", "--no-history", "--out", outDir, a)
	require.NoError(t, err)
	assert.Contains(t, out, "formatted_a.docx")
	assert.FileExists(t, filepath.Join(outDir, "formatted_a.docx"))

	_, err = run(t, "format", "--no-history", "--preset", "missing", a)
	assert.ErrorContains(t, err, "available: compact, default, official")

	_, err = run(t, "format", "--no-history", "--out", outDir, broken)
	assert.Error(t, err)
}

func TestFormatCommandExportsPreview(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	a := writeDocx(t, dir, "a.docx", "first")
	b := writeDocx(t, dir, "b.docx", "last one")

	out, err := run(t, "format", "--no-history", "--export-preview", "--out", outDir, a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "formatted_document.docx")

	data, err := os.ReadFile(filepath.Join(outDir, "formatted_document.docx"))
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var body []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			require.NoError(t, err)
			var buf bytes.Buffer
			_, err = buf.ReadFrom(rc)
			require.NoError(t, err)
			rc.Close()
			body = buf.Bytes()
		}
	}
	assert.Contains(t, string(body), "last one")
	assert.NotContains(t, string(body), ">first<")
}

func TestParagraphSpacingFlagDescribesBothSides(t *testing.T) {
	flag := formatCmd().Flags().Lookup("paragraph-spacing")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Usage, "before and after")
}
