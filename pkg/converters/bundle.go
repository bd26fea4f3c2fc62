package converters

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// Entry is one file placed into a bundle.
type Entry struct {
	Name string
	Data []byte
}

// Bundler 将多个输出文件打包
type Bundler interface {
	Bundle(entries []Entry) ([]byte, error)
}

// ZipBundler writes entries into a zip archive in the given order. Repeated
// names get a numeric suffix before the extension: a.docx, a_2.docx, a_3.docx.
type ZipBundler struct {
	Modified time.Time
}

func NewZipBundler() *ZipBundler {
	return &ZipBundler{}
}

func (b *ZipBundler) Bundle(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := b.Modified
	if modified.IsZero() {
		modified = time.Now()
	}

	names := UniqueNames(entryNames(entries))
	for i, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names[i],
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bundle entry %s: %w", names[i], err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("failed to write bundle entry %s: %w", names[i], err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close bundle: %w", err)
	}
	return buf.Bytes(), nil
}

func entryNames(entries []Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// UniqueNames resolves collisions case-sensitively, keeping first occurrences as-is.
func UniqueNames(names []string) []string {
	used := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		candidate := name
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for n := 2; used[candidate]; n++ {
			candidate = stem + "_" + strconv.Itoa(n) + ext
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}
