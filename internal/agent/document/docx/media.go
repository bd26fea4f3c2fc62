package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const contentTypesPart = "[Content_Types].xml"

// imageExtensions maps the picture types Word embeds to their part extension.
var imageExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpeg",
	"image/gif":     ".gif",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
	"image/x-wmf":   ".wmf",
	"image/x-emf":   ".emf",
	"image/svg+xml": ".svg",
}

// aliases seen in [Content_Types].xml of third-party writers.
var imageAliases = map[string]string{
	"image/jpg":      "image/jpeg",
	"image/pjpeg":    "image/jpeg",
	"image/x-png":    "image/png",
	"image/x-bmp":    "image/bmp",
	"image/x-ms-bmp": "image/bmp",
	"image/wmf":      "image/x-wmf",
	"image/emf":      "image/x-emf",
}

// extensionTypes is the fallback when a part has no declared content type.
var extensionTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".jpe":  "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".dib":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".wmf":  "image/x-wmf",
	".emf":  "image/x-emf",
	".svg":  "image/svg+xml",
}

func canonicalImageType(mt string) string {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if alias, ok := imageAliases[mt]; ok {
		return alias
	}
	return mt
}

// metafileTypes are trusted on declaration alone; their headers vary too much
// to sniff reliably.
var metafileTypes = map[string]bool{
	"image/x-wmf": true,
	"image/x-emf": true,
}

// metafileType recognizes Windows metafiles, which content sniffing misses.
func metafileType(data []byte) string {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0xD7, 0xCD, 0xC6, 0x9A}):
		return "image/x-wmf"
	case len(data) >= 44 && bytes.Equal(data[:4], []byte{0x01, 0x00, 0x00, 0x00}) && string(data[40:44]) == " EMF":
		return "image/x-emf"
	case len(data) >= 18 && (data[0] == 0x01 || data[0] == 0x02) && data[1] == 0x00 && data[2] == 0x09 && data[3] == 0x00:
		// WMF without the placeable header
		return "image/x-wmf"
	}
	return ""
}

// sniffImageType detects a picture type from its bytes; "" when unknown.
func sniffImageType(data []byte) string {
	if mt := metafileType(data); mt != "" {
		return mt
	}
	if mt := canonicalImageType(mimetype.Detect(data).String()); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return ""
}

type contentTypes struct {
	XMLName   xml.Name       `xml:"Types"`
	Defaults  []defaultType  `xml:"Default"`
	Overrides []overrideType `xml:"Override"`
}

type defaultType struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type overrideType struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// partTypes holds the declared content types of a package.
type partTypes struct {
	byExt  map[string]string
	byPart map[string]string
}

func (a *archive) contentTypes() (*partTypes, error) {
	pt := &partTypes{byExt: map[string]string{}, byPart: map[string]string{}}
	if !a.has(contentTypesPart) {
		return pt, nil
	}
	data, err := a.read(contentTypesPart)
	if err != nil {
		return nil, err
	}
	var ct contentTypes
	if err := xml.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", contentTypesPart, err)
	}
	for _, d := range ct.Defaults {
		pt.byExt[strings.ToLower(d.Extension)] = d.ContentType
	}
	for _, o := range ct.Overrides {
		pt.byPart[strings.TrimPrefix(o.PartName, "/")] = o.ContentType
	}
	return pt, nil
}

// imageType resolves a media part's type: the package declaration, then the
// part extension, then the bytes.
func (pt *partTypes) imageType(part string, data []byte) string {
	ext := strings.ToLower(path.Ext(part))
	declared := pt.byPart[part]
	if declared == "" && ext != "" {
		declared = pt.byExt[strings.TrimPrefix(ext, ".")]
	}
	if mt := canonicalImageType(declared); strings.HasPrefix(mt, "image/") {
		return mt
	}
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	if mt := sniffImageType(data); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
