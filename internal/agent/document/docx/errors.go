package docx

import (
	"errors"
	"fmt"
)

var (
	// ErrLegacyFormat marks an OLE2 (Word 97-2003) binary document.
	ErrLegacyFormat = errors.New("legacy binary .doc format is not supported, save the file as .docx")
	// ErrNotDocx marks a zip archive that is not a WordprocessingML package.
	ErrNotDocx = errors.New("not a valid DOCX file: missing word/document.xml")
)

// DecodeError 输入文档无法解析
type DecodeError struct {
	Filename string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Filename, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError 输出文档生成失败
type EncodeError struct {
	Filename string
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode %s: %v", e.Filename, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
