// Package extract converts uploaded document bytes into plain UTF-8 text.
package extract

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFileType is returned when a file's mime type and extension
// match none of the supported document formats.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// Supported mime types.
const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

// Extractor extracts plain text from uploaded document bytes.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract converts raw file bytes into a single UTF-8 text string.
// The format is chosen by mime type first, then by filename extension.
// Returns ErrUnsupportedFileType for any format outside PDF, DOCX and
// plain text; callers must not attempt ingestion of such files.
func (e *Extractor) Extract(data []byte, mimeType, filename string) (string, error) {
	name := strings.ToLower(filename)

	switch {
	case mimeType == MimePDF || strings.HasSuffix(name, ".pdf"):
		return extractPDF(data)
	case mimeType == MimeDOCX || strings.HasSuffix(name, ".docx"):
		return extractDOCX(data)
	case mimeType == MimeText || strings.HasSuffix(name, ".txt"):
		return extractPlain(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, mimeType)
	}
}
