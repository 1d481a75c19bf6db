package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// docxDocumentXMLPath is the path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// wtTag matches <w:t>text</w:t> including attribute-bearing variants such as
// <w:t xml:space="preserve">. Matching text nodes directly keeps extraction
// working on real-world documents whose paragraph and run elements carry
// revision attributes.
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// wpEnd matches paragraph closes, used to preserve paragraph breaks.
var wpEnd = regexp.MustCompile(`</w:p>`)

// extractDOCX extracts text from .docx bytes. DOCX is a ZIP archive containing
// word/document.xml (OOXML); all <w:t> text nodes are collected, with
// paragraph boundaries rendered as newlines so the chunker can split on them.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docxDocumentXMLPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("extract DOCX: open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return "", fmt.Errorf("extract DOCX: read %s: %w", f.Name, err)
		}
		_ = rc.Close()
		docXML = buf.Bytes()
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docxDocumentXMLPath)
	}

	// Turn paragraph closes into newlines, then collect text nodes in order.
	body := wpEnd.ReplaceAllString(string(docXML), "</w:p>\n")
	var b strings.Builder
	for _, line := range strings.Split(body, "\n") {
		parts := wtTag.FindAllStringSubmatch(line, -1)
		if len(parts) == 0 {
			continue
		}
		for i, p := range parts {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(p[1]))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String()), nil
}
