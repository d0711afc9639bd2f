// Package extract converts document bytes into plain text so agent
// nodes can reason over file contents. Dispatch is by MIME type.
package extract

import (
	"fmt"
	"io"
	"strings"
)

// ErrUnsupportedType reports a content type with no extractor.
type ErrUnsupportedType struct {
	ContentType string
}

func (e *ErrUnsupportedType) Error() string {
	return fmt.Sprintf("unsupported content type: %q", e.ContentType)
}

// Text reads r and returns a plain-text rendition of the content.
func Text(contentType string, r io.Reader) (string, error) {
	mime := strings.TrimSpace(strings.ToLower(strings.SplitN(contentType, ";", 2)[0]))

	switch {
	case mime == "text/html" || mime == "application/xhtml+xml":
		_, text, err := htmlText(r)
		return text, err
	case strings.HasPrefix(mime, "text/"), mime == "application/json":
		raw, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read text: %w", err)
		}
		return string(raw), nil
	case mime == "application/pdf":
		return pdfText(r)
	case mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return docxText(r)
	case mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return xlsxText(r)
	default:
		return "", &ErrUnsupportedType{ContentType: contentType}
	}
}
