package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/loomworks/loom/internal/extract"
)

// maxDocumentBytes caps how much of a remote document we download.
const maxDocumentBytes = 10 * 1024 * 1024

// ReadDocumentTool downloads a document and returns its text contents.
// PDF, DOCX, XLSX, HTML, and plain text are supported.
type ReadDocumentTool struct {
	client *http.Client
}

func NewReadDocumentTool() *ReadDocumentTool {
	return &ReadDocumentTool{client: &http.Client{}}
}

func (d *ReadDocumentTool) Name() string { return "read_document" }

func (d *ReadDocumentTool) Description() string {
	return "Download a document from a URL and extract its text. Supports PDF, DOCX, XLSX, HTML, and plain text."
}

func (d *ReadDocumentTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL of the document",
			},
			"content_type": map[string]any{
				"type":        "string",
				"description": "Override the MIME type when the server reports a wrong one",
			},
		},
		"required": []any{"url"},
	}
}

type readDocumentArgs struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

func (d *ReadDocumentTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	var args readDocumentArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, err
	}
	if args.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", args.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, args.URL)
	}

	contentType := args.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}

	text, err := extract.Text(contentType, io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("extract document: %w", err)
	}
	if len(text) > maxBodyBytes {
		text = text[:maxBodyBytes] + "\n... [truncated]"
	}

	return map[string]any{
		"text":         text,
		"content_type": contentType,
		"url":          args.URL,
	}, nil
}
