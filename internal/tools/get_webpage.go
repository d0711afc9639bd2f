package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// GetWebpageTool fetches a URL and returns its readable text.
type GetWebpageTool struct {
	client *http.Client
}

func NewGetWebpageTool() *GetWebpageTool {
	return &GetWebpageTool{client: &http.Client{}}
}

func (g *GetWebpageTool) Name() string { return "get_webpage" }

func (g *GetWebpageTool) Description() string {
	return "Fetch a webpage and extract its title and readable text with markup removed."
}

func (g *GetWebpageTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL of the page to read",
			},
		},
		"required": []any{"url"},
	}
}

type getWebpageArgs struct {
	URL string `json:"url"`
}

func (g *GetWebpageTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	var args getWebpageArgs
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
	req.Header.Set("User-Agent", "Loom/1.0 (webpage reader)")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, args.URL)
	}

	// Cap raw HTML input to 1MB.
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, svg").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(s.Text())
	})
	text := collapseWhitespace(sb.String())
	if len(text) > maxBodyBytes {
		text = text[:maxBodyBytes] + "\n... [truncated]"
	}

	return map[string]any{
		"title": title,
		"text":  text,
		"url":   args.URL,
	}, nil
}

// collapseWhitespace squeezes runs of blank lines and spaces so the
// model gets dense readable text.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
