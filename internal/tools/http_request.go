package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// maxBodyBytes caps how much of a response body is returned to the model.
	maxBodyBytes   = 100 * 1024
	requestTimeout = 30 * time.Second
)

// HTTPRequestTool issues HTTP requests on behalf of an agent node.
type HTTPRequestTool struct {
	client *http.Client
}

func NewHTTPRequestTool() *HTTPRequestTool {
	return &HTTPRequestTool{client: &http.Client{}}
}

func (h *HTTPRequestTool) Name() string { return "http_request" }

func (h *HTTPRequestTool) Description() string {
	return "Send an HTTP request to a URL. Returns the status code, response headers, and body text."
}

func (h *HTTPRequestTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method (GET, POST, PUT, PATCH, DELETE, HEAD). Defaults to GET.",
			},
			"url": map[string]any{
				"type":        "string",
				"description": "Target URL",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers as key-value pairs",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body for methods that carry one",
			},
		},
		"required": []any{"url"},
	}
}

type httpRequestArgs struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

func (h *HTTPRequestTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	var args httpRequestArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, err
	}
	if args.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	method := strings.ToUpper(args.Method)
	if method == "" {
		method = "GET"
	}
	switch method {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD":
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %q", args.Method)
	}

	var bodyReader io.Reader
	if args.Body != "" {
		bodyReader = strings.NewReader(args.Body)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, args.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	body := string(raw)
	if len(raw) > maxBodyBytes {
		body = body[:maxBodyBytes] + "\n... [truncated]"
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}, nil
}
