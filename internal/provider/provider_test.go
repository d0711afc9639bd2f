package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseModelID(t *testing.T) {
	p, m, err := ParseModelID("openai/gpt-4o-mini")
	if err != nil {
		t.Fatalf("ParseModelID: %v", err)
	}
	if p != "openai" || m != "gpt-4o-mini" {
		t.Fatalf("got %q/%q", p, m)
	}

	if _, m, err := ParseModelID("gemini/models/gemini-2.0-flash"); err != nil || m != "models/gemini-2.0-flash" {
		t.Fatalf("slash in model name should stay: %q, %v", m, err)
	}

	for _, bad := range []string{"", "noslash", "/model", "provider/"} {
		if _, _, err := ParseModelID(bad); err == nil {
			t.Errorf("ParseModelID(%q) should fail", bad)
		}
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(NewOpenAIProvider("openai", "http://localhost", ""))

	p, model, err := r.Resolve("openai/gpt-4o-mini")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Name() != "openai" || model != "gpt-4o-mini" {
		t.Fatalf("got %q/%q", p.Name(), model)
	}

	if _, _, err := r.Resolve("missing/model"); err == nil {
		t.Fatal("unknown provider should fail")
	}
}

func TestOpenAIChatCompletion(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": "hello"},
				"finish_reason": "stop",
			}},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", srv.URL, "test-key")
	resp, err := p.ChatCompletion(context.Background(), &ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []Message{
			{Role: RoleSystem, Content: "be nice"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if resp.Content != "hello" || resp.FinishReason != "stop" {
		t.Fatalf("resp = %+v", resp)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotBody["model"])
	}
	msgs, ok := gotBody["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
}

func TestOpenAIToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		tools, ok := body["tools"].([]any)
		if !ok || len(tools) != 1 {
			t.Errorf("tools = %v", body["tools"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      "http_request",
							"arguments": `{"url":"https://example.com"}`,
						},
					}},
				},
				"finish_reason": "tool_calls",
			}},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", srv.URL, "")
	resp, err := p.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "fetch it"}},
		Tools: []ToolDefinition{{
			Name:        "http_request",
			Description: "Make an HTTP request",
			Parameters:  map[string]any{"type": "object"},
		}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "http_request" {
		t.Errorf("tool call = %+v", tc)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		t.Fatalf("arguments not JSON: %v", err)
	}
	if args["url"] != "https://example.com" {
		t.Errorf("args = %v", args)
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", srv.URL, "")
	_, err := p.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error on 429")
	}
}
