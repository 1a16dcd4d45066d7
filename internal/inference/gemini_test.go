package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func geminiTestResponse(text string) string {
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]interface{}{{"text": text}},
					"role":  "model",
				},
				"finishReason": "STOP",
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestClient(serverURL string) *GeminiClient {
	cfg := DefaultGeminiConfig("test-key")
	cfg.BaseURL = serverURL
	cfg.RateLimit = time.Millisecond
	return NewGeminiClientWithConfig(cfg)
}

func TestCompleteWithSystem(t *testing.T) {
	var gotReq GeminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Write([]byte(geminiTestResponse("hello back")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.CompleteWithSystem(context.Background(), "system text", "user text")
	if err != nil {
		t.Fatalf("CompleteWithSystem failed: %v", err)
	}
	if got != "hello back" {
		t.Errorf("expected 'hello back', got %q", got)
	}
	if gotReq.SystemInstruction == nil || gotReq.SystemInstruction.Parts[0].Text != "system text" {
		t.Error("system instruction not forwarded")
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Parts[0].Text != "user text" {
		t.Error("user prompt not forwarded")
	}
}

func TestCompleteUsesDefaultSystemPrompt(t *testing.T) {
	var gotReq GeminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(geminiTestResponse("ok")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Complete(context.Background(), "prompt"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if gotReq.SystemInstruction == nil || gotReq.SystemInstruction.Parts[0].Text == "" {
		t.Error("expected default system prompt to be applied")
	}
}

func TestCompleteWithSchema(t *testing.T) {
	var gotReq GeminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(geminiTestResponse(`{"answer":42}`)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	schema := `{"type":"object","properties":{"answer":{"type":"integer"}}}`
	got, err := client.CompleteWithSchema(context.Background(), "sys", "user", schema)
	if err != nil {
		t.Fatalf("CompleteWithSchema failed: %v", err)
	}
	if got != `{"answer":42}` {
		t.Errorf("unexpected response: %q", got)
	}
	if gotReq.GenerationConfig.ResponseMimeType != "application/json" {
		t.Error("expected application/json mime type")
	}
	if gotReq.GenerationConfig.ResponseSchema == nil {
		t.Error("expected response schema in request")
	}
}

func TestCompleteWithSchemaEmptySchema(t *testing.T) {
	client := NewGeminiClient("key")
	if _, err := client.CompleteWithSchema(context.Background(), "", "user", "  "); err == nil {
		t.Error("expected error for empty schema")
	}
}

func TestCompleteWithSchemaNotSupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"Unknown field response_schema","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CompleteWithSchema(context.Background(), "", "user", `{"type":"object"}`)
	if !errors.Is(err, ErrSchemaNotSupported) {
		t.Errorf("expected ErrSchemaNotSupported, got %v", err)
	}
}

func TestRateLimitRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(geminiTestResponse("after retry")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if got != "after retry" {
		t.Errorf("unexpected response: %q", got)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestMissingAPIKey(t *testing.T) {
	client := NewGeminiClient("")
	if _, err := client.Complete(context.Background(), "prompt"); err == nil {
		t.Error("expected error without API key")
	}
}

func TestAPIErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Complete(context.Background(), "prompt"); err == nil {
		t.Error("expected error for API error body")
	}
}

func TestEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Complete(context.Background(), "prompt"); err == nil {
		t.Error("expected error for empty candidates")
	}
}
