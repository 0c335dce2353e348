package provider

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/batalabs/chatd/internal/domain"
)

func TestOpenAICompatComplete(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  hi there  "}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
		})
	}))
	defer srv.Close()
	setOpenAIBaseURL(srv.URL)

	p, err := GetProvider("openai")
	if err != nil {
		t.Fatal(err)
	}
	history := []domain.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	}
	text, usage, err := p.Complete("sk-test", "gpt-4o", history, 0.7, 1024)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "hi there" {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o" || gotReq.Temperature != 0.7 || gotReq.MaxTokens != 1024 {
		t.Errorf("request = %+v", gotReq)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
	if usage.PromptTokens == nil || *usage.PromptTokens != 12 {
		t.Errorf("prompt tokens = %v", usage.PromptTokens)
	}
	if usage.CompletionTokens == nil || *usage.CompletionTokens != 7 {
		t.Errorf("completion tokens = %v", usage.CompletionTokens)
	}
	if usage.TotalTokens == nil || *usage.TotalTokens != 19 {
		t.Errorf("total tokens = %v", usage.TotalTokens)
	}
}

func TestOpenAICompatContentParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": []map[string]string{
					{"text": "part one"},
					{"text": ""},
					{"text": "part two"},
				}}},
			},
		})
	}))
	defer srv.Close()
	setXAIBaseURL(srv.URL)

	p, _ := GetProvider("xai")
	text, usage, err := p.Complete("key", "grok-3", []domain.Message{{Role: "user", Content: "hi"}}, 0.5, 100)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "part one\npart two" {
		t.Errorf("text = %q", text)
	}
	if usage.PromptTokens != nil || usage.CompletionTokens != nil || usage.TotalTokens != nil {
		t.Errorf("usage should be absent, got %+v", usage)
	}
}

func TestOpenAICompatEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "   "}},
			},
		})
	}))
	defer srv.Close()
	setOpenAIBaseURL(srv.URL)

	p, _ := GetProvider("openai")
	_, _, err := p.Complete("key", "gpt-4o", []domain.Message{{Role: "user", Content: "hi"}}, 0.5, 100)
	var emptyErr *EmptyReplyError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("want EmptyReplyError, got %v", err)
	}
}

func TestOpenAICompatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited", "type": "rate_limit_error"},
		})
	}))
	defer srv.Close()
	setOpenAIBaseURL(srv.URL)

	p, _ := GetProvider("openai")
	_, _, err := p.Complete("key", "gpt-4o", []domain.Message{{Role: "user", Content: "hi"}}, 0.5, 100)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want APIError, got %v", err)
	}
	if apiErr.StatusCode != 429 || apiErr.ErrorType != "rate_limit_error" || apiErr.Message != "rate limited" {
		t.Errorf("error = %+v", apiErr)
	}
	if !apiErr.IsRetryable() {
		t.Error("429 should be retryable")
	}
	if apiErr.RetryAfterMs != 30000 {
		t.Errorf("retry after = %d", apiErr.RetryAfterMs)
	}
}

func TestListBearerModelsDedupeSort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"id": "zeta"},
				{"id": " alpha "},
				{"id": "zeta"},
				{"id": ""},
				{"id": "mid"},
			},
		})
	}))
	defer srv.Close()
	setGroqBaseURL(srv.URL)

	p, _ := GetProvider("groq")
	models, err := p.ListModels("key")
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(models) != len(want) {
		t.Fatalf("models = %v", models)
	}
	for i := range want {
		if models[i] != want[i] {
			t.Errorf("models[%d] = %q, want %q", i, models[i], want[i])
		}
	}
}

func TestListModelsEmptyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "  "}}})
	}))
	defer srv.Close()
	setGroqBaseURL(srv.URL)

	p, _ := GetProvider("groq")
	if _, err := p.ListModels("key"); err == nil {
		t.Fatal("want error for empty model list")
	}
}

func TestGroqUsesMaxCompletionTokens(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer srv.Close()
	setGroqBaseURL(srv.URL)

	p, _ := GetProvider("groq")
	if _, _, err := p.Complete("key", "llama-3.3-70b-versatile", []domain.Message{{Role: "user", Content: "hi"}}, 0.5, 512); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, ok := raw["max_completion_tokens"]; !ok {
		t.Error("request missing max_completion_tokens")
	}
	if _, ok := raw["max_tokens"]; ok {
		t.Error("request should not carry max_tokens")
	}
}
