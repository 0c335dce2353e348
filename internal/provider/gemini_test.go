package provider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/batalabs/chatd/internal/domain"
)

func TestGeminiComplete(t *testing.T) {
	var gotReq geminiRequest
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("x-goog-api-key") != "gk-test" {
			t.Errorf("x-goog-api-key = %q", r.Header.Get("x-goog-api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{
					{"text": "answer"},
				}}},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount":     21,
				"candidatesTokenCount": 8,
				"totalTokenCount":      29,
			},
		})
	}))
	defer srv.Close()
	setGeminiBaseURL(srv.URL)

	p := &GeminiProvider{}
	history := []domain.Message{
		{Role: "system", Content: "stay factual"},
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "earlier answer"},
		{Role: "user", Content: "   "},
		{Role: "user", Content: "followup"},
	}
	text, usage, err := p.Complete("gk-test", "gemini-2.0-flash", history, 0.4, 4096)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "answer" {
		t.Errorf("text = %q", text)
	}
	if !strings.HasSuffix(gotPath, "/v1beta/models/gemini-2.0-flash:generateContent") {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.SystemInstruction == nil || gotReq.SystemInstruction.Parts[0].Text != "stay factual" {
		t.Errorf("systemInstruction = %+v", gotReq.SystemInstruction)
	}
	if len(gotReq.Contents) != 3 {
		t.Fatalf("contents = %+v", gotReq.Contents)
	}
	if gotReq.Contents[1].Role != "model" {
		t.Errorf("assistant turn mapped to %q, want model", gotReq.Contents[1].Role)
	}
	if gotReq.GenerationConfig.Temperature != 0.4 || gotReq.GenerationConfig.MaxOutputTokens != 4096 {
		t.Errorf("generationConfig = %+v", gotReq.GenerationConfig)
	}
	if usage.PromptTokens == nil || *usage.PromptTokens != 21 {
		t.Errorf("prompt tokens = %v", usage.PromptTokens)
	}
	if usage.TotalTokens == nil || *usage.TotalTokens != 29 {
		t.Errorf("total tokens = %v", usage.TotalTokens)
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()
	setGeminiBaseURL(srv.URL)

	p := &GeminiProvider{}
	_, _, err := p.Complete("key", "gemini-2.0-flash", []domain.Message{{Role: "user", Content: "hi"}}, 0.5, 100)
	if err == nil {
		t.Fatal("want error for empty candidates")
	}
}

func TestGeminiListModelsFiltersGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "models/gemini-2.0-flash", "supportedGenerationMethods": []string{"generateContent"}},
				{"name": "models/embedding-001", "supportedGenerationMethods": []string{"embedContent"}},
				{"name": "models/gemini-pro"},
			},
		})
	}))
	defer srv.Close()
	setGeminiBaseURL(srv.URL)

	p := &GeminiProvider{}
	models, err := p.ListModels("key")
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"gemini-2.0-flash", "gemini-pro"}
	if len(models) != 2 || models[0] != want[0] || models[1] != want[1] {
		t.Errorf("models = %v, want %v", models, want)
	}
}
