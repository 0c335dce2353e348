package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/batalabs/chatd/internal/domain"
)

var geminiAPIBaseURL = "https://generativelanguage.googleapis.com"

// setGeminiBaseURL overrides the base URL (used in tests).
func setGeminiBaseURL(url string) { geminiAPIBaseURL = url }

// GeminiProvider implements Provider for Google's generateContent API.
type GeminiProvider struct{}

// Name returns "gemini".
func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     *int `json:"promptTokenCount"`
		CandidatesTokenCount *int `json:"candidatesTokenCount"`
		TotalTokenCount      *int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Complete sends a generateContent request. Assistant turns map to the
// "model" role; system turns are joined into systemInstruction; empty
// turns are dropped.
func (p *GeminiProvider) Complete(apiKey, modelID string, history []domain.Message, temperature float64, maxTokens int) (string, Usage, error) {
	var systemBlocks []string
	var contents []geminiContent
	for _, m := range history {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		switch m.Role {
		case "system":
			systemBlocks = append(systemBlocks, text)
		case "user":
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: text}}})
		case "assistant":
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: text}}})
		}
	}
	if len(contents) == 0 {
		contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: "Hello"}}}}
	}

	req := geminiRequest{Contents: contents}
	req.GenerationConfig.Temperature = temperature
	req.GenerationConfig.MaxOutputTokens = maxTokens
	if len(systemBlocks) > 0 {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(systemBlocks, "\n\n")}}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := geminiAPIBaseURL + "/v1beta/models/" + url.PathEscape(modelID) + ":generateContent"
	httpReq, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", Usage{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", Usage{}, decodeAPIError(resp)
	}

	var apiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", Usage{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(apiResp.Candidates) == 0 {
		return "", Usage{}, &EmptyReplyError{Provider: "gemini"}
	}

	var texts []string
	for _, part := range apiResp.Candidates[0].Content.Parts {
		if t := strings.TrimSpace(part.Text); t != "" {
			texts = append(texts, t)
		}
	}
	text := strings.TrimSpace(strings.Join(texts, "\n"))
	if text == "" {
		return "", Usage{}, &EmptyReplyError{Provider: "gemini"}
	}

	u := Usage{}
	if apiResp.UsageMetadata != nil {
		u.PromptTokens = sanitizeCount(apiResp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = sanitizeCount(apiResp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = sanitizeCount(apiResp.UsageMetadata.TotalTokenCount)
	}
	return text, u, nil
}

// ListModels retrieves chat-capable models. Models that advertise
// generation methods without generateContent are filtered out.
func (p *GeminiProvider) ListModels(apiKey string) ([]string, error) {
	httpReq, err := http.NewRequest(http.MethodGet, geminiAPIBaseURL+"/v1beta/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp)
	}

	var listResp struct {
		Models []struct {
			Name                       string   `json:"name"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	var ids []string
	for _, m := range listResp.Models {
		if m.SupportedGenerationMethods != nil && !containsString(m.SupportedGenerationMethods, "generateContent") {
			continue
		}
		ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
	}
	models := dedupeModels(ids)
	if len(models) == 0 {
		return nil, fmt.Errorf("no Gemini chat models returned")
	}
	return models, nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
