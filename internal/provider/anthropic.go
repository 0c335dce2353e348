package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/batalabs/chatd/internal/domain"
)

var anthropicAPIBaseURL = "https://api.anthropic.com"

// setAnthropicBaseURL overrides the base URL (used in tests).
func setAnthropicBaseURL(url string) { anthropicAPIBaseURL = url }

// anthropicVersion returns the API version header value.
func anthropicVersion() string {
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_VERSION")); v != "" {
		return v
	}
	return "2023-06-01"
}

// AnthropicProvider implements Provider for Anthropic's Messages API.
type AnthropicProvider struct{}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  *int `json:"input_tokens"`
		OutputTokens *int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a Messages API request. System-role history entries are
// pulled out and joined into the request's system field; the messages
// array carries user and assistant turns only.
func (p *AnthropicProvider) Complete(apiKey, modelID string, history []domain.Message, temperature float64, maxTokens int) (string, Usage, error) {
	var systemBlocks []string
	var msgs []chatMessage
	for _, m := range history {
		switch m.Role {
		case "system":
			systemBlocks = append(systemBlocks, m.Content)
		case "user", "assistant":
			msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
		}
	}
	if len(msgs) == 0 {
		msgs = []chatMessage{{Role: "user", Content: "Hello"}}
	}

	req := anthropicRequest{
		Model:       modelID,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      strings.Join(systemBlocks, "\n\n"),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, anthropicAPIBaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion())

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", Usage{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", Usage{}, decodeAPIError(resp)
	}

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", Usage{}, fmt.Errorf("decoding response: %w", err)
	}

	var texts []string
	for _, block := range apiResp.Content {
		if block.Type != "text" {
			continue
		}
		if t := strings.TrimSpace(block.Text); t != "" {
			texts = append(texts, t)
		}
	}
	text := strings.TrimSpace(strings.Join(texts, "\n"))
	if text == "" {
		return "", Usage{}, &EmptyReplyError{Provider: "anthropic"}
	}
	return text, p.normalizeUsage(apiResp), nil
}

// normalizeUsage maps input/output token counts onto the common Usage
// shape. Total is derived only when both halves were reported.
func (p *AnthropicProvider) normalizeUsage(resp anthropicResponse) Usage {
	if resp.Usage == nil {
		return Usage{}
	}
	u := Usage{
		PromptTokens:     sanitizeCount(resp.Usage.InputTokens),
		CompletionTokens: sanitizeCount(resp.Usage.OutputTokens),
	}
	if u.PromptTokens != nil && u.CompletionTokens != nil {
		total := *u.PromptTokens + *u.CompletionTokens
		u.TotalTokens = &total
	}
	return u
}

// ListModels retrieves the list of models from Anthropic.
func (p *AnthropicProvider) ListModels(apiKey string) ([]string, error) {
	httpReq, err := http.NewRequest(http.MethodGet, anthropicAPIBaseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion())

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp)
	}

	var listResp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	ids := make([]string, 0, len(listResp.Data))
	for _, m := range listResp.Data {
		ids = append(ids, m.ID)
	}
	models := dedupeModels(ids)
	if len(models) == 0 {
		return nil, fmt.Errorf("no models returned by Anthropic")
	}
	return models, nil
}
