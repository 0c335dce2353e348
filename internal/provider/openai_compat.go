package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/batalabs/chatd/internal/domain"
)

var (
	openaiAPIBaseURL = "https://api.openai.com/v1"
	xaiAPIBaseURL    = "https://api.x.ai/v1"
)

// setOpenAIBaseURL overrides the OpenAI base URL (used in tests).
func setOpenAIBaseURL(url string) { openaiAPIBaseURL = url }

// setXAIBaseURL overrides the xAI base URL (used in tests).
func setXAIBaseURL(url string) { xaiAPIBaseURL = url }

// OpenAICompatProvider implements Provider for backends that speak the
// OpenAI chat completions wire format (OpenAI itself and xAI).
type OpenAICompatProvider struct {
	name    string
	label   string
	baseURL *string
}

// Name returns the provider name ("openai" or "xai").
func (p *OpenAICompatProvider) Name() string { return p.name }

// Complete sends a chat completion request and returns the reply text.
func (p *OpenAICompatProvider) Complete(apiKey, modelID string, history []domain.Message, temperature float64, maxTokens int) (string, Usage, error) {
	req := chatRequest{
		Model:       modelID,
		Messages:    buildChatMessages(history),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	return postChatCompletion(*p.baseURL, apiKey, p.name, req)
}

// ListModels retrieves the model list from the /models endpoint.
func (p *OpenAICompatProvider) ListModels(apiKey string) ([]string, error) {
	return listBearerModels(*p.baseURL, apiKey, p.label)
}

// ---------------------------------------------------------------------------
// OpenAI chat completions wire format
// ---------------------------------------------------------------------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	// Groq's native API names the output cap differently.
	MaxCompletionTokens int `json:"max_completion_tokens,omitempty"`
}

type chatUsage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

// buildChatMessages maps domain messages onto the wire format. System
// messages pass through inline; this format accepts them directly.
func buildChatMessages(history []domain.Message) []chatMessage {
	msgs := make([]chatMessage, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case "system", "user", "assistant":
			msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
		}
	}
	return msgs
}

// extractChatText handles both content shapes the format allows: a plain
// string or a list of text parts.
func extractChatText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var texts []string
		for _, p := range parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				texts = append(texts, t)
			}
		}
		return strings.TrimSpace(strings.Join(texts, "\n"))
	}
	return ""
}

func normalizeChatUsage(u *chatUsage) Usage {
	if u == nil {
		return Usage{}
	}
	return Usage{
		PromptTokens:     sanitizeCount(u.PromptTokens),
		CompletionTokens: sanitizeCount(u.CompletionTokens),
		TotalTokens:      sanitizeCount(u.TotalTokens),
	}
}

// postChatCompletion POSTs to {base}/chat/completions with bearer auth
// and decodes the first choice.
func postChatCompletion(baseURL, apiKey, providerName string, req chatRequest) (string, Usage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", Usage{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", Usage{}, decodeAPIError(resp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", Usage{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", Usage{}, &EmptyReplyError{Provider: providerName}
	}
	text := extractChatText(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", Usage{}, &EmptyReplyError{Provider: providerName}
	}
	return text, normalizeChatUsage(chatResp.Usage), nil
}

// listBearerModels GETs {base}/models with bearer auth and collects the
// data[].id values.
func listBearerModels(baseURL, apiKey, label string) ([]string, error) {
	httpReq, err := http.NewRequest(http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

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
		return nil, fmt.Errorf("no models returned by %s", label)
	}
	return models, nil
}

// decodeAPIError turns an HTTP error response into an *APIError,
// extracting the structured message when the body carries one.
func decodeAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(resp.Body)
	errType := ""
	errMessage := strings.TrimSpace(string(raw))
	if errMessage == "" {
		errMessage = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	var errResp struct {
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &errResp) == nil && errResp.Error != nil {
		if errResp.Error.Message != "" {
			errMessage = errResp.Error.Message
		}
		errType = errResp.Error.Type
		if errType == "" {
			errType = errResp.Error.Status
		}
	}
	return NewAPIError(resp.StatusCode, errType, errMessage, resp.Header)
}
