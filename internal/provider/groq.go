package provider

import (
	"github.com/batalabs/chatd/internal/domain"
)

var groqAPIBaseURL = "https://api.groq.com/openai/v1"

// setGroqBaseURL overrides the base URL (used in tests).
func setGroqBaseURL(url string) { groqAPIBaseURL = url }

// GroqProvider implements Provider for Groq's native chat API. The wire
// format is OpenAI-compatible except the output cap is named
// max_completion_tokens.
type GroqProvider struct{}

// Name returns "groq".
func (p *GroqProvider) Name() string { return "groq" }

// Complete sends a chat completion request to Groq.
func (p *GroqProvider) Complete(apiKey, modelID string, history []domain.Message, temperature float64, maxTokens int) (string, Usage, error) {
	req := chatRequest{
		Model:               modelID,
		Messages:            buildChatMessages(history),
		Temperature:         temperature,
		MaxCompletionTokens: maxTokens,
	}
	return postChatCompletion(groqAPIBaseURL, apiKey, "groq", req)
}

// ListModels retrieves the list of models from Groq.
func (p *GroqProvider) ListModels(apiKey string) ([]string, error) {
	return listBearerModels(groqAPIBaseURL, apiKey, "Groq")
}
