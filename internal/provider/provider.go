package provider

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/batalabs/chatd/internal/domain"
)

// ---------------------------------------------------------------------------
// Provider interface
// ---------------------------------------------------------------------------

// Usage contains token accounting reported by a provider. Fields the
// provider did not report stay nil; a nil field is "unknown", never zero.
type Usage struct {
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
}

// ReportedCount returns the provider-reported count to attribute to a
// reply: completion tokens when present, total tokens otherwise.
func (u Usage) ReportedCount() (int, bool) {
	if u.CompletionTokens != nil {
		return *u.CompletionTokens, true
	}
	if u.TotalTokens != nil {
		return *u.TotalTokens, true
	}
	return 0, false
}

// Provider is the interface that each LLM backend implements.
type Provider interface {
	// Complete sends the full history as a single-shot chat completion and
	// returns the assistant text plus whatever usage the backend reported.
	// System-role messages in the history are mapped to each backend's own
	// system mechanism.
	Complete(apiKey, modelID string, history []domain.Message, temperature float64, maxTokens int) (string, Usage, error)

	// ListModels retrieves the available model IDs, deduplicated and sorted.
	ListModels(apiKey string) ([]string, error)

	// Name returns the provider name (e.g. "groq", "anthropic").
	Name() string
}

// ---------------------------------------------------------------------------
// Provider registry
// ---------------------------------------------------------------------------

// KnownProviders lists valid provider names for validation.
var KnownProviders = []string{"groq", "openai", "anthropic", "gemini", "xai"}

// Labels maps provider names to display labels.
var Labels = map[string]string{
	"groq":      "Groq",
	"openai":    "OpenAI",
	"anthropic": "Anthropic",
	"gemini":    "Google Gemini",
	"xai":       "xAI",
}

// GroqFallbackModels is used when the live model list cannot be fetched.
var GroqFallbackModels = []string{
	"llama-3.3-70b-versatile",
	"llama-3.1-8b-instant",
	"mixtral-8x7b-32768",
}

// GetProvider returns a Provider implementation by name.
func GetProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil, fmt.Errorf("no provider specified")
	case "groq":
		return &GroqProvider{}, nil
	case "openai":
		return &OpenAICompatProvider{name: "openai", label: "OpenAI", baseURL: &openaiAPIBaseURL}, nil
	case "xai":
		return &OpenAICompatProvider{name: "xai", label: "xAI", baseURL: &xaiAPIBaseURL}, nil
	case "anthropic":
		return &AnthropicProvider{}, nil
	case "gemini":
		return &GeminiProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: %s)", name, strings.Join(KnownProviders, ", "))
	}
}

// Label returns the display label for a provider name.
func Label(name string) string {
	if l, ok := Labels[strings.ToLower(name)]; ok {
		return l
	}
	return name
}

// FallbackModels returns local fallback models for providers that ship
// built-in defaults.
func FallbackModels(name string) []string {
	if strings.ToLower(name) == "groq" {
		out := make([]string, len(GroqFallbackModels))
		copy(out, GroqFallbackModels)
		return out
	}
	return nil
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// httpClient is shared by all adapters. 45s covers slow completions
// without hanging a worker forever.
var httpClient = &http.Client{Timeout: 45 * time.Second}

// dedupeModels trims, deduplicates, and sorts model IDs.
func dedupeModels(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// sanitizeCount returns nil for missing or negative counts.
func sanitizeCount(v *int) *int {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}
