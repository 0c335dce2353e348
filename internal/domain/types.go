package domain

import (
	"strings"
	"time"
)

// ConversationKind distinguishes plain chats from agent sessions.
type ConversationKind string

const (
	KindChat  ConversationKind = "chat"
	KindAgent ConversationKind = "agent"
)

// Token sources for MessageMeta.TokenSource.
const (
	TokenSourceProvider  = "provider"
	TokenSourceEstimated = "estimated"
)

// MessageMeta carries per-message accounting and provenance. Usage fields
// are pointers so counts the provider never reported stay absent rather
// than collapsing to zero.
type MessageMeta struct {
	TokenCount       int     `json:"token_count"`
	TokenSource      string  `json:"token_source"`
	Provider         string  `json:"provider,omitempty"`
	Model            string  `json:"model,omitempty"`
	ResponseSeconds  float64 `json:"response_seconds,omitempty"`
	PromptTokens     *int    `json:"prompt_tokens,omitempty"`
	CompletionTokens *int    `json:"completion_tokens,omitempty"`
	TotalTokens      *int    `json:"total_tokens,omitempty"`
	FullResponse     string  `json:"full_response,omitempty"`
}

// Message is a single turn in a conversation.
type Message struct {
	Role    string      `json:"role"`
	Content string      `json:"content"`
	Meta    MessageMeta `json:"meta"`
}

// Conversation holds an ordered message history and its metadata.
type Conversation struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Kind      ConversationKind `json:"kind"`
	Messages  []Message        `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TitleFromContent derives a conversation title from the first user
// message: whitespace collapsed, truncated to 50 characters.
func TitleFromContent(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if len(title) > 50 {
		title = title[:50] + "..."
	}
	if title == "" {
		return "New conversation"
	}
	return title
}

// ModelPricing holds per-million-token pricing for a model.
type ModelPricing struct {
	InputPerMillion  float64 `json:"input"`
	OutputPerMillion float64 `json:"output"`
}
