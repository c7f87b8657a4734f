// ABOUTME: Provider interface and chat types for LLM backends.
// ABOUTME: The agent loop talks to models only through this interface.

package provider

import "context"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of conversation history sent to the model.
type Turn struct {
	Role    string
	Content string
}

// Request carries everything a provider needs for one chat completion.
type Request struct {
	System      string
	History     []Turn
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int32
	CompletionTokens int32
	TotalTokens      int32
}

// Response is the provider's reply.
type Response struct {
	Content      string
	FinishReason string // "stop", "length", or "error"
	Usage        Usage
}

// Provider generates chat completions.
type Provider interface {
	Name() string
	Chat(ctx context.Context, model string, req Request) (*Response, error)
}
