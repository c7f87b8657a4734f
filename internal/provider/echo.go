// ABOUTME: Echo provider for development and tests.
// ABOUTME: Replies with the latest user turn, no model behind it.

package provider

import "context"

// EchoProvider repeats the latest user message back. It is the fallback
// when no real provider is configured, so the gateway stays runnable
// end-to-end without credentials.
type EchoProvider struct{}

func NewEcho() *EchoProvider { return &EchoProvider{} }

func (p *EchoProvider) Name() string { return "echo" }

func (p *EchoProvider) Chat(ctx context.Context, model string, req Request) (*Response, error) {
	var last string
	for _, turn := range req.History {
		if turn.Role == RoleUser {
			last = turn.Content
		}
	}
	return &Response{Content: last, FinishReason: "stop"}, nil
}
