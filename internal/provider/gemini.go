// ABOUTME: Gemini and Vertex AI providers built on the google-genai SDK.
// ABOUTME: Both share one implementation; only the client backend differs.

package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultVertexLocation is used when the Vertex AI location is not configured.
const DefaultVertexLocation = "us-central1"

// GeminiProvider generates completions through the google-genai SDK,
// against either the Gemini Developer API or Vertex AI.
type GeminiProvider struct {
	client *genai.Client
	name   string
}

// NewGemini creates a provider for the Gemini Developer API.
// apiBase overrides the API endpoint when non-empty.
func NewGemini(ctx context.Context, apiKey, apiBase string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if apiBase != "" {
		cfg.HTTPOptions.BaseURL = apiBase
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{client: client, name: "gemini"}, nil
}

// NewVertex creates a provider for Vertex AI. Credentials come from
// application default credentials; location defaults to us-central1.
func NewVertex(ctx context.Context, project, location string) (*GeminiProvider, error) {
	if project == "" {
		return nil, fmt.Errorf("vertex project is required")
	}
	if location == "" {
		location = DefaultVertexLocation
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  project,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vertex client: %w", err)
	}
	return &GeminiProvider{client: client, name: "vertex_ai"}, nil
}

func (p *GeminiProvider) Name() string { return p.name }

// Chat sends the conversation to the model and returns its reply.
func (p *GeminiProvider) Chat(ctx context.Context, model string, req Request) (*Response, error) {
	modelName := normalizeModelName(model)

	contents := make([]*genai.Content, 0, len(req.History))
	for _, turn := range req.History {
		role := genai.RoleUser
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(turn.Content)},
		})
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("empty conversation history")
	}

	config := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.System)},
		}
	}

	result, err := p.client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	return parseResponse(result), nil
}

// normalizeModelName strips provider routing prefixes from a model spec.
func normalizeModelName(model string) string {
	model = strings.TrimPrefix(model, "vertex_ai/")
	model = strings.TrimPrefix(model, "gemini/")
	return model
}

func parseResponse(result *genai.GenerateContentResponse) *Response {
	resp := &Response{FinishReason: "stop"}

	if len(result.Candidates) > 0 {
		candidate := result.Candidates[0]

		var textParts []string
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					textParts = append(textParts, part.Text)
				}
			}
		}
		resp.Content = strings.Join(textParts, "\n")

		reason := strings.ToLower(string(candidate.FinishReason))
		if strings.Contains(reason, "length") || strings.Contains(reason, "max") {
			resp.FinishReason = "length"
		}
	}

	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptTokens:     result.UsageMetadata.PromptTokenCount,
			CompletionTokens: result.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      result.UsageMetadata.TotalTokenCount,
		}
	}

	return resp
}
