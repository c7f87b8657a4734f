// ABOUTME: Selects the provider backing a model spec.
// ABOUTME: Routing prefix wins, then configured providers, then echo.

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/warrenlabs/warren-gateway/internal/config"
)

// ForModel picks and constructs the provider for a model spec.
//
// A "vertex_ai/" prefix forces Vertex AI. Otherwise the Gemini API is used
// when configured, with Vertex AI as fallback. With no provider configured
// the echo provider is returned so the gateway still runs end-to-end.
//
// For Vertex AI the config carries the GCP project in api_key and the
// location in api_base.
func ForModel(ctx context.Context, model string, cfg config.ProvidersConfig, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if strings.HasPrefix(model, "vertex_ai/") {
		if cfg.VertexAI.APIKey == "" {
			return nil, fmt.Errorf("model %q requires vertex_ai provider configuration", model)
		}
		return NewVertex(ctx, cfg.VertexAI.APIKey, cfg.VertexAI.APIBase)
	}

	if cfg.Gemini.APIKey != "" {
		return NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.APIBase)
	}
	if cfg.VertexAI.APIKey != "" {
		return NewVertex(ctx, cfg.VertexAI.APIKey, cfg.VertexAI.APIBase)
	}

	logger.Warn("no LLM provider configured, falling back to echo")
	return NewEcho(), nil
}
