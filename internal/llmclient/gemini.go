// Package llmclient wraps the Gemini API behind the narrow completion
// interface the classifier consumes.
package llmclient

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/prefpilot/internal/config"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient is a thin adapter over the genai SDK. It forces JSON
// replies and a low temperature so the classifier gets deterministic,
// machine-readable output.
type GeminiClient struct {
	client *genai.Client
	model  string
	temp   float32
	log    *zap.Logger
}

// NewGeminiClient builds a client against the Gemini API backend.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm.api_key is required (set PREFPILOT_LLM_API_KEY or GEMINI_API_KEY)")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		temp:   cfg.Temperature,
		log:    logger.Named("llmclient"),
	}, nil
}

// Complete sends one generation request and returns the reply text.
func (g *GeminiClient) Complete(ctx context.Context, system, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temp),
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty reply")
	}

	if resp.UsageMetadata != nil {
		g.log.Debug("Gemini call completed.",
			zap.String("model", g.model),
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount))
	}
	return text, nil
}
