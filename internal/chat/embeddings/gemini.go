package embeddings

import (
	"context"
	"fmt"

	errx "github.com/dashgpt/server/internal/core/error"
	logx "github.com/dashgpt/server/pkg/logger"
	"google.golang.org/genai"
)

type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(ctx context.Context, apiKey, baseURL, modelName string) (*GeminiEmbedder, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: client, model: modelName}, nil
}

func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		logx.Error().Err(err).Str("model", e.model).Msg("gemini embedding request failed")
		return nil, errx.Upstream("embedding request failed", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errx.Upstream("embedding response was empty", nil)
	}
	return resp.Embeddings[0].Values, nil
}
