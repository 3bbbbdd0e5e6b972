package embeddings

import (
	"context"

	errx "github.com/dashgpt/server/internal/core/error"
	logx "github.com/dashgpt/server/pkg/logger"
	openai "github.com/sashabaranov/go-openai"
)

type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(apiKey, baseURL, modelName string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = string(openai.AdaEmbeddingV2)
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: modelName}
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		logx.Error().Err(err).Str("model", e.model).Msg("openai embedding request failed")
		return nil, errx.Upstream("embedding request failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, errx.Upstream("embedding response was empty", nil)
	}
	return resp.Data[0].Embedding, nil
}
