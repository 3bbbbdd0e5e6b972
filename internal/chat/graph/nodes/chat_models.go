package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/dashgpt/server/internal/chat/model"
	logx "github.com/dashgpt/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	Completion    model.CompletionModelConfig
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	GeminiBaseURL string
}

// NewChatModel creates the completion model for the configured provider.
func NewChatModel(ctx context.Context, config ChatModelConfig) (einomodel.BaseChatModel, error) {
	switch strings.ToLower(config.Completion.Provider) {
	case "openai", "":
		return NewOpenAIChatModel(OpenAIConfig{
			APIKey:      config.OpenAIKey,
			BaseURL:     config.OpenAIBaseURL,
			Model:       config.Completion.Model,
			Temperature: config.Completion.Temperature,
			MaxTokens:   config.Completion.MaxTokens,
		}), nil
	case "gemini":
		return newGeminiChatModel(ctx, config)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Completion.Provider)
	}
}

func newGeminiChatModel(ctx context.Context, config ChatModelConfig) (einomodel.BaseChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.GeminiBaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.GeminiBaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	maxTokens := config.Completion.MaxTokens
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Completion.Model,
		Temperature: config.Completion.Temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini chat model")
		return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
	}
	return cm, nil
}
