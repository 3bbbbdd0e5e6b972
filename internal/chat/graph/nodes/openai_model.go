package nodes

import (
	"context"
	"errors"
	"io"
	"math"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	errx "github.com/dashgpt/server/internal/core/error"
	logx "github.com/dashgpt/server/pkg/logger"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	MaxTokens   int
}

// OpenAIChatModel adapts the go-openai client to eino's BaseChatModel so it
// can sit in a compose chain next to the Gemini model.
type OpenAIChatModel struct {
	client *openai.Client
	conf   OpenAIConfig
}

func NewOpenAIChatModel(conf OpenAIConfig) *OpenAIChatModel {
	cfg := openai.DefaultConfig(conf.APIKey)
	if conf.BaseURL != "" {
		cfg.BaseURL = conf.BaseURL
	}
	return &OpenAIChatModel{client: openai.NewClientWithConfig(cfg), conf: conf}
}

func (m *OpenAIChatModel) request(input []*schema.Message, opts ...einomodel.Option) openai.ChatCompletionRequest {
	maxTokens, modelName := m.conf.MaxTokens, m.conf.Model
	o := einomodel.GetCommonOptions(&einomodel.Options{
		Temperature: m.conf.Temperature,
		MaxTokens:   &maxTokens,
		Model:       &modelName,
	}, opts...)

	req := openai.ChatCompletionRequest{
		Model:    *o.Model,
		Messages: toOpenAIMessages(input),
	}
	if o.Temperature != nil {
		req.Temperature = *o.Temperature
		// go-openai omits a zero temperature, which the API reads as 1
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if o.MaxTokens != nil {
		req.MaxTokens = *o.MaxTokens
	}
	return req
}

func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	req := m.request(input, opts...)
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errx.Upstream("chat completion failed", err)
	}
	out := &schema.Message{Role: schema.Assistant}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.ResponseMeta = &schema.ResponseMeta{FinishReason: string(resp.Choices[0].FinishReason)}
	}
	if out.ResponseMeta == nil {
		out.ResponseMeta = &schema.ResponseMeta{}
	}
	out.ResponseMeta.Usage = &schema.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return out, nil
}

// Stream relays completion deltas as assistant message chunks. Closing the
// returned reader stops the relay and closes the upstream stream.
func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	req := m.request(input, opts...)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		logx.Error().Err(err).Str("model", req.Model).Msg("openai stream request failed")
		return nil, errx.Upstream("chat completion stream failed", err)
	}

	sr, sw := schema.Pipe[*schema.Message](8)
	go func() {
		defer stream.Close()
		defer sw.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sw.Send(nil, errx.Upstream("chat completion stream broke", err))
				return
			}
			chunk := &schema.Message{Role: schema.Assistant}
			if len(resp.Choices) > 0 {
				chunk.Content = resp.Choices[0].Delta.Content
				if resp.Choices[0].FinishReason != "" {
					chunk.ResponseMeta = &schema.ResponseMeta{FinishReason: string(resp.Choices[0].FinishReason)}
				}
			}
			if resp.Usage != nil {
				if chunk.ResponseMeta == nil {
					chunk.ResponseMeta = &schema.ResponseMeta{}
				}
				chunk.ResponseMeta.Usage = &schema.TokenUsage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}
			}
			if closed := sw.Send(chunk, nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

func toOpenAIMessages(in []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		if m == nil {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

var _ einomodel.BaseChatModel = (*OpenAIChatModel)(nil)
