package nodes

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashgpt/server/internal/chat/model"
	errx "github.com/dashgpt/server/internal/core/error"
)

type scriptedModel struct {
	fragments []string
	failAt    int
	startErr  error
	gotInput  []*schema.Message
	gotOpts   *einomodel.Options
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.gotInput = input
	return schema.AssistantMessage("unused", nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	m.gotInput = input
	m.gotOpts = einomodel.GetCommonOptions(&einomodel.Options{}, opts...)
	if m.startErr != nil {
		return nil, m.startErr
	}
	sr, sw := schema.Pipe[*schema.Message](len(m.fragments) + 1)
	go func() {
		defer sw.Close()
		for i, f := range m.fragments {
			if m.failAt > 0 && i == m.failAt {
				sw.Send(nil, errors.New("connection reset"))
				return
			}
			sw.Send(schema.AssistantMessage(f, nil), nil)
		}
		sw.Send(&schema.Message{Role: schema.Assistant, ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
		}}, nil)
	}()
	return sr, nil
}

func ptr[T any](v T) *T { return &v }

func prompt() []*schema.Message {
	return []*schema.Message{schema.SystemMessage("sys"), schema.UserMessage("Tell me a joke about cats")}
}

func drain(t *testing.T, s *Stream) ([]string, error) {
	t.Helper()
	var out []string
	for {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}

func TestStreamCompletionRelaysFragments(t *testing.T) {
	cm := &scriptedModel{fragments: []string{"Why", " do", " cats..."}}
	s, err := NewStreamer(context.Background(), cm, StreamerConfig{ModelName: "fake"})
	require.NoError(t, err)

	stream, err := s.StreamCompletion(context.Background(), prompt())
	require.NoError(t, err)

	got, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"Why", " do", " cats..."}, got)

	require.Len(t, cm.gotInput, 2)
	require.NotNil(t, cm.gotOpts.Temperature)
	assert.Equal(t, DefaultTemperature, *cm.gotOpts.Temperature)
	require.NotNil(t, cm.gotOpts.MaxTokens)
	assert.Equal(t, DefaultMaxTokens, *cm.gotOpts.MaxTokens)

	require.NotNil(t, stream.Usage())
	assert.Equal(t, 3, stream.Usage().CompletionTokens)

	// exhausted streams do not replay
	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamCompletionUpstreamErrorMidStream(t *testing.T) {
	cm := &scriptedModel{fragments: []string{"Why", " do", " cats..."}, failAt: 2}
	s, err := NewStreamer(context.Background(), cm, StreamerConfig{})
	require.NoError(t, err)

	stream, err := s.StreamCompletion(context.Background(), prompt())
	require.NoError(t, err)

	got, err := drain(t, stream)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrUpstream))
	assert.Equal(t, []string{"Why", " do"}, got)
}

func TestStreamCompletionStartFailure(t *testing.T) {
	cm := &scriptedModel{startErr: errors.New("401 unauthorized")}
	s, err := NewStreamer(context.Background(), cm, StreamerConfig{})
	require.NoError(t, err)

	_, err = s.StreamCompletion(context.Background(), prompt())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrUpstream))
}

func TestStreamCompletionRejectsEmptyPrompt(t *testing.T) {
	s, err := NewStreamer(context.Background(), &scriptedModel{}, StreamerConfig{})
	require.NoError(t, err)

	_, err = s.StreamCompletion(context.Background(), nil)
	assert.True(t, errors.Is(err, errx.ErrValidation))
}

func TestNewChatModelProviders(t *testing.T) {
	cm, err := NewChatModel(context.Background(), ChatModelConfig{
		Completion: model.CompletionModelConfig{Provider: "openai", Model: "gpt-3.5-turbo", Temperature: ptr(float32(0.5)), MaxTokens: 1024},
		OpenAIKey:  "test",
	})
	require.NoError(t, err)
	_, ok := cm.(*OpenAIChatModel)
	assert.True(t, ok)

	_, err = NewChatModel(context.Background(), ChatModelConfig{Completion: model.CompletionModelConfig{Provider: "nope"}})
	assert.Error(t, err)
}

func TestOpenAIRequestAppliesOptions(t *testing.T) {
	m := NewOpenAIChatModel(OpenAIConfig{APIKey: "k", Model: "gpt-3.5-turbo", Temperature: ptr(float32(0.2)), MaxTokens: 100})
	req := m.request(prompt(), einomodel.WithTemperature(0.5), einomodel.WithMaxTokens(1024))

	assert.Equal(t, "gpt-3.5-turbo", req.Model)
	assert.Equal(t, float32(0.5), req.Temperature)
	assert.Equal(t, 1024, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
}

func TestStreamerHonoursZeroTemperature(t *testing.T) {
	cm := &scriptedModel{fragments: []string{"Meow."}}
	s, err := NewStreamer(context.Background(), cm, StreamerConfig{ModelName: "fake", Temperature: ptr(float32(0))})
	require.NoError(t, err)

	stream, err := s.StreamCompletion(context.Background(), prompt())
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)

	require.NotNil(t, cm.gotOpts.Temperature)
	assert.Zero(t, *cm.gotOpts.Temperature)
}

func TestOpenAIRequestKeepsZeroTemperature(t *testing.T) {
	m := NewOpenAIChatModel(OpenAIConfig{APIKey: "k", Model: "gpt-3.5-turbo"})

	req := m.request(prompt(), einomodel.WithTemperature(0))
	assert.Equal(t, float32(math.SmallestNonzeroFloat32), req.Temperature)

	req = m.request(prompt())
	assert.Zero(t, req.Temperature)
}
