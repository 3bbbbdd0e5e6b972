package nodes

import (
	"context"
	"errors"
	"fmt"
	"io"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	errx "github.com/dashgpt/server/internal/core/error"
	logx "github.com/dashgpt/server/pkg/logger"
)

const (
	DefaultTemperature float32 = 0.5
	DefaultMaxTokens           = 1024
)

// StreamerConfig configures a Streamer. A nil Temperature uses
// DefaultTemperature.
type StreamerConfig struct {
	ModelName   string
	Temperature *float32
	MaxTokens   int
	Callbacks   []einocb.Handler
}

// Streamer runs a chat model through a compiled eino chain and exposes the
// result as a pull-based fragment stream.
type Streamer struct {
	runnable    compose.Runnable[[]*schema.Message, *schema.Message]
	modelName   string
	temperature float32
	maxTokens   int
	callbacks   []einocb.Handler
}

func NewStreamer(ctx context.Context, cm einomodel.BaseChatModel, cfg StreamerConfig) (*Streamer, error) {
	if cm == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	runnable, err := compose.NewChain[[]*schema.Message, *schema.Message]().
		AppendChatModel(cm).
		Compile(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling completion chain")
		return nil, fmt.Errorf("error compiling completion chain: %w", err)
	}

	s := &Streamer{
		runnable:    runnable,
		modelName:   cfg.ModelName,
		temperature: DefaultTemperature,
		maxTokens:   cfg.MaxTokens,
		callbacks:   cfg.Callbacks,
	}
	if cfg.Temperature != nil {
		s.temperature = max(*cfg.Temperature, 0)
	}
	if s.maxTokens <= 0 {
		s.maxTokens = DefaultMaxTokens
	}
	return s, nil
}

func (s *Streamer) ModelName() string {
	return s.modelName
}

// StreamCompletion starts a streamed completion for prompt. No retry is
// attempted; cancelling ctx cancels the upstream request.
func (s *Streamer) StreamCompletion(ctx context.Context, prompt []*schema.Message) (*Stream, error) {
	if len(prompt) == 0 {
		return nil, errx.Validation("prompt is empty")
	}
	opts := []compose.Option{
		compose.WithChatModelOption(
			einomodel.WithTemperature(s.temperature),
			einomodel.WithMaxTokens(s.maxTokens),
		),
	}
	if len(s.callbacks) > 0 {
		opts = append(opts, compose.WithCallbacks(s.callbacks...))
	}

	sr, err := s.runnable.Stream(ctx, prompt, opts...)
	if err != nil {
		logx.Error().Err(err).Str("model", s.modelName).Msg("completion stream failed to start")
		return nil, asUpstream(err)
	}
	return &Stream{reader: sr}, nil
}

func asUpstream(err error) error {
	var ae *errx.AppError
	if errors.As(err, &ae) && errors.Is(err, errx.ErrUpstream) {
		return err
	}
	return errx.Upstream("completion stream failed", err)
}

// Stream is a finite, single-consumer sequence of text fragments. Once
// exhausted it keeps returning io.EOF; it never replays.
type Stream struct {
	reader *schema.StreamReader[*schema.Message]
	usage  *schema.TokenUsage
	done   bool
}

// NewStream wraps an eino message stream.
func NewStream(sr *schema.StreamReader[*schema.Message]) *Stream {
	return &Stream{reader: sr}
}

// Next returns the next non-empty fragment, io.EOF at the end, or an
// upstream error.
func (s *Stream) Next() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.finish()
			return "", io.EOF
		}
		if err != nil {
			s.finish()
			return "", asUpstream(err)
		}
		if chunk == nil {
			continue
		}
		if chunk.ResponseMeta != nil && chunk.ResponseMeta.Usage != nil {
			s.usage = chunk.ResponseMeta.Usage
		}
		if chunk.Content == "" {
			continue
		}
		return chunk.Content, nil
	}
}

func (s *Stream) finish() {
	if !s.done {
		s.done = true
		s.reader.Close()
	}
}

// Close releases the stream early. Safe to call more than once.
func (s *Stream) Close() {
	s.finish()
}

// Usage is the token usage reported by the provider, if any.
func (s *Stream) Usage() *schema.TokenUsage {
	return s.usage
}
