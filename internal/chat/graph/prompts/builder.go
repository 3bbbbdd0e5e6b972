package prompts

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/dashgpt/server/internal/chat/model"
	"github.com/dashgpt/server/internal/metrics"
	logx "github.com/dashgpt/server/pkg/logger"
)

// Builder assembles the chat prompt: the system prompt followed by the
// augmented user question, fitted to the token ceiling.
type Builder struct {
	dir           string
	systemVersion string
	questionTpl   string
	counter       TokenCounter
	ceiling       int
	keep          int
}

func NewBuilder(cfg model.PromptConfig, counter TokenCounter) (*Builder, error) {
	tpl, err := LoadQuestionTemplate(cfg.Dir, cfg.QuestionTemplate)
	if err != nil {
		return nil, err
	}
	return &Builder{
		dir:           cfg.Dir,
		systemVersion: cfg.SystemPrompt,
		questionTpl:   tpl,
		counter:       counter,
		ceiling:       cfg.TokenCeiling,
		keep:          cfg.TruncateTokens,
	}, nil
}

// Build returns [system, user]. The system prompt file is read on every call
// so edits apply without a restart.
func (b *Builder) Build(ctx context.Context, question, chatContext, chatHistory string) ([]*schema.Message, error) {
	userMsg, err := BuildUserMessage(ctx, b.questionTpl, question, chatContext, chatHistory)
	if err != nil {
		return nil, err
	}
	system, err := LoadSystemPrompt(b.dir, b.systemVersion)
	if err != nil {
		return nil, err
	}

	msgs := []*schema.Message{
		schema.SystemMessage(system),
		userMsg,
	}

	fitted, total, truncated := ApplyBudget(msgs, b.counter, b.ceiling, b.keep)
	if truncated {
		metrics.IncTruncation()
		logx.Warn().
			Int("prompt_tokens", total).
			Int("ceiling", b.ceiling).
			Int("kept_tokens", b.keep).
			Msg("prompt exceeds token ceiling, truncating user message")
	}
	return fitted, nil
}
