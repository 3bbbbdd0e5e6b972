package prompts

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	errx "github.com/dashgpt/server/internal/core/error"
	logx "github.com/dashgpt/server/pkg/logger"
)

//go:embed template/question.txt
var defaultQuestionTemplate string

// LoadQuestionTemplate returns the question-augmentation template named name
// from {dir}/user/{name}.txt, or the built-in one when name is empty.
func LoadQuestionTemplate(dir, name string) (string, error) {
	if name == "" {
		return defaultQuestionTemplate, nil
	}
	path := filepath.Join(dir, "user", name+".txt")
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errx.NotFound(fmt.Sprintf("question template %q not found", name), err)
		}
		return "", fmt.Errorf("read question template: %w", err)
	}
	return string(b), nil
}

// BuildUserMessage fills the template with the question, its retrieved
// context and the formatted history, returning the final user message.
// Rendering goes through the eino prompt component so prompt callbacks fire.
func BuildUserMessage(ctx context.Context, tpl, question, chatContext, chatHistory string) (*schema.Message, error) {
	for name, v := range map[string]string{"question": question, "context": chatContext, "chat history": chatHistory} {
		if !utf8.ValidString(v) {
			return nil, errx.Validation(fmt.Sprintf("%s must be valid text", name))
		}
	}
	if strings.TrimSpace(question) == "" {
		return nil, errx.Validation("User prompt cannot be empty")
	}

	t := prompt.FromMessages(
		schema.GoTemplate,
		schema.UserMessage(tpl),
	)
	msgs, err := t.Format(ctx, map[string]any{
		"user_prompt":  question,
		"chat_context": chatContext,
		"chat_history": chatHistory,
	})
	if err != nil {
		logx.Error().Err(err).Msg("question prompt render failed")
		return nil, fmt.Errorf("question prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("question prompt render: empty result")
	}
	return msgs[0], nil
}
