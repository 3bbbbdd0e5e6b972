package conversations

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dashgpt/server/internal/chat/model"
	errx "github.com/dashgpt/server/internal/core/error"
	logx "github.com/dashgpt/server/pkg/logger"
)

type MessagesManager struct {
	conversationRepo model.ConversationRepository
	historyWindow    int
	questionsOnly    bool
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		historyWindow:    config.HistoryWindow,
		questionsOnly:    config.QuestionsOnly,
	}
}

// NewSession starts an empty conversation with a fresh id.
func (cm *MessagesManager) NewSession(ctx context.Context) (*model.Session, error) {
	id := uuid.NewString()
	logx.Debug().Str("conversation_id", id).Msg("new conversation")
	return &model.Session{ID: id, Turns: []model.Turn{}}, nil
}

// Reset drops the old conversation and returns a new empty one.
func (cm *MessagesManager) Reset(ctx context.Context, oldID string) (*model.Session, error) {
	if oldID != "" {
		if err := cm.conversationRepo.ClearHistory(ctx, oldID); err != nil {
			return nil, err
		}
	}
	sess, err := cm.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	logx.Info().Str("old_conversation_id", oldID).Str("conversation_id", sess.ID).Msg("conversation reset")
	return sess, nil
}

func (cm *MessagesManager) Load(ctx context.Context, conversationID string) (*model.Session, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errx.Validation("conversation id is required")
	}
	return cm.conversationRepo.LoadSession(ctx, conversationID)
}

func (cm *MessagesManager) AppendUser(ctx context.Context, conversationID, content string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errx.Validation("conversation id is required")
	}
	return cm.conversationRepo.AddTurn(ctx, conversationID, model.Turn{Role: model.RoleUser, Content: content})
}

// AppendAssistant stores a finished answer and returns its new message id.
func (cm *MessagesManager) AppendAssistant(ctx context.Context, conversationID, content string) (string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return "", errx.Validation("conversation id is required")
	}
	id := uuid.NewString()
	turn := model.Turn{Role: model.RoleAssistant, Content: content, MessageID: id}
	if err := cm.conversationRepo.AddTurn(ctx, conversationID, turn); err != nil {
		return "", fmt.Errorf("save assistant turn: %w", err)
	}
	return id, nil
}

// History renders turns with the configured window and filter.
func (cm *MessagesManager) History(turns []model.Turn) string {
	return FormatHistory(turns, cm.historyWindow, cm.questionsOnly)
}

// FormatHistory renders the last windowSize exchanges before the in-flight
// question as "<role>: <content>" lines, oldest first. A trailing user turn
// is the question being answered and is left out. With questionsOnly only
// user lines are kept.
func FormatHistory(turns []model.Turn, windowSize int, questionsOnly bool) string {
	if len(turns) > 0 && turns[len(turns)-1].Role == model.RoleUser {
		turns = turns[:len(turns)-1]
	}
	if windowSize <= 0 {
		return ""
	}

	var b strings.Builder
	for _, t := range trimTail(turns, 2*windowSize) {
		if questionsOnly && t.Role != model.RoleUser {
			continue
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(t.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func trimTail(turns []model.Turn, maxTurns int) []model.Turn {
	if len(turns) <= maxTurns {
		return turns
	}
	return turns[len(turns)-maxTurns:]
}
