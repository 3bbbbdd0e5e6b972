package feedback

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dashgpt/server/internal/chat/model"
	errx "github.com/dashgpt/server/internal/core/error"
	"github.com/dashgpt/server/internal/metrics"
	logx "github.com/dashgpt/server/pkg/logger"
)

// SessionLoader resolves a conversation to its turns.
type SessionLoader interface {
	Load(ctx context.Context, conversationID string) (*model.Session, error)
}

// Service validates and records thumbs-up / thumbs-down votes on answers.
type Service struct {
	repo     model.FeedbackRepository
	sessions SessionLoader
	now      func() time.Time
}

// NewService builds the feedback service. With a nil sessions loader message
// ids are not checked against conversations.
func NewService(repo model.FeedbackRepository, sessions SessionLoader) *Service {
	return &Service{repo: repo, sessions: sessions, now: time.Now}
}

// Submit stores a vote, replacing any earlier vote on the same message. A
// down vote must name one of the known categories. When a conversation id is
// given the message must be one of its assistant turns.
func (s *Service) Submit(ctx context.Context, rec model.FeedbackRecord) (model.FeedbackRecord, error) {
	rec.MessageID = strings.TrimSpace(rec.MessageID)
	rec.Category = strings.TrimSpace(rec.Category)
	if rec.MessageID == "" {
		return rec, errx.Validation("message_id is required")
	}

	switch rec.Vote {
	case model.VoteUp:
		rec.Category = ""
	case model.VoteDown:
		if rec.Category == "" {
			return rec, errx.Validation("please select a feedback category")
		}
		if !slices.Contains(model.FeedbackCategories, rec.Category) {
			return rec, errx.Validation("unknown feedback category " + rec.Category)
		}
	default:
		return rec, errx.Validation("vote must be up or down")
	}

	if err := s.checkMessage(ctx, rec.ConversationID, rec.MessageID); err != nil {
		return rec, err
	}

	rec.CreatedAt = s.now().UTC()
	if err := s.repo.SaveFeedback(ctx, rec); err != nil {
		return rec, err
	}

	metrics.IncFeedback(string(rec.Vote), rec.Category)
	logx.Info().
		Str("message_id", rec.MessageID).
		Str("conversation_id", rec.ConversationID).
		Str("vote", string(rec.Vote)).
		Str("category", rec.Category).
		Str("comment", rec.Comment).
		Msg("feedback received")
	return rec, nil
}

// Get returns the current vote on a message.
func (s *Service) Get(ctx context.Context, messageID string) (*model.FeedbackRecord, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, errx.Validation("message_id is required")
	}
	return s.repo.GetFeedback(ctx, messageID)
}

func (s *Service) checkMessage(ctx context.Context, conversationID, messageID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" || s.sessions == nil {
		return nil
	}
	sess, err := s.sessions.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, t := range sess.Turns {
		if t.Role == model.RoleAssistant && t.MessageID == messageID {
			return nil
		}
	}
	return errx.NotFound("unknown message_id "+messageID, nil)
}
