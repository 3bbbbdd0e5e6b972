package model

import (
	"context"
	"time"
)

type Vote string

const (
	VoteUp   Vote = "up"
	VoteDown Vote = "down"
)

// Feedback categories offered for a thumbs-down.
const (
	CategoryNotFunny           = "not-funny"
	CategoryTooFunny           = "too-funny"
	CategoryIncorrectDangerous = "incorrect-dangerous"
	CategoryOther              = "other"
)

var FeedbackCategories = []string{
	CategoryNotFunny,
	CategoryTooFunny,
	CategoryIncorrectDangerous,
	CategoryOther,
}

type FeedbackRecord struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Vote           Vote      `json:"vote"`
	Category       string    `json:"category,omitempty"`
	Comment        string    `json:"comment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FeedbackRepository keeps one record per message id. Saving again replaces
// the earlier vote.
type FeedbackRepository interface {
	SaveFeedback(ctx context.Context, record FeedbackRecord) error
	GetFeedback(ctx context.Context, messageID string) (*FeedbackRecord, error)
}
