package repo

import (
	"context"
	"sync"

	"github.com/dashgpt/server/internal/chat/model"
	errx "github.com/dashgpt/server/internal/core/error"
)

// MemoryConversationRepository keeps sessions in process. Used for local runs
// and tests; contents are lost on restart.
type MemoryConversationRepository struct {
	mu    sync.RWMutex
	turns map[string][]model.Turn
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{turns: make(map[string][]model.Turn)}
}

func (r *MemoryConversationRepository) AddTurn(_ context.Context, conversationID string, turn model.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[conversationID] = append(r.turns[conversationID], turn)
	return nil
}

func (r *MemoryConversationRepository) LoadSession(_ context.Context, conversationID string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.turns[conversationID]
	out := make([]model.Turn, len(src))
	copy(out, src)
	return &model.Session{ID: conversationID, Turns: out}, nil
}

func (r *MemoryConversationRepository) ClearHistory(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.turns, conversationID)
	return nil
}

func (r *MemoryConversationRepository) GetTurnCount(_ context.Context, conversationID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.turns[conversationID]), nil
}

var _ model.ConversationRepository = (*MemoryConversationRepository)(nil)

// MemoryFeedbackRepository keeps the latest vote per message id in process.
type MemoryFeedbackRepository struct {
	mu      sync.RWMutex
	records map[string]model.FeedbackRecord
}

func NewMemoryFeedbackRepository() *MemoryFeedbackRepository {
	return &MemoryFeedbackRepository{records: make(map[string]model.FeedbackRecord)}
}

func (r *MemoryFeedbackRepository) SaveFeedback(_ context.Context, record model.FeedbackRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.MessageID] = record
	return nil
}

func (r *MemoryFeedbackRepository) GetFeedback(_ context.Context, messageID string) (*model.FeedbackRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[messageID]
	if !ok {
		return nil, errx.NotFound("no feedback for message "+messageID, nil)
	}
	return &rec, nil
}

var _ model.FeedbackRepository = (*MemoryFeedbackRepository)(nil)
