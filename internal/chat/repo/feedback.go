package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dashgpt/server/internal/chat/model"
	errx "github.com/dashgpt/server/internal/core/error"
	logx "github.com/dashgpt/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisFeedbackRepository stores the latest vote per message id as a JSON
// string.
type RedisFeedbackRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisFeedbackRepository(rdb redis.Cmdable, ttl time.Duration) *RedisFeedbackRepository {
	return &RedisFeedbackRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisFeedbackRepository) feedbackKey(messageID string) string {
	return fmt.Sprintf("feedback:%s", messageID)
}

func (r *RedisFeedbackRepository) SaveFeedback(ctx context.Context, record model.FeedbackRecord) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	key := r.feedbackKey(record.MessageID)
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to store feedback in redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisFeedbackRepository) GetFeedback(ctx context.Context, messageID string) (*model.FeedbackRecord, error) {
	key := r.feedbackKey(messageID)
	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Error().Err(err).Str("key", key).Msg("failed to load feedback from redis")
		}
		return nil, errx.WrapRedis(err)
	}
	var rec model.FeedbackRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal feedback %s: %w", messageID, err)
	}
	return &rec, nil
}

var _ model.FeedbackRepository = (*RedisFeedbackRepository)(nil)
