package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/dashgpt/server/internal/chat/model"
	"github.com/dashgpt/server/internal/metrics"
	lru "github.com/hashicorp/golang-lru"
)

// Embedder turns query text into a vector in the collection's embedding space.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config selects and configures the embedding provider.
type Config struct {
	model.EmbeddingConfig
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	GeminiBaseURL string
}

// New builds the configured provider, wrapped in an LRU cache when CacheSize > 0.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		e = NewOpenAIEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.Model)
	case "gemini":
		e, err = NewGeminiEmbedder(ctx, cfg.GeminiKey, cfg.GeminiBaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCached(e, cfg.CacheSize)
	}
	return e, nil
}

// Cached memoizes query embeddings. Repeated questions (sample questions in
// particular) skip the provider round trip.
type Cached struct {
	next  Embedder
	cache *lru.Cache
}

func NewCached(next Embedder, size int) (*Cached, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cached{next: next, cache: c}, nil
}

func (c *Cached) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		metrics.IncEmbeddingCache(true)
		return v.([]float32), nil
	}
	metrics.IncEmbeddingCache(false)
	vec, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}
