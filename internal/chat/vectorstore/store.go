package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/dashgpt/server/internal/chat/embeddings"
	"github.com/dashgpt/server/internal/chat/model"
	logx "github.com/dashgpt/server/pkg/logger"
)

// Hit is one ranked candidate from an index. Embedding is populated when the
// index can return stored vectors; MMR needs it.
type Hit struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Score     float64
	Embedding []float32
}

// Index is a read-only nearest-neighbour lookup over an existing collection.
// Hits are ordered by descending cosine similarity.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Close() error
}

// Store pairs an index with the embedder that produced its vectors. It is
// built once at start-up and shared by all requests.
type Store struct {
	name     string
	index    Index
	embedder embeddings.Embedder
}

func NewStore(name string, index Index, embedder embeddings.Embedder) *Store {
	return &Store{name: name, index: index, embedder: embedder}
}

// Connect opens the configured collection. Missing locations or collections
// fail with a connection error.
func Connect(ctx context.Context, cfg model.VectorStoreConfig, embedder embeddings.Embedder) (*Store, error) {
	var (
		idx Index
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "local", "":
		idx, err = OpenLocal(cfg.Dir, cfg.Collection)
	case "milvus":
		idx, err = OpenMilvus(ctx, MilvusConfig{
			Address:    cfg.MilvusAddress,
			Username:   cfg.MilvusUsername,
			Password:   cfg.MilvusPassword,
			DBName:     cfg.MilvusDB,
			Collection: cfg.Collection,
		})
	default:
		return nil, fmt.Errorf("unknown vector store provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	logx.Info().Str("provider", cfg.Provider).Str("collection", cfg.Collection).Msg("vector store connected")
	return NewStore(cfg.Collection, idx, embedder), nil
}

func (s *Store) Name() string {
	return s.name
}

// SimilaritySearchWithScore returns the k passages most similar to query with
// their cosine score attached.
func (s *Store) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]model.Passage, error) {
	if k <= 0 {
		return []model.Passage{}, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	out := make([]model.Passage, 0, len(hits))
	for _, h := range hits {
		score := h.Score
		out = append(out, model.Passage{Content: h.Content, Metadata: copyMetadata(h.Metadata), Score: &score})
	}
	return out, nil
}

// MaxMarginalRelevanceSearch fetches fetchK candidates and picks k of them,
// trading relevance against redundancy by lambda (1 = relevance only).
func (s *Store) MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambda float64) ([]model.Passage, error) {
	if k <= 0 {
		return []model.Passage{}, nil
	}
	if fetchK < k {
		fetchK = k
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, vec, fetchK)
	if err != nil {
		return nil, err
	}
	picked := selectMMR(vec, hits, k, lambda)
	out := make([]model.Passage, 0, len(picked))
	for _, h := range picked {
		out = append(out, model.Passage{Content: h.Content, Metadata: copyMetadata(h.Metadata)})
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.index.Close()
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
