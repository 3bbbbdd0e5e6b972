package retrieval

import (
	"context"
	"strings"
	"time"

	"github.com/dashgpt/server/internal/chat/model"
	errx "github.com/dashgpt/server/internal/core/error"
	"github.com/dashgpt/server/internal/metrics"
	logx "github.com/dashgpt/server/pkg/logger"
)

const (
	MethodSimilarity = "similarity"
	MethodMMR        = "mmr"

	DefaultK      = 3
	DefaultFetchK = 10
	DefaultLambda = 0.5
)

// Searcher is the read side of a connected vector store.
type Searcher interface {
	SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]model.Passage, error)
	MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambda float64) ([]model.Passage, error)
}

// Options tune MMR. A non-positive FetchK or a nil Lambda falls back to the
// defaults. Lambda is clamped to [0, 1].
type Options struct {
	FetchK int
	Lambda *float64
}

// NormalizeMethod maps accepted spellings onto the canonical method names.
func NormalizeMethod(method string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case MethodSimilarity:
		return MethodSimilarity, true
	case MethodMMR, "max_marginal_relevance":
		return MethodMMR, true
	}
	return "", false
}

// Retrieve returns up to k passages relevant to query. Similarity results
// carry their score both on the passage and under metadata["score"].
func Retrieve(ctx context.Context, query string, store Searcher, k int, method string, opts ...Options) ([]model.Passage, error) {
	m, ok := NormalizeMethod(method)
	if !ok {
		return nil, errx.InvalidMethod(method)
	}
	fetchK, lambda := DefaultFetchK, DefaultLambda
	if len(opts) > 0 {
		if opts[0].FetchK > 0 {
			fetchK = opts[0].FetchK
		}
		if opts[0].Lambda != nil {
			lambda = min(max(*opts[0].Lambda, 0), 1)
		}
	}

	start := time.Now()
	var (
		passages []model.Passage
		err      error
	)
	switch m {
	case MethodSimilarity:
		passages, err = store.SimilaritySearchWithScore(ctx, query, k)
		if err == nil {
			for i := range passages {
				if passages[i].Score == nil {
					continue
				}
				if passages[i].Metadata == nil {
					passages[i].Metadata = map[string]any{}
				}
				passages[i].Metadata[model.MetadataScoreKey] = *passages[i].Score
			}
		}
	case MethodMMR:
		if fetchK <= k {
			fetchK = k + 1
		}
		passages, err = store.MaxMarginalRelevanceSearch(ctx, query, k, fetchK, lambda)
	}
	if err != nil {
		logx.Error().Err(err).Str("method", m).Int("k", k).Msg("retrieval failed")
		return nil, err
	}

	metrics.ObserveRetrieval(m, start, len(passages))
	logx.Debug().Str("method", m).Int("k", k).Int("results", len(passages)).Dur("took", time.Since(start)).Msg("retrieved passages")
	return passages, nil
}
