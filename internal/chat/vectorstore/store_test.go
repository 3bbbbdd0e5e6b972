package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dashgpt/server/internal/chat/model"
	errx "github.com/dashgpt/server/internal/core/error"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder places texts on fixed axes so rankings are predictable.
type keywordEmbedder struct {
	vectors map[string][]float32
}

func (k keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if v, ok := k.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func jokeCollection() LocalCollection {
	return LocalCollection{
		Name: "jokes",
		Documents: []LocalDocument{
			{ID: "1", Content: "cat joke one", Metadata: map[string]any{"source": "r/jokes"}, Embedding: []float32{1, 0, 0}},
			{ID: "2", Content: "cat joke two", Metadata: map[string]any{"source": "r/jokes"}, Embedding: []float32{0.99, 0.01, 0}},
			{ID: "3", Content: "dog joke", Metadata: map[string]any{"source": "r/dadjokes"}, Embedding: []float32{0.6, 0.8, 0}},
			{ID: "4", Content: "alien joke", Metadata: map[string]any{}, Embedding: []float32{0, 0.2, 0.98}},
		},
	}
}

func openJokes(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	require.NoError(t, WriteLocal(dir, jokeCollection()))

	store, err := Connect(context.Background(), model.VectorStoreConfig{Provider: "local", Dir: dir, Collection: "jokes"},
		keywordEmbedder{vectors: map[string][]float32{"Cats": {1, 0, 0}}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestConnectMissingDirectory(t *testing.T) {
	_, err := Connect(context.Background(), model.VectorStoreConfig{Provider: "local", Dir: filepath.Join(t.TempDir(), "nope"), Collection: "jokes"}, keywordEmbedder{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrConnection))
}

func TestConnectMissingCollection(t *testing.T) {
	dir := t.TempDir()
	_, err := Connect(context.Background(), model.VectorStoreConfig{Provider: "local", Dir: dir, Collection: "absent"}, keywordEmbedder{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrConnection))
}

func TestSimilaritySearchWithScore(t *testing.T) {
	store := openJokes(t)

	got, err := store.SimilaritySearchWithScore(context.Background(), "Cats", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "cat joke one", got[0].Content)
	assert.Equal(t, "cat joke two", got[1].Content)
	assert.Equal(t, "dog joke", got[2].Content)
	for i := range got {
		require.NotNil(t, got[i].Score)
		if i > 0 {
			assert.GreaterOrEqual(t, *got[i-1].Score, *got[i].Score)
		}
	}
	assert.InDelta(t, 1.0, *got[0].Score, 1e-6)
}

func TestSearchDoesNotMutateStore(t *testing.T) {
	store := openJokes(t)

	first, err := store.SimilaritySearchWithScore(context.Background(), "Cats", 1)
	require.NoError(t, err)
	first[0].Metadata["score"] = 42.0
	first[0].Metadata["source"] = "changed"

	again, err := store.SimilaritySearchWithScore(context.Background(), "Cats", 1)
	require.NoError(t, err)
	assert.Equal(t, "r/jokes", again[0].Metadata["source"])
	_, has := again[0].Metadata["score"]
	assert.False(t, has)
}

func TestSearchFewerDocumentsThanK(t *testing.T) {
	store := openJokes(t)

	got, err := store.SimilaritySearchWithScore(context.Background(), "Cats", 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = store.SimilaritySearchWithScore(context.Background(), "Cats", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMaxMarginalRelevanceSearch(t *testing.T) {
	store := openJokes(t)

	got, err := store.MaxMarginalRelevanceSearch(context.Background(), "Cats", 2, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "cat joke one", got[0].Content)
	assert.NotEqual(t, got[0].Content, got[1].Content)
	assert.Nil(t, got[0].Score)
}

func TestSelectMMRPrefersDiversity(t *testing.T) {
	hits := []Hit{
		{ID: "a", Embedding: []float32{1, 0.1}},
		{ID: "near-duplicate", Embedding: []float32{1, 0.11}},
		{ID: "different", Embedding: []float32{1, -0.5}},
	}
	got := selectMMR([]float32{1, 0}, hits, 2, 0.5)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "different", got[1].ID)
}

func TestSelectMMRLambdaOneIsPureRelevance(t *testing.T) {
	hits := []Hit{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{0.9, 0.1}},
		{ID: "c", Embedding: []float32{0, 1}},
	}
	got := selectMMR([]float32{1, 0}, hits, 2, 1)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

type fakeMilvus struct {
	results []client.SearchResult
	err     error
	topK    int
	metric  entity.MetricType
	closed  bool
}

func (f *fakeMilvus) Search(_ context.Context, _ string, _ []string, _ string, _ []string,
	_ []entity.Vector, _ string, metricType entity.MetricType, topK int,
	_ entity.SearchParam, _ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	f.topK = topK
	f.metric = metricType
	return f.results, f.err
}

func (f *fakeMilvus) Close() error {
	f.closed = true
	return nil
}

func TestMilvusIndexSearch(t *testing.T) {
	fm := &fakeMilvus{results: []client.SearchResult{{
		ResultCount: 2,
		Scores:      []float32{0.9, 0.5},
		Fields: client.ResultSet{
			entity.NewColumnInt64(milvusIDField, []int64{7, 8}),
			entity.NewColumnVarChar(milvusContentField, []string{"cat joke", "dog joke"}),
			entity.NewColumnJSONBytes(milvusMetadataField, [][]byte{[]byte(`{"source":"r/jokes"}`), []byte(`{}`)}),
		},
	}}}
	idx := &MilvusIndex{c: fm, collection: "jokes"}

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 2, fm.topK)
	assert.Equal(t, entity.COSINE, fm.metric)
	assert.Equal(t, "7", hits[0].ID)
	assert.Equal(t, "cat joke", hits[0].Content)
	assert.Equal(t, "r/jokes", hits[0].Metadata["source"])
	assert.InDelta(t, 0.9, hits[0].Score, 1e-6)

	require.NoError(t, idx.Close())
	assert.True(t, fm.closed)
}

func TestMilvusIndexSearchFailuresAreUpstream(t *testing.T) {
	cases := map[string]*fakeMilvus{
		"call":   {err: errors.New("rpc error: deadline exceeded")},
		"result": {results: []client.SearchResult{{ResultCount: 1, Scores: []float32{0.9}, Err: errors.New("segment not loaded")}}},
		"scores": {results: []client.SearchResult{{ResultCount: 2, Scores: []float32{0.9}}}},
	}
	for name, fm := range cases {
		t.Run(name, func(t *testing.T) {
			idx := &MilvusIndex{c: fm, collection: "jokes"}
			_, err := idx.Search(context.Background(), []float32{1, 0}, 2)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errx.ErrUpstream))
			assert.False(t, errors.Is(err, errx.ErrConnection))
		})
	}
}
