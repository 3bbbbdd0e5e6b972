package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	errx "github.com/dashgpt/server/internal/core/error"
	logx "github.com/dashgpt/server/pkg/logger"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Field names of the Milvus collection schema.
const (
	milvusIDField       = "id"
	milvusContentField  = "content"
	milvusMetadataField = "metadata"
	milvusVectorField   = "embedding"
)

type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	DBName     string
	Collection string
}

// milvusSearcher is the part of client.Client the index calls per request.
type milvusSearcher interface {
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
		sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Close() error
}

type MilvusIndex struct {
	c          milvusSearcher
	collection string
}

// OpenMilvus connects to Milvus and loads an existing collection into memory.
func OpenMilvus(ctx context.Context, cfg MilvusConfig) (*MilvusIndex, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	})
	if err != nil {
		return nil, errx.Connection(fmt.Sprintf("milvus at %q is not reachable", cfg.Address), err)
	}

	has, err := c.HasCollection(ctx, cfg.Collection)
	if err != nil {
		_ = c.Close()
		return nil, errx.Connection("milvus collection lookup failed", err)
	}
	if !has {
		_ = c.Close()
		return nil, errx.Connection(fmt.Sprintf("collection %q not found in milvus", cfg.Collection), nil)
	}
	if err := c.LoadCollection(ctx, cfg.Collection, false); err != nil {
		_ = c.Close()
		return nil, errx.Connection(fmt.Sprintf("load collection %q", cfg.Collection), err)
	}

	return &MilvusIndex{c: c, collection: cfg.Collection}, nil
}

func (m *MilvusIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("milvus search param: %w", err)
	}

	results, err := m.c.Search(ctx, m.collection, nil, "",
		[]string{milvusIDField, milvusContentField, milvusMetadataField, milvusVectorField},
		[]entity.Vector{entity.FloatVector(vector)},
		milvusVectorField, entity.COSINE, k, sp)
	if err != nil {
		logx.Error().Err(err).Str("collection", m.collection).Msg("milvus search failed")
		return nil, errx.Upstream("milvus search failed", err)
	}

	hits := make([]Hit, 0, k)
	for _, r := range results {
		if r.Err != nil {
			logx.Error().Err(r.Err).Str("collection", m.collection).Msg("milvus search result failed")
			return nil, errx.Upstream("milvus search failed", r.Err)
		}
		if len(r.Scores) < r.ResultCount {
			return nil, errx.Upstream(fmt.Sprintf("milvus returned %d scores for %d results", len(r.Scores), r.ResultCount), nil)
		}
		for i := 0; i < r.ResultCount; i++ {
			h := Hit{Score: float64(r.Scores[i]), Metadata: map[string]any{}}
			if col := r.Fields.GetColumn(milvusIDField); col != nil {
				if v, err := col.Get(i); err == nil {
					h.ID = fmt.Sprint(v)
				}
			}
			if col := r.Fields.GetColumn(milvusContentField); col != nil {
				h.Content, _ = col.GetAsString(i)
			}
			if col := r.Fields.GetColumn(milvusMetadataField); col != nil {
				if v, err := col.Get(i); err == nil {
					h.Metadata = decodeMetadata(v)
				}
			}
			if col := r.Fields.GetColumn(milvusVectorField); col != nil {
				if v, err := col.Get(i); err == nil {
					if vec, ok := v.([]float32); ok {
						h.Embedding = vec
					}
				}
			}
			hits = append(hits, h)
		}
	}
	return hits, nil
}

func decodeMetadata(v any) map[string]any {
	var raw []byte
	switch vv := v.(type) {
	case []byte:
		raw = vv
	case string:
		raw = []byte(vv)
	default:
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func (m *MilvusIndex) Close() error {
	return m.c.Close()
}

var _ Index = (*MilvusIndex)(nil)
