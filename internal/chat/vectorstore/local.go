package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	errx "github.com/dashgpt/server/internal/core/error"
)

// LocalDocument is one stored record of a persisted collection file.
type LocalDocument struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}

// LocalCollection is the on-disk layout of {dir}/{collection}.json.
type LocalCollection struct {
	Name      string          `json:"name"`
	Documents []LocalDocument `json:"documents"`
}

// LocalIndex is a brute-force cosine index over a collection loaded into
// memory. It is never written after load, so concurrent searches are safe.
type LocalIndex struct {
	name string
	docs []LocalDocument
}

func collectionPath(dir, collection string) string {
	return filepath.Join(dir, collection+".json")
}

// OpenLocal loads the collection file from dir.
func OpenLocal(dir, collection string) (*LocalIndex, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errx.Connection(fmt.Sprintf("vector store directory %q is not accessible", dir), err)
	}
	if !info.IsDir() {
		return nil, errx.Connection(fmt.Sprintf("vector store location %q is not a directory", dir), nil)
	}

	b, err := os.ReadFile(collectionPath(dir, collection))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errx.Connection(fmt.Sprintf("collection %q not found in %q", collection, dir), err)
		}
		return nil, errx.Connection(fmt.Sprintf("collection %q is not readable", collection), err)
	}

	var c LocalCollection
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, errx.Connection(fmt.Sprintf("collection %q is corrupt", collection), err)
	}
	return &LocalIndex{name: collection, docs: c.Documents}, nil
}

// WriteLocal persists a collection in the layout OpenLocal reads.
func WriteLocal(dir string, c LocalCollection) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(collectionPath(dir, c.Name), b, 0o644)
}

func (l *LocalIndex) Len() int {
	return len(l.docs)
}

func (l *LocalIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(l.docs))
	for _, d := range l.docs {
		hits = append(hits, Hit{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Score:     cosineSimilarity(vector, d.Embedding),
			Embedding: d.Embedding,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (l *LocalIndex) Close() error {
	return nil
}

var _ Index = (*LocalIndex)(nil)
