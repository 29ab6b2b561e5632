// Package knowledge serves ranked, store-scoped passages from the
// knowledge base.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ibtisamdev/reva-sub001/pkg/llm"
)

// Chunk is one retrieved passage. ArticleURL may be empty.
type Chunk struct {
	ChunkID      string  `json:"chunk_id"`
	ArticleID    string  `json:"article_id"`
	ArticleTitle string  `json:"article_title"`
	ArticleURL   string  `json:"article_url,omitempty"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
}

// Index returns chunks for storeID ordered by descending score. An empty
// result is not an error.
type Index interface {
	Query(ctx context.Context, storeID, text string, topK int) ([]Chunk, error)
}

type searcher interface {
	Search(ctx context.Context, storeID string, embedding []float32, limit int) ([]Chunk, error)
}

// VectorIndex embeds the query text and runs a similarity search.
type VectorIndex struct {
	embedder llm.EmbeddingClient
	store    searcher
}

func NewVectorIndex(embedder llm.EmbeddingClient, store searcher) (*VectorIndex, error) {
	if embedder == nil {
		return nil, errors.New("embedding client is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &VectorIndex{embedder: embedder, store: store}, nil
}

func (v *VectorIndex) Query(ctx context.Context, storeID, text string, topK int) ([]Chunk, error) {
	if storeID == "" {
		return nil, errors.New("store id is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	start := time.Now()
	vectors, err := v.embedder.Embed(ctx, []string{text})
	embedDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		embedCallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}
	embedCallsTotal.WithLabelValues("success").Inc()
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("embed query: empty embedding")
	}

	chunks, err := v.store.Search(ctx, storeID, vectors[0], topK)
	if err != nil {
		return nil, err
	}
	SortByScore(chunks)
	return chunks, nil
}

// SortByScore orders chunks by descending score, keeping input order for ties.
func SortByScore(chunks []Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}
