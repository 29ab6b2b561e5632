package knowledge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ibtisamdev/reva-sub001/pkg/redis"
)

type fakeEmbedder struct {
	err    error
	inputs []string
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.inputs = append(f.inputs, inputs...)
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{{0.1, 0.2, 0.3}}, nil
}

type fakeSearcher struct {
	chunks  []Chunk
	storeID string
	limit   int
}

func (f *fakeSearcher) Search(_ context.Context, storeID string, _ []float32, limit int) ([]Chunk, error) {
	f.storeID = storeID
	f.limit = limit
	return append([]Chunk(nil), f.chunks...), nil
}

func TestVectorIndexOrdersByScore(t *testing.T) {
	searcher := &fakeSearcher{chunks: []Chunk{
		{ChunkID: "low", Score: 0.2},
		{ChunkID: "high", Score: 0.9},
		{ChunkID: "tie-a", Score: 0.5},
		{ChunkID: "tie-b", Score: 0.5},
	}}
	embedder := &fakeEmbedder{}
	index, err := NewVectorIndex(embedder, searcher)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	chunks, err := index.Query(context.Background(), "store-1", "  return policy ", 4)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	got := []string{chunks[0].ChunkID, chunks[1].ChunkID, chunks[2].ChunkID, chunks[3].ChunkID}
	want := []string{"high", "tie-a", "tie-b", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if searcher.storeID != "store-1" || searcher.limit != 4 {
		t.Fatalf("unexpected scope %q/%d", searcher.storeID, searcher.limit)
	}
	if len(embedder.inputs) != 1 || embedder.inputs[0] != "return policy" {
		t.Fatalf("unexpected embed inputs %v", embedder.inputs)
	}
}

func TestVectorIndexBlankQuery(t *testing.T) {
	embedder := &fakeEmbedder{}
	index, _ := NewVectorIndex(embedder, &fakeSearcher{})
	chunks, err := index.Query(context.Background(), "store-1", "   ", 5)
	if err != nil || len(chunks) != 0 {
		t.Fatalf("expected empty result, got %v %v", chunks, err)
	}
	if len(embedder.inputs) != 0 {
		t.Fatal("blank query should not be embedded")
	}
}

func TestVectorIndexEmbedFailure(t *testing.T) {
	index, _ := NewVectorIndex(&fakeEmbedder{err: errors.New("rate limited")}, &fakeSearcher{})
	if _, err := index.Query(context.Background(), "store-1", "hi", 5); err == nil {
		t.Fatal("expected error")
	}
	if _, err := index.Query(context.Background(), "", "hi", 5); err == nil {
		t.Fatal("expected error for missing store id")
	}
}

type countingIndex struct {
	mu     sync.Mutex
	calls  atomic.Int32
	err    error
	chunks []Chunk
}

func (c *countingIndex) Query(_ context.Context, storeID, _ string, _ int) ([]Chunk, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Chunk, len(c.chunks))
	copy(out, c.chunks)
	for i := range out {
		out[i].ChunkID = storeID + "/" + out[i].ChunkID
	}
	return out, nil
}

func TestCachedIndexMemoizesPerStore(t *testing.T) {
	next := &countingIndex{chunks: []Chunk{{ChunkID: "c1", ArticleID: "a", Score: 0.8}}}
	index := NewCachedIndex(next, CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	first, err := index.Query(ctx, "store-1", "Return Policy", 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	second, err := index.Query(ctx, "store-1", "  return   policy", 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if next.calls.Load() != 1 {
		t.Fatalf("expected normalized text to hit cache, got %d calls", next.calls.Load())
	}
	if first[0].ChunkID != "store-1/c1" || second[0].ChunkID != "store-1/c1" {
		t.Fatalf("unexpected chunks %v %v", first, second)
	}

	other, err := index.Query(ctx, "store-2", "return policy", 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if other[0].ChunkID != "store-2/c1" || next.calls.Load() != 2 {
		t.Fatalf("expected store isolation, got %v after %d calls", other, next.calls.Load())
	}

	first[0].Content = "mutated"
	again, _ := index.Query(ctx, "store-1", "return policy", 5)
	if again[0].Content == "mutated" {
		t.Fatal("cached slice leaked to caller")
	}
}

func TestCachedIndexDoesNotCacheErrors(t *testing.T) {
	next := &countingIndex{err: errors.New("db down")}
	index := NewCachedIndex(next, CacheConfig{TTL: time.Minute})
	for i := 0; i < 2; i++ {
		if _, err := index.Query(context.Background(), "store-1", "q", 5); err == nil {
			t.Fatal("expected error")
		}
	}
	if next.calls.Load() != 2 {
		t.Fatalf("expected failures to reach the index every time, got %d", next.calls.Load())
	}
}

func TestCachedIndexSharesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	kv := redis.NewKV(client, "reva:knowledge")

	next := &countingIndex{chunks: []Chunk{{ChunkID: "c1", ArticleID: "a", ArticleTitle: "Returns", Score: 0.8}}}
	replicaA := NewCachedIndex(next, CacheConfig{TTL: time.Minute, Remote: kv})
	replicaB := NewCachedIndex(next, CacheConfig{TTL: time.Minute, Remote: kv})

	if _, err := replicaA.Query(context.Background(), "store-1", "returns", 5); err != nil {
		t.Fatalf("query: %v", err)
	}
	chunks, err := replicaB.Query(context.Background(), "store-1", "returns", 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if next.calls.Load() != 1 {
		t.Fatalf("expected second replica to read redis, got %d index calls", next.calls.Load())
	}
	if len(chunks) != 1 || chunks[0].ArticleTitle != "Returns" {
		t.Fatalf("unexpected chunks %v", chunks)
	}
}
