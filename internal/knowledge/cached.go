package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ibtisamdev/reva-sub001/pkg/cache"
)

// CachedIndex memoizes successful queries per store, top_k and normalized
// text. Failures pass through uncached.
type CachedIndex struct {
	next  Index
	cache *cache.Cache[[]Chunk]
}

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
	// Remote is an optional shared tier, usually Redis.
	Remote cache.Remote
}

func NewCachedIndex(next Index, cfg CacheConfig) *CachedIndex {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 2048
	}
	c := cache.New[[]Chunk](cache.Options{
		TTL:                  cfg.TTL,
		StaleWhileRevalidate: cfg.TTL / 2,
		MaxEntries:           cfg.MaxEntries,
	}, cache.MetricsHooks{
		OnHit:   func() { retrievalCacheTotal.WithLabelValues("hit").Inc() },
		OnMiss:  func() { retrievalCacheTotal.WithLabelValues("miss").Inc() },
		OnStale: func() { retrievalCacheTotal.WithLabelValues("stale").Inc() },
		OnError: func() { retrievalCacheTotal.WithLabelValues("error").Inc() },
	})
	if cfg.Remote != nil {
		c.WithRemote(cfg.Remote)
	}
	return &CachedIndex{next: next, cache: c}
}

func (c *CachedIndex) Query(ctx context.Context, storeID, text string, topK int) ([]Chunk, error) {
	key := cacheKey(storeID, text, topK)
	chunks, err := c.cache.Get(ctx, key, func(ctx context.Context) ([]Chunk, error) {
		return c.next.Query(ctx, storeID, text, topK)
	})
	if err != nil {
		return nil, err
	}
	// Callers own the returned slice.
	return append([]Chunk(nil), chunks...), nil
}

func cacheKey(storeID, text string, topK int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s:%d:%s", storeID, topK, hex.EncodeToString(sum[:12]))
}
