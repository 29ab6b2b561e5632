package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Options struct {
	TTL                  time.Duration
	StaleWhileRevalidate time.Duration
	MaxEntries           int
	// RefreshTimeout bounds shared loads and background refreshes, which
	// outlive the caller's context.
	RefreshTimeout time.Duration
}

// MetricsHooks are invoked on cache outcomes. Any hook may be nil.
type MetricsHooks struct {
	OnHit   func()
	OnMiss  func()
	OnStale func()
	OnError func()
}

// Remote is an optional shared second tier consulted on local misses.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Loader produces the value for a key on a miss. Errors are never cached.
type Loader[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value     V
	expiresAt time.Time
	staleAt   time.Time
	lastUsed  time.Time
}

// Cache is a typed TTL cache with stale-while-revalidate and per-key load
// coalescing.
type Cache[V any] struct {
	mu      sync.Mutex
	items   map[string]*entry[V]
	opts    Options
	metrics MetricsHooks
	remote  Remote
	sf      singleflight.Group
	now     func() time.Time
}

func New[V any](opts Options, hooks MetricsHooks) *Cache[V] {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 10 * time.Second
	}
	return &Cache[V]{
		items:   make(map[string]*entry[V]),
		opts:    opts,
		metrics: hooks,
		now:     time.Now,
	}
}

// WithRemote attaches a shared tier. Values are stored JSON-encoded.
func (c *Cache[V]) WithRemote(remote Remote) *Cache[V] {
	c.remote = remote
	return c
}

func (c *Cache[V]) Get(ctx context.Context, key string, load Loader[V]) (V, error) {
	now := c.now()
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		e.lastUsed = now
		if now.Before(e.expiresAt) {
			val := e.value
			c.mu.Unlock()
			fire(c.metrics.OnHit)
			return val, nil
		}
		if now.Before(e.staleAt) {
			val := e.value
			c.mu.Unlock()
			fire(c.metrics.OnStale)
			go c.refresh(context.WithoutCancel(ctx), key, load)
			return val, nil
		}
		delete(c.items, key)
	}
	c.mu.Unlock()

	fire(c.metrics.OnMiss)
	// The shared load outlives any single caller; each caller only gives up
	// its own wait.
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RefreshTimeout)
		defer cancel()
		return c.fill(loadCtx, key, load)
	})
	var zero V
	select {
	case <-ctx.Done():
		fire(c.metrics.OnError)
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			fire(c.metrics.OnError)
			return zero, res.Err
		}
		val, _ := res.Val.(V)
		return val, nil
	}
}

func (c *Cache[V]) fill(ctx context.Context, key string, load Loader[V]) (V, error) {
	if c.remote != nil {
		if raw, ok, err := c.remote.Get(ctx, key); err == nil && ok {
			var val V
			if json.Unmarshal(raw, &val) == nil {
				c.Set(key, val)
				return val, nil
			}
		}
	}
	val, err := load(ctx)
	if err != nil {
		return val, err
	}
	c.Set(key, val)
	if c.remote != nil {
		if raw, mErr := json.Marshal(val); mErr == nil {
			_ = c.remote.Set(ctx, key, raw, c.opts.TTL)
		}
	}
	return val, nil
}

func (c *Cache[V]) refresh(ctx context.Context, key string, load Loader[V]) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RefreshTimeout)
	defer cancel()
	_, err, _ := c.sf.Do("refresh:"+key, func() (interface{}, error) {
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, val)
		return val, nil
	})
	if err != nil {
		fire(c.metrics.OnError)
	}
}

func (c *Cache[V]) Set(key string, val V) {
	now := c.now()
	expires := now.Add(c.opts.TTL)
	c.mu.Lock()
	c.items[key] = &entry[V]{
		value:     val,
		expiresAt: expires,
		staleAt:   expires.Add(c.opts.StaleWhileRevalidate),
		lastUsed:  now,
	}
	c.evictIfNeeded()
	c.mu.Unlock()
}

// Peek returns a cached value without triggering a load. Stale entries are allowed.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || !c.now().Before(e.staleAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictIfNeeded drops least recently used entries. Caller holds mu.
func (c *Cache[V]) evictIfNeeded() {
	for c.opts.MaxEntries > 0 && len(c.items) > c.opts.MaxEntries {
		var victim string
		var oldest time.Time
		first := true
		for k, e := range c.items {
			if first || e.lastUsed.Before(oldest) {
				victim, oldest, first = k, e.lastUsed, false
			}
		}
		delete(c.items, victim)
	}
}

func fire(hook func()) {
	if hook != nil {
		hook()
	}
}
