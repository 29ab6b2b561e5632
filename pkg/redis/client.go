package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultTimeout = 5 * time.Second

// Config configures a topology-agnostic Redis connection. go-redis routes
// on the options: MasterName set means Sentinel, several Addrs means
// Cluster, a single Addr is standalone.
type Config struct {
	Addrs        []string
	MasterName   string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func NewUniversalClient(ctx context.Context, cfg Config) (goredis.UniversalClient, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("at least one redis address is required")
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  orDefault(cfg.DialTimeout),
		ReadTimeout:  orDefault(cfg.ReadTimeout),
		WriteTimeout: orDefault(cfg.WriteTimeout),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}

// KV adapts a Redis client to a namespaced byte store with TTLs.
type KV struct {
	client goredis.Cmdable
	prefix string
}

func NewKV(client goredis.Cmdable, prefix string) *KV {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix != "" {
		prefix += ":"
	}
	return &KV{client: client, prefix: prefix}
}

func (kv *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := kv.client.Get(ctx, kv.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return raw, true, nil
}

func (kv *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := kv.client.Set(ctx, kv.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
