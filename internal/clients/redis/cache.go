package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/envutil"
)

// Entry is one cached HTTP response.
type Entry struct {
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
	Status  int               `json:"status"`
}

type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// InvalidateByPrefix removes every key under prefix. Used to drop a
	// user's cached reads after a write.
	InvalidateByPrefix(ctx context.Context, prefix string) error
	Close() error
}

type cache struct {
	log       *logger.Logger
	rdb       *goredis.Client
	namespace string
}

func NewCache(log *logger.Logger) (Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := envutil.Get("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ns := envutil.Get("REDIS_CACHE_NAMESPACE", "parlor-cache")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &cache{
		log:       log.With("client", "RedisCache"),
		rdb:       rdb,
		namespace: ns,
	}, nil
}

func (c *cache) key(k string) string {
	return c.namespace + ":" + k
}

func (c *cache) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is treated as a miss.
		c.log.Warn("bad cache payload", "key", key, "error", err)
		return nil, nil
	}
	return &entry, nil
}

func (c *cache) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(key), raw, ttl).Err()
}

func (c *cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}
	return c.rdb.Del(ctx, full...).Err()
}

func (c *cache) InvalidateByPrefix(ctx context.Context, prefix string) error {
	pattern := c.key(strings.TrimSuffix(prefix, "*") + "*")
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *cache) Close() error {
	return c.rdb.Close()
}
