package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fiscora-ai/fiscora/config"
	"github.com/fiscora-ai/fiscora/internal/helpers"
)

// EmbeddingCache memoizes query embeddings in Redis. All methods are safe on
// a nil receiver, so callers never branch on whether caching is enabled.
type EmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// New connects to Redis per configuration. When the cache is disabled or the
// server is unreachable it returns nil, which disables caching silently.
func New(ctx context.Context, cfg config.RedisConfig, logger *log.Logger) *EmbeddingCache {
	if logger == nil {
		logger = log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	}
	if !cfg.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Pass,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Printf("warn: redis unreachable, embedding cache disabled: %v", err)
		return nil
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbeddingCache{client: client, ttl: ttl, logger: logger}
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(client *redis.Client, ttl time.Duration, logger *log.Logger) *EmbeddingCache {
	if logger == nil {
		logger = log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbeddingCache{client: client, ttl: ttl, logger: logger}
}

// Key derives the cache key from normalized query text, so trivially
// reworded whitespace variants of a question share one entry.
func Key(model, text string) string {
	return fmt.Sprintf("fiscora:emb:%s:%s", model, helpers.ContentHash(text))
}

// Get returns the cached embedding for the query, or nil on miss or error.
func (c *EmbeddingCache) Get(ctx context.Context, model, text string) []float32 {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, Key(model, text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("warn: cache get failed: %v", err)
		}
		return nil
	}
	vec, err := decodeVector(raw)
	if err != nil {
		c.logger.Printf("warn: cache entry corrupt, dropping: %v", err)
		c.client.Del(ctx, Key(model, text))
		return nil
	}
	return vec
}

// Put stores the embedding best-effort; failures are logged, never returned.
func (c *EmbeddingCache) Put(ctx context.Context, model, text string, vec []float32) {
	if c == nil || len(vec) == 0 {
		return
	}
	if err := c.client.Set(ctx, Key(model, text), encodeVector(vec), c.ttl).Err(); err != nil {
		c.logger.Printf("warn: cache put failed: %v", err)
	}
}

// Close releases the Redis connection.
func (c *EmbeddingCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("invalid vector payload of %d bytes", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}
