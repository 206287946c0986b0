package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/Tanay2104/Smart-Email/core/domain"
)

const (
	verdictPrefix   = "smartmail:verdict:"
	embeddingPrefix = "smartmail:embed:"
)

// RedisCache keeps verdicts and embeddings between batch runs.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache; ttl <= 0 means entries never expire.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Key hashes the given parts into a stable cache key.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetJSON loads a JSON value; found is false on a miss.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}

	return true, nil
}

// SetJSON stores value as JSON.
func (c *RedisCache) SetJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// GetVerdict implements out.VerdictCache.
func (c *RedisCache) GetVerdict(ctx context.Context, key string) (*domain.Verdict, bool, error) {
	var v domain.Verdict
	ok, err := c.GetJSON(ctx, verdictPrefix+key, &v)
	if err != nil || !ok {
		return nil, false, err
	}
	return &v, true, nil
}

// SetVerdict implements out.VerdictCache.
func (c *RedisCache) SetVerdict(ctx context.Context, key string, v domain.Verdict) error {
	return c.SetJSON(ctx, verdictPrefix+key, v)
}

// GetEmbedding loads a cached embedding for key.
func (c *RedisCache) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	var vec []float32
	ok, err := c.GetJSON(ctx, embeddingPrefix+key, &vec)
	if err != nil || !ok {
		return nil, false, err
	}
	return vec, true, nil
}

// SetEmbedding stores an embedding for key.
func (c *RedisCache) SetEmbedding(ctx context.Context, key string, vec []float32) error {
	return c.SetJSON(ctx, embeddingPrefix+key, vec)
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 연결 종료
func (c *RedisCache) Close() error {
	return c.client.Close()
}
