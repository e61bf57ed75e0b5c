package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by reads when the key or field does not exist.
const Nil = redis.Nil

// Client wraps go-redis with per-operation logging and key building.
type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// Connection tuning
const (
	poolSize      = 50
	minIdleConns  = 5
	maxRetries    = 3
	dialTimeout   = 5 * time.Second
	readTimeout   = 3 * time.Second
	writeTimeout  = 3 * time.Second
	connectProbe  = 5 * time.Second
	scanBatchSize = 200
)

// NewClient creates a new Redis client and verifies the connection.
// keyPrefix is an optional deployment namespace prepended to every key.
func NewClient(redisURL string, keyPrefix string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = poolSize
	opts.MinIdleConns = minIdleConns
	opts.MaxRetries = maxRetries
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = readTimeout
	opts.WriteTimeout = writeTimeout

	if log == nil {
		log = zap.NewNop()
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectProbe)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(keyPrefix), log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Type reports the stored type of key ("none", "string", "hash", ...).
func (c *Client) Type(ctx context.Context, key string) (string, error) {
	start := time.Now()
	t, err := c.rdb.Type(ctx, key).Result()
	c.observe("redis_type", key, start, err, zap.String("type", t))
	return t, err
}

// Get retrieves a string value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Result()
	c.observe("redis_get", key, start, err)
	return val, err
}

// Set stores a string value with an expiration (0 means none)
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, value, expiration).Err()
	c.observe("redis_set", key, start, err)
	return err
}

// Delete removes keys from Redis
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	c.observe("redis_del", strings.Join(keys, ","), start, err, zap.Int("keys", len(keys)))
	return err
}

// HGet reads a single hash field.
func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	start := time.Now()
	val, err := c.rdb.HGet(ctx, key, field).Result()
	c.observe("redis_hget", key, start, err, zap.String("field", fieldForLog(field)))
	return val, err
}

// HSet sets hash fields
func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) error {
	start := time.Now()
	err := c.rdb.HSet(ctx, key, values...).Err()
	c.observe("redis_hset", key, start, err, zap.Int("fields", len(values)/2))
	return err
}

// HIncrBy atomically increments a hash field.
func (c *Client) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	start := time.Now()
	v, err := c.rdb.HIncrBy(ctx, key, field, incr).Result()
	c.observe("redis_hincrby", key, start, err, zap.Int64("value", v))
	return v, err
}

// Expire sets a TTL on a key
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Expire(ctx, key, ttl).Err()
	c.observe("redis_expire", key, start, err)
	return err
}

// TTL returns the remaining time to live of a key.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	start := time.Now()
	d, err := c.rdb.TTL(ctx, key).Result()
	c.observe("redis_ttl", key, start, err)
	return d, err
}

// ScanKeys returns every key matching pattern using SCAN, so large keyspaces
// never block the server the way KEYS does. SCAN may return a key more than
// once when the keyspace is rehashed mid-iteration; the result holds each key
// once, in first-seen order.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	start := time.Now()
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	keys = uniqueKeys(keys)
	err := iter.Err()
	c.observe("redis_scan", pattern, start, err, zap.Int("keys", len(keys)))
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// RunScript evaluates a Lua script atomically on the server.
func (c *Client) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	start := time.Now()
	res, err := script.Run(ctx, c.rdb, keys, args...).Result()
	c.observe("redis_eval", strings.Join(keys, ","), start, err)
	return res, err
}

// Pipeline creates a new pipeline for batch operations
func (c *Client) Pipeline() redis.Pipeliner {
	return c.rdb.Pipeline()
}

// TxPipeline creates a MULTI/EXEC pipeline.
func (c *Client) TxPipeline() redis.Pipeliner {
	return c.rdb.TxPipeline()
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	c.observe("redis_ping", "", start, err)
	return err
}

// IsWrongType reports whether err is a WRONGTYPE reply, which happens when a
// hash command hits a key that still holds a plain string.
func IsWrongType(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "WRONGTYPE")
}

// observe logs a finished command. Misses (redis.Nil) are not failures.
func (c *Client) observe(op, key string, start time.Time, err error, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("key_prefix", prefixForLog(key)),
		zap.Duration("duration", time.Since(start)),
	}, extra...)

	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Info(op, append(fields, zap.Error(err))...)
		return
	}
	c.log.Debug(op, fields...)
}

// prefixForLog returns a safe prefix of a key to avoid logging session tokens
func prefixForLog(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "…"
}

// fieldForLog hides the token part of session marker fields.
func fieldForLog(field string) string {
	if i := strings.IndexByte(field, ':'); i >= 0 {
		return field[:i+1] + "…"
	}
	return field
}
