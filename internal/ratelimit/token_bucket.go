// Package ratelimit shares a fetch budget between crawlq workers and
// processes through a Redis token bucket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crawlq/internal/config"
)

// DefaultKey is the bucket every crawlq fetch draws from.
const DefaultKey = "crawlq:fetch"

const (
	minWaitDelay = 10 * time.Millisecond
	maxWaitDelay = time.Second
	bucketTTL    = 10 * time.Minute
)

// TokenBucket implements a distributed token bucket rate limiter using Redis.
type TokenBucket struct {
	client   redis.Scripter
	key      string
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

// NewTokenBucket constructs a bucket with the provided capacity/refill.
func NewTokenBucket(client redis.Scripter, key string, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	if key == "" {
		key = DefaultKey
	}
	return &TokenBucket{
		client:   client,
		key:      key,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
	}
}

// NewFromConfig connects to the configured Redis and returns a bucket plus a
// function closing the connection. It returns a nil bucket when rate limiting
// is disabled.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*TokenBucket, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil || cfg.RateLimit.RedisAddr == "" {
		return nil, noop, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, noop, fmt.Errorf("connect rate limit redis %s: %w", cfg.RateLimit.RedisAddr, err)
	}
	bucket := NewTokenBucket(client, DefaultKey, cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond, bucketTTL)
	return bucket, client.Close, nil
}

// Allow consumes a single token if available.
// Returns allowed flag and current token count.
func (b *TokenBucket) Allow(ctx context.Context) (bool, float64, error) {
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, b.client, []string{b.key}, b.capacity, b.refill, now, b.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, fmt.Errorf("unexpected bucket script result %T", res)
	}
	flag, ok := arr[0].(int64)
	if !ok {
		return false, 0, errors.New("unexpected bucket script allow flag")
	}
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	}
	return flag == 1, tokens, nil
}

// Wait blocks until a token is available or ctx is done.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		allowed, tokens, err := b.Allow(ctx)
		if err != nil {
			return fmt.Errorf("token bucket: %w", err)
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(b.retryDelay(tokens))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *TokenBucket) retryDelay(tokens float64) time.Duration {
	if b.refill <= 0 {
		return maxWaitDelay
	}
	missing := 1 - tokens
	if missing < 0 {
		missing = 0
	}
	delay := time.Duration(missing / b.refill * float64(time.Second))
	if delay < minWaitDelay {
		return minWaitDelay
	}
	if delay > maxWaitDelay {
		return maxWaitDelay
	}
	return delay
}

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)
