// Package cache holds the Redis-backed request idempotency records.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/peptide-shop/internal/config"
)

const pendingTTL = time.Minute

// Response is the first response produced for an idempotency key.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type record struct {
	BodyHash string    `json:"body_hash"`
	Done     bool      `json:"done"`
	Response *Response `json:"response,omitempty"`
}

var (
	// ErrInProgress means another request with the same key has not finished yet.
	ErrInProgress = errors.New("request with this idempotency key is in progress")
	// ErrKeyReused means the key was first used with a different request body.
	ErrKeyReused = errors.New("idempotency key reused with a different request")
)

// Idempotency stores one record per key: pending while the first request runs, then the
// captured response for ttl.
type Idempotency interface {
	// Begin claims key for a request whose body hashes to bodyHash. It returns the stored
	// response when the same request already completed.
	Begin(ctx context.Context, key, bodyHash string) (*Response, error)
	Complete(ctx context.Context, key, bodyHash string, resp Response) error
	// Abort releases a claimed key so the request can be retried.
	Abort(ctx context.Context, key string) error
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

type redisIdempotency struct {
	client      *redis.Client
	serviceName string
	ttl         time.Duration
}

func NewRedisIdempotency(client *redis.Client, serviceName string, ttl time.Duration) Idempotency {
	return &redisIdempotency{client: client, serviceName: serviceName, ttl: ttl}
}

func (r *redisIdempotency) key(key string) string {
	return fmt.Sprintf("%s:idempotency:%s", r.serviceName, key)
}

func (r *redisIdempotency) Begin(ctx context.Context, key, bodyHash string) (*Response, error) {
	pending, err := json.Marshal(record{BodyHash: bodyHash})
	if err != nil {
		return nil, err
	}

	ok, err := r.client.SetNX(ctx, r.key(key), pending, pendingTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		// Expired between SETNX and GET; treat as a concurrent claim.
		return nil, ErrInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	if rec.BodyHash != bodyHash {
		return nil, ErrKeyReused
	}
	if !rec.Done || rec.Response == nil {
		return nil, ErrInProgress
	}
	return rec.Response, nil
}

func (r *redisIdempotency) Complete(ctx context.Context, key, bodyHash string, resp Response) error {
	data, err := json.Marshal(record{BodyHash: bodyHash, Done: true, Response: &resp})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotent response: %w", err)
	}
	return nil
}

func (r *redisIdempotency) Abort(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
