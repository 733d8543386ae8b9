package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"codesync/internal/store"
)

const redisKeyPrefix = "codesync:doc:"

// Redis keeps one JSON value per room under a common key prefix.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to redisURL, retrying with exponential backoff so a
// server booting alongside its Redis container does not give up early.
func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client, mainly for tests.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func redisKey(roomID string) string { return redisKeyPrefix + roomID }

func (r *Redis) Save(ctx context.Context, roomID string, doc store.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(roomID), data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot %q: %w", roomID, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, roomID string) error {
	if err := r.client.Del(ctx, redisKey(roomID)).Err(); err != nil {
		return fmt.Errorf("delete snapshot %q: %w", roomID, err)
	}
	return nil
}

func (r *Redis) LoadAll(ctx context.Context) (map[string]store.Document, error) {
	docs := make(map[string]store.Document)
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load snapshot %q: %w", key, err)
		}
		var doc store.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode snapshot %q: %w", key, err)
		}
		docs[key[len(redisKeyPrefix):]] = doc
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}
	return docs, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
