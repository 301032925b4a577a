package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Gaurav-Gosain/cfproblem/problem"
)

const defaultKeyPrefix = "cfproblem:problem:"

// RedisConfig describes how to reach the durable Redis tier.
type RedisConfig struct {
	Address   string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis stores documents as JSON strings without expiry.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis dials cfg.Address and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		return nil, errors.New("store: redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}
	return NewRedisWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisWithClient wraps an existing client. An empty prefix selects the
// default "cfproblem:problem:".
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) FindByID(ctx context.Context, key string) (*problem.Document, bool, error) {
	payload, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: redis get %s: %w", key, err)
	}
	var doc problem.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, false, fmt.Errorf("store: redis unmarshal %s: %w", key, err)
	}
	return &doc, true, nil
}

func (r *Redis) Upsert(ctx context.Context, key string, doc *problem.Document) error {
	if doc == nil {
		return errors.New("store: nil document")
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: redis marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, payload, 0).Err(); err != nil {
		return fmt.Errorf("store: redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
