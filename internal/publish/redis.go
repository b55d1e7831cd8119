package publish

import (
	"context"
	"fmt"
	"time"

	"flux-sentinel/internal/config"

	"github.com/redis/go-redis/v9"
)

type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisSink keeps the latest snapshot under a key and broadcasts each one on a channel.
type RedisSink struct {
	client  redisClient
	key     string
	channel string
	ttl     time.Duration
}

func NewRedisSink(cfg config.RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisSink(client, cfg.Key, cfg.Channel, cfg.TTL), nil
}

func newRedisSink(client redisClient, key, channel string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, key: key, channel: channel, ttl: ttl}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, event Event) error {
	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if s.key != "" {
		if err := s.client.Set(ctx, s.key, payload, s.ttl).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", s.key, err)
		}
	}
	if s.channel != "" {
		if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", s.channel, err)
		}
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
