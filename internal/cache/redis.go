package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cryptalert/internal/config"
	"cryptalert/internal/market"
)

// RedisMirror publishes every new snapshot to Redis: the latest under a key with a TTL,
// and each one on a pub/sub channel.
type RedisMirror struct {
	rdb     *redis.Client
	key     string
	channel string
	ttl     time.Duration
	logger  zerolog.Logger
}

type mirrorPayload struct {
	FetchedAt time.Time        `json:"fetchedAt"`
	Assets    []string         `json:"assets"`
	Data      *market.Snapshot `json:"data"`
}

// NewRedisMirror connects and pings Redis.
func NewRedisMirror(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*RedisMirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisMirror{
		rdb:     rdb,
		key:     cfg.Key,
		channel: cfg.Channel,
		ttl:     cfg.TTL,
		logger:  logger.With().Str("component", "redis_mirror").Logger(),
	}, nil
}

// Close shuts down the Redis client.
func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}

// RecordSnapshot stores and publishes the snapshot. Empty snapshots are skipped.
func (m *RedisMirror) RecordSnapshot(ctx context.Context, snap *market.Snapshot) error {
	if snap.IsEmpty() {
		return nil
	}

	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.key, b, m.ttl)
		if m.channel != "" {
			pipe.Publish(ctx, m.channel, b)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror snapshot to redis: %w", err)
	}

	m.logger.Debug().Str("key", m.key).Time("fetched_at", snap.FetchedAt()).Msg("snapshot mirrored")
	return nil
}

// Latest reads back the mirrored snapshot document.
func (m *RedisMirror) Latest(ctx context.Context) (json.RawMessage, error) {
	b, err := m.rdb.Get(ctx, m.key).Bytes()
	if err != nil {
		return nil, fmt.Errorf("read mirrored snapshot: %w", err)
	}
	return json.RawMessage(b), nil
}

func encodeSnapshot(snap *market.Snapshot) ([]byte, error) {
	b, err := json.Marshal(mirrorPayload{
		FetchedAt: snap.FetchedAt().UTC(),
		Assets:    snap.Assets(),
		Data:      snap,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}
