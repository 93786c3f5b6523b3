// Package redisstorage keeps the latest console state in Redis with a TTL so
// other services can read where the hero is and what path is pending.
package redisstorage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/pkg/core"
)

// Key suffixes.
const (
	KeySession = "session"
	KeyHero    = "hero"
	KeyPath    = "path"
	KeyTraffic = "traffic"
)

// Client is the subset of the go-redis client the backend uses.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Backend implements storage.Backend as a latest-value cache.
type Backend struct {
	client Client
	prefix string
	ttl    time.Duration
	ctx    context.Context

	mu      sync.Mutex
	session string
}

// New creates a backend over client.
func New(client Client, cfg config.RedisConfig) *Backend {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "console"
	}
	return &Backend{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		ctx:    context.Background(),
	}
}

// Dial creates a go-redis client for cfg.
func Dial(cfg config.RedisConfig) *Backend {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return New(rdb, cfg)
}

// Key returns the full key for a suffix.
func (b *Backend) Key(suffix string) string {
	return fmt.Sprintf("%s:%s", b.prefix, suffix)
}

// Init checks the connection.
func (b *Backend) Init() error {
	if _, err := b.client.Ping(b.ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (b *Backend) Close() error {
	return b.client.Close()
}

// StartSession stores the session and clears the previous session's state.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	b.session = s.ID
	b.mu.Unlock()

	if err := b.client.Del(b.ctx, b.Key(KeyHero), b.Key(KeyPath), b.Key(KeyTraffic)).Err(); err != nil {
		return fmt.Errorf("failed to clear previous session: %w", err)
	}
	return b.save(KeySession, s)
}

// EndSession removes the session marker; the last values expire on their TTL.
func (b *Backend) EndSession() error {
	if err := b.client.Del(b.ctx, b.Key(KeySession)).Err(); err != nil {
		return fmt.Errorf("failed to end session in Redis: %w", err)
	}
	return nil
}

// RecordHeroState stores the latest hero state.
func (b *Backend) RecordHeroState(s *core.HeroVehicleState) error {
	return b.save(KeyHero, s)
}

// RecordPathProposal stores the current path.
func (b *Backend) RecordPathProposal(p *core.PathProposal) error {
	return b.save(KeyPath, p)
}

// RecordTrafficFrame stores the latest traffic frame.
func (b *Backend) RecordTrafficFrame(f *core.TrafficFrame) error {
	return b.save(KeyTraffic, f)
}

// LatestHero reads the stored hero state.
func (b *Backend) LatestHero() (core.HeroVehicleState, error) {
	var s core.HeroVehicleState
	val, err := b.client.Get(b.ctx, b.Key(KeyHero)).Result()
	if err != nil {
		if err == redis.Nil {
			return s, fmt.Errorf("hero state not found: %w", err)
		}
		return s, fmt.Errorf("failed to get hero state from Redis: %w", err)
	}
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal hero state: %w", err)
	}
	return s, nil
}

func (b *Backend) save(suffix string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", suffix, err)
	}
	if err := b.client.Set(b.ctx, b.Key(suffix), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s to Redis: %w", suffix, err)
	}
	return nil
}
