package redisstorage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/internal/storage"
	"github.com/roadops/operator-console/pkg/core"
)

var _ storage.Backend = (*Backend)(nil)

// fakeClient is an in-process key/value store with the go-redis result types.
type fakeClient struct {
	mu      sync.Mutex
	data    map[string]string
	ttl     map[string]time.Duration
	pingErr error
	closed  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.pingErr)
}

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	default:
		return redis.NewStatusResult("", errors.New("unsupported value"))
	}
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestBackend_StoresLatest(t *testing.T) {
	client := newFakeClient()
	b := New(client, config.RedisConfig{KeyPrefix: "ops", TTL: time.Minute})

	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(&core.Session{ID: "s1"}))
	require.NoError(t, b.RecordHeroState(&core.HeroVehicleState{Position: core.Vec3{X: 1}}))
	require.NoError(t, b.RecordHeroState(&core.HeroVehicleState{Position: core.Vec3{X: 2}, AutonomyState: core.AutonomyStuck}))
	require.NoError(t, b.RecordPathProposal(&core.PathProposal{ID: "p"}))
	require.NoError(t, b.RecordTrafficFrame(&core.TrafficFrame{Tick: 3}))

	hero, err := b.LatestHero()
	require.NoError(t, err)
	assert.Equal(t, 2.0, hero.Position.X)
	assert.True(t, hero.IsStuck())

	assert.Contains(t, client.data, "ops:session")
	assert.Contains(t, client.data, "ops:path")
	assert.Contains(t, client.data, "ops:traffic")
	assert.Equal(t, time.Minute, client.ttl["ops:hero"])

	require.NoError(t, b.EndSession())
	assert.NotContains(t, client.data, "ops:session")

	require.NoError(t, b.Close())
	assert.True(t, client.closed)
}

func TestBackend_NewSessionClearsState(t *testing.T) {
	client := newFakeClient()
	b := New(client, config.RedisConfig{})
	require.NoError(t, b.StartSession(&core.Session{ID: "s1"}))
	require.NoError(t, b.RecordHeroState(&core.HeroVehicleState{}))

	require.NoError(t, b.StartSession(&core.Session{ID: "s2"}))

	_, err := b.LatestHero()
	assert.ErrorIs(t, err, redis.Nil)
	assert.Equal(t, "console:hero", b.Key(KeyHero))
}

func TestBackend_InitPingFails(t *testing.T) {
	client := newFakeClient()
	client.pingErr = errors.New("connection refused")

	err := New(client, config.RedisConfig{}).Init()

	assert.ErrorContains(t, err, "failed to connect to Redis")
}
