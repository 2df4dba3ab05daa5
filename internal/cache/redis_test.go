package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"leasebook/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(m.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestAttentionCacheLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	c := &AttentionCache{store: mock, ttl: time.Minute}

	_, ok, err := c.GetCount(ctx, "lg-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetCount(ctx, "lg-1", 3))
	assert.Equal(t, time.Minute, mock.ttls["leasebook:attention:lg-1"])

	n, ok, err := c.GetCount(ctx, "lg-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	require.NoError(t, c.Invalidate(ctx, "lg-1"))
	_, ok, err = c.GetCount(ctx, "lg-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGarbageEntryIsAMiss(t *testing.T) {
	mock := newMockCmdable()
	mock.data[CountKey("lg-1")] = "many"
	c := &AttentionCache{store: mock}

	_, ok, err := c.GetCount(context.Background(), "lg-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{})
	assert.Error(t, err)
	_, err = New(context.Background(), config.RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}
