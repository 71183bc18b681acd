package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnLimiter_InvalidRate(t *testing.T) {
	_, err := NewConnLimiter("not-a-rate", nil)
	assert.Error(t, err)
}

func TestAllowConn_MemoryStore(t *testing.T) {
	l, err := NewConnLimiter("3-M", nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.True(t, l.AllowConn(ctx, "10.0.0.1"), "connection %d should be allowed", i+1)
	}
	assert.False(t, l.AllowConn(ctx, "10.0.0.1"))

	// A different IP has its own bucket.
	assert.True(t, l.AllowConn(ctx, "10.0.0.2"))
}

func TestAllowConn_RedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	l, err := NewConnLimiter("2-M", client)
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, l.AllowConn(ctx, "10.0.0.1"))
	assert.True(t, l.AllowConn(ctx, "10.0.0.1"))
	assert.False(t, l.AllowConn(ctx, "10.0.0.1"))
}

func TestAllowConn_FailOpenOnStoreError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	l, err := NewConnLimiter("2-M", client)
	require.NoError(t, err)

	// Kill the backing store; the limiter must not lock clients out.
	mr.Close()
	assert.True(t, l.AllowConn(context.Background(), "10.0.0.1"))
}

func TestAllowConn_NilLimiter(t *testing.T) {
	var l *ConnLimiter
	assert.True(t, l.AllowConn(context.Background(), "10.0.0.1"))
}
