package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanamichi-me/DW-traffic/testutil"
)

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint("postgres", map[string]interface{}{"min_support": 0.02, "attributes": []string{"gender"}})
	require.NoError(t, err)
	b, err := Fingerprint("postgres", map[string]interface{}{"attributes": []string{"gender"}, "min_support": 0.02})
	require.NoError(t, err)
	assert.Equal(t, a, b, "map order does not matter")
	assert.Len(t, a, 64)

	c, err := Fingerprint("csv", map[string]interface{}{"min_support": 0.02, "attributes": []string{"gender"}})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = Fingerprint(make(chan int))
	assert.Error(t, err)
}

func TestNopResultCache(t *testing.T) {
	var c ResultCache = NopResultCache{}
	ctx := context.Background()
	require.NoError(t, c.Store(ctx, "fp", "run-1"))
	_, ok, err := c.Lookup(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx, "fp"))
}

func TestRedisResultCache(t *testing.T) {
	client := testutil.NewTestRedis(t)
	c := NewRedisResultCache(client, time.Minute)
	ctx := context.Background()

	_, ok, err := c.Lookup(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Store(ctx, "fp", "run-1"))
	runID, ok, err := c.Lookup(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "run-1", runID)

	ttl, err := client.TTL(ctx, keyPrefix+"fp").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, c.Invalidate(ctx, "fp"))
	_, ok, err = c.Lookup(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)
}
