package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type payload struct {
	Name string `json:"name"`
}

func TestJSONHelpers_NilClient(t *testing.T) {
	ctx := context.Background()
	var p payload
	found, err := GetJSON(ctx, nil, "k", &p)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, SetJSON(ctx, nil, "k", p, time.Minute))
	assert.NoError(t, DeleteTree(ctx, nil, "k"))
}

func TestDeleteTree(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()

	for _, k := range []string{"q:post", "q:post:1", "q:post:2", "q:posts", "q:communities"} {
		require.NoError(t, mr.Set(k, "{}"))
	}

	require.NoError(t, DeleteTree(ctx, rdb, "q:post"))
	assert.False(t, mr.Exists("q:post"))
	assert.False(t, mr.Exists("q:post:1"))
	assert.False(t, mr.Exists("q:post:2"))
	assert.True(t, mr.Exists("q:posts"), "sibling with a longer segment is kept")
	assert.True(t, mr.Exists("q:communities"))
}
