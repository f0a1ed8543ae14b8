package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bolo/internal/config"
)

func TestKeyspace(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "webhook", keyspace(redis.NewStringCmd(ctx, "get", "webhook:telebirr:TX1:SUCCESS")))
	assert.Equal(t, "plain", keyspace(redis.NewStringCmd(ctx, "get", "plain")))
	assert.Equal(t, "redis", keyspace(redis.NewStatusCmd(ctx, "ping")))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: addr}, nil)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "bolo.log")
	logger, err := NewLogger(config.LogConfig{Level: "warn", File: file})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Contains(t, entry, "timestamp")
}
