package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/storage"
)

func TestMemoryExpiresByTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, m.Put(ctx, storage.ReadingRecord{SensorName: "s1", SensorReading: 10}, 0))
	require.NoError(t, m.Put(ctx, storage.ReadingRecord{SensorName: "s1", SensorReading: 20}, 10*time.Second))
	require.NoError(t, m.Put(ctx, storage.ReadingRecord{SensorName: "s2", SensorReading: 99}, 0))

	recent, err := m.Recent(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	now = now.Add(30 * time.Second)
	recent, err = m.Recent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 10.0, recent[0].SensorReading)

	now = now.Add(time.Minute)
	recent, err = m.Recent(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMemoryDefaultsWindow(t *testing.T) {
	assert.Equal(t, DefaultWindow, NewMemory(0).window)
}

func TestRedisKeyAndDefaults(t *testing.T) {
	r := newRedisWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), RedisOptions{KeyPrefix: "sw:"})
	defer r.Close()

	assert.Equal(t, "sw:recent:arduino_1", r.key("arduino_1"))
	assert.Equal(t, DefaultWindow, r.window)
}

func TestRedisUnreachableReturnsError(t *testing.T) {
	r := newRedisWithClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}), RedisOptions{})
	defer r.Close()

	_, err := r.Recent(context.Background(), "s1")
	assert.Error(t, err)
}
