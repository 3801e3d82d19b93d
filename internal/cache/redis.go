package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sensorwatch/internal/storage"
)

// RedisOptions configure the Redis-backed recent-reading window.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Window    time.Duration
}

// Redis keeps each sensor's recent readings in a sorted set scored by
// insertion time, so a fetch is a single range query over the window.
type Redis struct {
	rdb    *redis.Client
	prefix string
	window time.Duration
	now    func() time.Time
}

type envelope struct {
	ID     string                `json:"id"`
	Record storage.ReadingRecord `json:"record"`
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisWithClient(rdb, opts), nil
}

func newRedisWithClient(rdb *redis.Client, opts RedisOptions) *Redis {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{rdb: rdb, prefix: opts.KeyPrefix, window: window, now: time.Now}
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Put adds a record that expires after ttl, and trims anything older.
func (r *Redis) Put(ctx context.Context, rec storage.ReadingRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.window
	}

	member, err := json.Marshal(envelope{ID: uuid.NewString(), Record: rec})
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	now := r.now()
	key := r.key(rec.SensorName)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(ttl).UnixMilli()), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(now.UnixMilli(), 10))
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store recent reading: %w", err)
	}
	return nil
}

// Recent returns the unexpired readings for sensorName, oldest first.
func (r *Redis) Recent(ctx context.Context, sensorName string) ([]storage.ReadingRecord, error) {
	minScore := strconv.FormatInt(r.now().UnixMilli(), 10)
	members, err := r.rdb.ZRangeByScore(ctx, r.key(sensorName), &redis.ZRangeBy{Min: minScore, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent readings: %w", err)
	}

	out := make([]storage.ReadingRecord, 0, len(members))
	for _, m := range members {
		var env envelope
		if err := json.Unmarshal([]byte(m), &env); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recent reading: %w", err)
		}
		out = append(out, env.Record)
	}
	return out, nil
}

func (r *Redis) key(sensorName string) string {
	return r.prefix + "recent:" + sensorName
}
