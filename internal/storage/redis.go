package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wintersim/muonio/pkg/scenario"
)

const (
	runKeyPrefix = "run:"
	runIndexKey  = "runs" // sorted set of run ids scored by start time
)

// RedisStorage implements the Storage interface on Redis. Each run is a JSON
// value at run:<id>, indexed by start time in the runs sorted set.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage creates storage on the Redis server at redisURL. The
// connection is made on first use; startup code waits for it with
// WaitForConnection.
func NewRedisStorage(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisStorage, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	logger.Info("Using Redis for run storage", "addr", opt.Addr)
	return &RedisStorage{
		client: redis.NewClient(opt),
		logger: logger,
	}, nil
}

// Client exposes the underlying client so the event broadcaster can share it.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// Run operations

func (r *RedisStorage) SaveRun(ctx context.Context, rec *scenario.Record) error {
	if rec == nil {
		return errors.New("run record cannot be nil")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		r.logger.Error("Failed to marshal run record", "run_id", rec.ID, "error", err)
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, runKeyPrefix+rec.ID.String(), data, 0)
		pipe.ZAdd(ctx, runIndexKey, redis.Z{
			Score:  float64(rec.StartedAt.UnixMilli()),
			Member: rec.ID.String(),
		})
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save run record", "run_id", rec.ID, "error", err)
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadRun(ctx context.Context, id uuid.UUID) (*scenario.Record, error) {
	data, err := r.client.Get(ctx, runKeyPrefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Warn("Run record not found", "run_id", id)
			return nil, nil
		}
		r.logger.Error("Failed to load run record", "run_id", id, "error", err)
		return nil, fmt.Errorf("failed to load run record: %w", err)
	}

	var rec scenario.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		r.logger.Error("Failed to unmarshal run record", "run_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal run record: %w", err)
	}
	return &rec, nil
}

func (r *RedisStorage) ListRuns(ctx context.Context, limit int) ([]*scenario.Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, runIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(ids) == 0 {
		return []*scenario.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKeyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	records := make([]*scenario.Record, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			r.logger.Warn("Indexed run record is missing", "run_id", ids[i])
			continue
		}
		var rec scenario.Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			r.logger.Error("Skipping unreadable run record", "run_id", ids[i], "error", err)
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}
