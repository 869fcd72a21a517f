package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisRepository implements Repository.
var _ Repository = (*RedisRepository)(nil)

// redisKeyPrefix namespaces job records in the keyspace.
const redisKeyPrefix = "avatar:job:"

// RedisRepository is a Redis-backed implementation of Repository.
// Records are stored as JSON documents; conditional updates run inside a
// WATCH transaction so that a concurrent writer aborts the EXEC, and the
// version check inside the transaction rejects writers holding stale reads.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a RedisRepository and verifies connectivity.
func NewRedisRepository(addr string) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis repository: ping %s: %w", addr, err)
	}

	return &RedisRepository{client: client}, nil
}

// NewRedisRepositoryWithClient wraps an existing client, used in tests.
func NewRedisRepositoryWithClient(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

// Close releases the underlying connection pool.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// Create persists a new job. Uses SETNX so a duplicate ID is rejected.
func (r *RedisRepository) Create(ctx context.Context, j *Job) error {
	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("redis repository: marshal job %s: %w", j.ID, err)
	}

	ok, err := r.client.SetNX(ctx, redisKey(j.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("redis repository: create job %s: %w", j.ID, err)
	}
	if !ok {
		return ErrJobExists
	}
	return nil
}

// Get retrieves a job by ID.
func (r *RedisRepository) Get(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis repository: get job %s: %w", id, err)
	}

	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("redis repository: unmarshal job %s: %w", id, err)
	}
	return &j, nil
}

// Update writes the job back only if the stored version matches j.Version.
// The read-check-write runs under WATCH so a concurrent write between the
// read and the EXEC aborts the transaction; both paths surface as
// ErrVersionConflict and the caller re-reads.
func (r *RedisRepository) Update(ctx context.Context, j *Job) error {
	key := redisKey(j.ID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("read current record: %w", err)
		}

		var stored Job
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("unmarshal current record: %w", err)
		}
		if stored.Version != j.Version {
			return ErrVersionConflict
		}

		next := j.Clone()
		next.Version++
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}

		j.Version = next.Version
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrJobNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("redis repository: update job %s: %w", j.ID, err)
	}
	return nil
}

// List returns all jobs, scanning the job key namespace.
func (r *RedisRepository) List(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis repository: list jobs: %w", err)
		}
		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, fmt.Errorf("redis repository: unmarshal job %s: %w", iter.Val(), err)
		}
		jobs = append(jobs, &j)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis repository: scan jobs: %w", err)
	}
	return jobs, nil
}
