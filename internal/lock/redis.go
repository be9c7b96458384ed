package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Redis is a distributed keyed mutex built on redsync.
type Redis struct {
	client *redis.Client
	rs     *redsync.Redsync
	ttl    time.Duration
	prefix string
}

// RedisOptions configures a Redis locker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // Lock expiry if the holder dies; defaults to 8s
}

// NewRedis connects to Redis and returns a locker. The connection is checked
// with a PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 8 * time.Second
	}

	return &Redis{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		prefix: "taskboard:lock:",
	}, nil
}

// Lock acquires key across every process sharing the Redis server.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	mutex := r.rs.NewMutex(r.prefix+key, redsync.WithExpiry(r.ttl))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// An unreleased lock expires after the TTL, so the error is dropped.
			// The caller's ctx may already be done here.
			_, _ = mutex.Unlock()
		})
	}, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
