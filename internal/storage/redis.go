package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	sferrors "github.com/felixgeelhaar/storefront/internal/errors"
)

// Redis stores entries in a Redis server so several front-end replicas can
// share visitor sessions.
type Redis struct {
	client redis.UniversalClient
	opts   RedisOptions
}

// NewRedis connects lazily to the server described by opts.
func NewRedis(opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisWithClient(client, opts)
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "storefront:"
	}
	return &Redis{client: client, opts: opts}
}

// Get returns the value stored under key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.opts.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, sferrors.NewStorageReadError(key, err)
	}
	return value, nil
}

// Set stores value with the configured TTL. A zero TTL keeps the entry forever.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.opts.Prefix+key, value, r.opts.TTL).Err(); err != nil {
		return sferrors.NewStorageWriteError(key, err)
	}
	return nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.opts.Prefix+key).Err(); err != nil {
		return sferrors.NewStorageWriteError(key, err)
	}
	return nil
}

// Ping checks connectivity to the server.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client connections.
func (r *Redis) Close() error {
	return r.client.Close()
}
