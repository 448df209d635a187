// Package storage persists the client session between runs.
//
// A Backend is a small durable key/value store, the server-side equivalent of
// the browser's local storage. The session store keeps exactly one entry per
// namespace there (the serialized {session, user} record) plus a second entry
// for an OAuth flow that is waiting for its callback.
//
// Implementations must be safe for concurrent use.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sferrors "github.com/felixgeelhaar/storefront/internal/errors"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("storage: entry not found")

// Backend is a durable key/value store.
type Backend interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	// Driver is one of "file", "memory" or "redis". Empty means "file".
	Driver string

	// Path is the session file for the file driver.
	Path string

	// Secret, when set, encrypts every value at rest.
	Secret string

	Redis RedisOptions
}

// RedisOptions configures the redis driver.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Open builds the backend described by opts.
func Open(opts Options) (Backend, error) {
	var (
		backend Backend
		err     error
	)

	switch strings.ToLower(opts.Driver) {
	case "", DriverFile:
		path := opts.Path
		if path == "" {
			path, err = DefaultPath()
			if err != nil {
				return nil, err
			}
		}
		backend = NewFile(path)
	case DriverMemory:
		backend = NewMemory()
	case DriverRedis:
		if opts.Redis.Addr == "" {
			return nil, sferrors.New(sferrors.ErrCodeStorageDriver, "redis driver requires redis.addr")
		}
		backend = NewRedis(opts.Redis)
	default:
		return nil, sferrors.New(sferrors.ErrCodeStorageDriver, fmt.Sprintf("unknown storage driver %q", opts.Driver)).
			WithSuggestion("Use one of: file, memory, redis")
	}

	if opts.Secret != "" {
		return NewSealed(backend, opts.Secret)
	}
	return backend, nil
}

// DefaultPath returns the default session file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", sferrors.Wrap(sferrors.ErrCodeStorageDriver, "cannot determine config directory", err).
			WithSuggestion("Set storage.path explicitly")
	}
	return filepath.Join(dir, "storefront", "session.yaml"), nil
}

// prefixed namespaces every key of an underlying backend.
type prefixed struct {
	inner  Backend
	prefix string
}

// Prefixed returns a Backend that stores keys as prefix+key in inner.
// The web front end uses it to give every visitor its own namespace.
func Prefixed(inner Backend, prefix string) Backend {
	return &prefixed{inner: inner, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
