package mcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/mcache/codec"
	pr "github.com/unkn0wn-root/mcache/provider"
)

// Server is a memcached server in the pool. See provider.Server.
type Server = pr.Server

// OpenFunc creates a provider for a new adapter or a new persistent handle.
type OpenFunc func(ctx context.Context, persistentID string) (pr.Provider, error)

// Cache is the uniform cache API backed by a memcached server pool.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	// Single
	Get(ctx context.Context, key string) (v V, ok bool, err error)
	GetOr(ctx context.Context, key string, def V) (V, error)
	Set(ctx context.Context, key string, value V, ttl TTL) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) (bool, error)

	// Bulk
	GetMultiple(ctx context.Context, keys []string, def V) (Entries[V], error)
	SetMultiple(ctx context.Context, values map[string]V, ttl TTL) (bool, error)
	DeleteMultiple(ctx context.Context, keys []string) (bool, error)

	// Servers returns the pool membership as seen by the provider.
	Servers(ctx context.Context) ([]Server, error)
	Close(ctx context.Context) error
}

// Options configure a memcached-backed Cache.
// Only Codec is required; others have sensible defaults.
type Options[V any] struct {
	// PersistentID names a shared provider handle. Adapters built with the same
	// identifier share one connection pool and one server list. "" => private handle.
	PersistentID string
	// Servers to register. nil or empty => 127.0.0.1:11211 weight 1.
	Servers []Server
	Codec   c.Codec[V] // required

	Open     OpenFunc         // nil => gomemcache provider with a local pool store
	Registry *Registry        // nil => DefaultRegistry()
	Logger   Logger           // nil => NopLogger
	Hooks    Hooks            // nil => NopHooks
	Now      func() time.Time // nil => time.Now; used for absolute expirations
}

func New[V any](ctx context.Context, opts Options[V]) (Cache[V], error) {
	return newCache[V](ctx, opts)
}
