// Package provider defines the memcached collaborator used by mcache.
//
// A Provider is a byte store that follows memcached semantics: values are opaque
// byte slices, expirations use memcached's dual interpretation (relative seconds
// up to 30 days, an absolute UNIX timestamp above that, 0 for "never", negative
// for "already expired"), and server-pool membership can be read and extended at
// runtime.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// bytes previously passed to Set for a key.
package provider

import (
	"context"
	"time"
)

// MaxRelativeExpiration is the largest expiration memcached treats as a relative
// number of seconds. Anything above it is an absolute UNIX timestamp.
const MaxRelativeExpiration = 30 * 24 * 60 * 60 // 2_592_000

// Server describes a memcached server in the pool.
// A Host starting with "/" is a unix socket path and uses Port 0.
type Server struct {
	Host   string `json:"host" yaml:"host"`
	Port   int    `json:"port" yaml:"port"`
	Weight int    `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Provider is the minimal memcached client surface the cache adapter needs.
// Must be safe for concurrent use.
type Provider interface {
	// AddServers registers servers with the pool. Duplicates are not filtered.
	AddServers(ctx context.Context, servers []Server) error

	// ServerList returns the servers currently registered with the pool.
	ServerList(ctx context.Context) ([]Server, error)

	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with a memcached expiration. ok=false means the server
	// refused to store the item.
	Set(ctx context.Context, key string, value []byte, expiration int64) (ok bool, err error)

	// Delete removes a key. ok=false means the key was not present.
	Delete(ctx context.Context, key string) (ok bool, err error)

	// Flush invalidates every item on every server of the pool.
	Flush(ctx context.Context) (ok bool, err error)

	// GetMulti fetches many keys at once. Missing keys are absent from the result.
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)

	// SetMulti stores all items with one expiration. ok is true only if every item was stored.
	SetMulti(ctx context.Context, items map[string][]byte, expiration int64) (ok bool, err error)

	// DeleteMulti removes many keys and reports one flag per key, in input order.
	DeleteMulti(ctx context.Context, keys []string) ([]bool, error)

	// Close releases resources.
	Close(ctx context.Context) error
}

// ExpirationTTL applies memcached's interpretation of an expiration field at now.
// It returns the remaining lifetime (0 means no expiry) or expired=true when the
// item must not be visible at all.
func ExpirationTTL(expiration int64, now time.Time) (ttl time.Duration, expired bool) {
	switch {
	case expiration == 0:
		return 0, false
	case expiration < 0:
		return 0, true
	case expiration <= MaxRelativeExpiration:
		return time.Duration(expiration) * time.Second, false
	}
	left := time.Unix(expiration, 0).Sub(now)
	if left <= 0 {
		return 0, true
	}
	return left, false
}

// ExpiresAt converts an expiration field into an absolute deadline.
// The zero time means no expiry. expired=true means the deadline already passed.
func ExpiresAt(expiration int64, now time.Time) (deadline time.Time, expired bool) {
	ttl, expired := ExpirationTTL(expiration, now)
	if expired || ttl == 0 {
		return time.Time{}, expired
	}
	return now.Add(ttl), false
}
