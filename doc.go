// Package mcache exposes a memcached server pool through a small, uniform cache
// interface: Get/Set/Delete, their bulk variants, Has and Clear.
//
// The package owns the normalization around memcached, not the protocol:
//   - TTLs are translated into memcached's expiration field (0 = never,
//     <= 30 days = relative seconds, otherwise an absolute UNIX timestamp,
//     -1 = already expired). Setting with an expired TTL deletes the key.
//   - Keys are validated before any network I/O. Empty keys and keys holding any
//     of {}()/\@: are rejected with ErrInvalidKey.
//   - Adapters built with the same PersistentID share one provider handle and
//     one server pool. Servers already registered (by host and port) are not
//     added twice.
//
// Components:
//   - Provider: memcached byte store (gomemcache in production; ristretto or
//     bigcache for in-process use).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - PoolStore: where pool membership for a persistent identifier lives. Local by
//     default, optional Redis implementation shared across processes.
//
// Usage:
//
//	c, err := mcache.New(ctx, mcache.Options[User]{
//		PersistentID: "users",
//		Servers:      []mcache.Server{{Host: "10.0.0.1", Port: 11211, Weight: 2}},
//		Codec:        codec.JSON[User]{},
//	})
//	ok, err := c.Set(ctx, "user-42", u, mcache.Duration(10*time.Minute))
//	u, hit, err := c.Get(ctx, "user-42")
package mcache
