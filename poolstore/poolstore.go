// Package poolstore holds server-pool membership for persistent identifiers.
//
// Memcached providers keep the list of registered servers in a PoolStore so that
// every adapter sharing a persistent identifier sees the same pool. Local keeps it
// in-process (default); Redis shares it across processes and survives restarts.
package poolstore

import (
	"context"

	pr "github.com/unkn0wn-root/mcache/provider"
)

// PoolStore abstracts where server-pool membership lives.
type PoolStore interface {
	// Servers returns the servers registered under id, in registration order.
	// Unknown ids return an empty list.
	Servers(ctx context.Context, id string) ([]pr.Server, error)
	// Add appends servers to the pool of id. Duplicates are kept.
	Add(ctx context.Context, id string, servers []pr.Server) error
	// Reset forgets the pool of id.
	Reset(ctx context.Context, id string) error
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
