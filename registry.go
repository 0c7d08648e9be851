package mcache

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	pr "github.com/unkn0wn-root/mcache/provider"
)

// Registry holds provider handles shared by persistent identifier.
// The first adapter built with an identifier opens the provider; later adapters
// reuse it together with the server pool registered on it. Handles outlive the
// adapters using them and are torn down by Close.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*handle
}

type handle struct {
	p    pr.Provider
	refs int
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*handle)}
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry is the process-wide registry used when Options.Registry is nil.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// acquire returns the handle for id, opening it on first use.
// created reports whether this call opened the provider.
func (r *Registry) acquire(ctx context.Context, id string, open OpenFunc) (p pr.Provider, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[id]; ok {
		h.refs++
		return h.p, false, nil
	}
	p, err = open(ctx, id)
	if err != nil {
		return nil, false, err
	}
	r.handles[id] = &handle{p: p, refs: 1}
	return p, true, nil
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[id]; ok && h.refs > 0 {
		h.refs--
	}
}

// IDs lists the persistent identifiers with an open handle, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := lo.Keys(r.handles)
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Refs reports how many open adapters use the handle for id.
func (r *Registry) Refs(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[id]; ok {
		return h.refs
	}
	return 0
}

// Close closes every handle, including ones still referenced by adapters.
// The registry stays usable; the next acquire opens a fresh handle.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*handle)
	r.mu.Unlock()

	var merr *multierror.Error
	for _, id := range lo.Keys(handles) {
		if err := handles[id].p.Close(ctx); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
