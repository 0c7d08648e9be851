package poolstore

import (
	"context"
	"sync"

	pr "github.com/unkn0wn-root/mcache/provider"
)

// Local keeps pool membership in-process (default).
type Local struct {
	mu    sync.RWMutex
	pools map[string][]pr.Server
}

var _ PoolStore = (*Local)(nil)

func NewLocal() *Local {
	return &Local{pools: make(map[string][]pr.Server)}
}

func (s *Local) Servers(_ context.Context, id string) ([]pr.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool := s.pools[id]
	out := make([]pr.Server, len(pool))
	copy(out, pool)
	return out, nil
}

func (s *Local) Add(_ context.Context, id string, servers []pr.Server) error {
	if len(servers) == 0 {
		return nil
	}
	s.mu.Lock()
	s.pools[id] = append(s.pools[id], servers...)
	s.mu.Unlock()
	return nil
}

func (s *Local) Reset(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.pools, id)
	s.mu.Unlock()
	return nil
}

func (s *Local) Close(_ context.Context) error { return nil }
