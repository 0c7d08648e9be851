// Package ristretto is an in-process provider.Provider on dgraph-io/ristretto.
// It follows memcached's expiration rules so the adapter behaves the same
// against it as against a real pool; handy for development and tests.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/mcache/poolstore"
	pr "github.com/unkn0wn-root/mcache/provider"
)

type Provider struct {
	c      *rc.Cache
	pool   poolstore.PoolStore
	poolID string
	now    func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost of an item is its value length.

	PoolID string
	Pool   poolstore.PoolStore // nil or empty PoolID => poolstore.NewLocal()
	Now    func() time.Time    // nil => time.Now
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	p := &Provider{c: c, pool: cfg.Pool, poolID: cfg.PoolID, now: cfg.Now}
	if p.pool == nil || p.poolID == "" {
		p.pool = poolstore.NewLocal()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// AddServers only records membership; nothing is dialed.
func (p *Provider) AddServers(ctx context.Context, servers []pr.Server) error {
	return p.pool.Add(ctx, p.poolID, servers)
}

func (p *Provider) ServerList(ctx context.Context) ([]pr.Server, error) {
	return p.pool.Servers(ctx, p.poolID)
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, expiration int64) (bool, error) {
	return p.set(key, value, expiration), nil
}

// set mirrors memcached: an already expired item is accepted and then invisible.
func (p *Provider) set(key string, value []byte, expiration int64) bool {
	ttl, expired := pr.ExpirationTTL(expiration, p.now())
	if expired {
		p.c.Del(key)
		p.c.Wait()
		return true
	}
	if value == nil {
		value = []byte{}
	}
	ok := p.c.SetWithTTL(key, value, int64(len(value))+1, ttl)
	// Sets are buffered; wait so a following Get observes the write.
	p.c.Wait()
	return ok
}

func (p *Provider) Delete(_ context.Context, key string) (bool, error) {
	return p.delete(key), nil
}

func (p *Provider) delete(key string) bool {
	_, found := p.c.Get(key)
	p.c.Del(key)
	p.c.Wait()
	return found
}

func (p *Provider) Flush(_ context.Context) (bool, error) {
	p.c.Clear()
	return true, nil
}

func (p *Provider) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if b, ok, _ := p.Get(ctx, k); ok {
			out[k] = b
		}
	}
	return out, nil
}

func (p *Provider) SetMulti(_ context.Context, items map[string][]byte, expiration int64) (bool, error) {
	stored := true
	for k, v := range items {
		if !p.set(k, v, expiration) {
			stored = false
		}
	}
	return stored, nil
}

func (p *Provider) DeleteMulti(_ context.Context, keys []string) ([]bool, error) {
	out := make([]bool, len(keys))
	for i, k := range keys {
		out[i] = p.delete(k)
	}
	return out, nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Helper to expose metrics if desired by the application (not part of provider.Provider).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
