// Package gomemcache implements provider.Provider on top of
// github.com/bradfitz/gomemcache, talking to real memcached servers.
package gomemcache

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/mcache/poolstore"
	pr "github.com/unkn0wn-root/mcache/provider"
)

var ErrExpirationRange = errors.New("gomemcache: expiration out of int32 range")

type Config struct {
	// PoolID names the pool in Pool. Adapters sharing a persistent identifier
	// share the pool membership stored under it.
	PoolID string
	// Pool holds server membership. nil or an empty PoolID => poolstore.NewLocal()
	// (owned), so private providers never append to a shared pool.
	Pool poolstore.PoolStore

	Timeout      time.Duration // socket read/write timeout; 0 => gomemcache default (500ms)
	MaxIdleConns int           // per server; 0 => gomemcache default (2)
	// Concurrency bounds the fan-out of SetMulti and DeleteMulti. 0 => 8.
	Concurrency int
}

type Provider struct {
	mc       *memcache.Client
	sel      *selector
	pool     poolstore.PoolStore
	poolID   string
	ownsPool bool
	limit    int

	mu sync.Mutex // serializes AddServers (pool + selector must agree)
}

var _ pr.Provider = (*Provider)(nil)

// New builds a provider and seeds its selector from servers already present in
// the pool store, so a restarted process keeps routing to the same servers.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{
		sel:    newSelector(),
		pool:   cfg.Pool,
		poolID: cfg.PoolID,
		limit:  cfg.Concurrency,
	}
	if p.pool == nil || p.poolID == "" {
		p.pool = poolstore.NewLocal()
		p.ownsPool = true
	}
	if p.limit <= 0 {
		p.limit = 8
	}

	existing, err := p.pool.Servers(ctx, p.poolID)
	if err != nil {
		return nil, errors.Wrap(err, "load pool")
	}
	if err := p.sel.add(existing); err != nil {
		return nil, errors.Wrap(err, "seed selector")
	}

	p.mc = memcache.NewFromSelector(p.sel)
	if cfg.Timeout > 0 {
		p.mc.Timeout = cfg.Timeout
	}
	if cfg.MaxIdleConns > 0 {
		p.mc.MaxIdleConns = cfg.MaxIdleConns
	}
	return p, nil
}

func (p *Provider) AddServers(ctx context.Context, servers []pr.Server) error {
	if len(servers) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.sel.add(servers); err != nil {
		return errors.Wrap(err, "add servers")
	}
	if err := p.pool.Add(ctx, p.poolID, servers); err != nil {
		return errors.Wrap(err, "record servers")
	}
	return nil
}

func (p *Provider) ServerList(ctx context.Context) ([]pr.Server, error) {
	servers, err := p.pool.Servers(ctx, p.poolID)
	if err != nil {
		return nil, errors.Wrap(err, "server list")
	}
	return servers, nil
}

// Ping checks every server in the pool.
func (p *Provider) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Wrap(p.mc.Ping(), "ping")
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	it, err := p.mc.Get(key)
	if err == memcache.ErrCacheMiss {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %q", key)
	}
	return it.Value, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, expiration int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.set(key, value, expiration)
}

func (p *Provider) set(key string, value []byte, expiration int64) (bool, error) {
	exp, err := toInt32(expiration)
	if err != nil {
		return false, err
	}
	err = p.mc.Set(&memcache.Item{Key: key, Value: value, Expiration: exp})
	if err == memcache.ErrNotStored {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "set %q", key)
	}
	return true, nil
}

func (p *Provider) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.delete(key)
}

func (p *Provider) delete(key string) (bool, error) {
	err := p.mc.Delete(key)
	if err == memcache.ErrCacheMiss {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "delete %q", key)
	}
	return true, nil
}

func (p *Provider) Flush(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := p.mc.FlushAll(); err != nil {
		return false, errors.Wrap(err, "flush_all")
	}
	return true, nil
}

func (p *Provider) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := p.mc.GetMulti(keys)
	if err != nil {
		return nil, errors.Wrap(err, "get multi")
	}
	out := make(map[string][]byte, len(items))
	for k, it := range items {
		out[k] = it.Value
	}
	return out, nil
}

// SetMulti stores every item; gomemcache has no batched set, so items fan out
// over at most Concurrency goroutines. Every item is attempted even after a failure.
func (p *Provider) SetMulti(ctx context.Context, items map[string][]byte, expiration int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := toInt32(expiration); err != nil {
		return false, err
	}

	var (
		mu     sync.Mutex
		merr   *multierror.Error
		stored = true
	)
	g := new(errgroup.Group)
	g.SetLimit(p.limit)
	for k, v := range items {
		g.Go(func() error {
			ok, err := p.set(k, v, expiration)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				stored = false
			}
			if err != nil {
				merr = multierror.Append(merr, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return stored, merr.ErrorOrNil()
}

// DeleteMulti deletes every key and reports one flag per key in input order.
func (p *Provider) DeleteMulti(ctx context.Context, keys []string) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		merr *multierror.Error
	)
	results := make([]bool, len(keys))
	g := new(errgroup.Group)
	g.SetLimit(p.limit)
	for i, k := range keys {
		g.Go(func() error {
			ok, err := p.delete(k)
			results[i] = ok
			if err != nil {
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, merr.ErrorOrNil()
}

// Close releases the pool store when this provider created it.
// Idle memcached connections are dropped with the client.
func (p *Provider) Close(ctx context.Context) error {
	if p.ownsPool {
		return p.pool.Close(ctx)
	}
	return nil
}

func toInt32(expiration int64) (int32, error) {
	if expiration > math.MaxInt32 || expiration < math.MinInt32 {
		return 0, errors.Wrapf(ErrExpirationRange, "%d", expiration)
	}
	return int32(expiration), nil
}
