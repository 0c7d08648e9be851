// Package bigcache is an in-process provider.Provider on allegro/bigcache.
// BigCache only has a global LifeWindow, so each value is framed with its own
// deadline (internal/wire) and checked on read.
package bigcache

import (
	"context"
	"errors"
	"math"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/hashicorp/go-multierror"

	"github.com/unkn0wn-root/mcache/internal/wire"
	"github.com/unkn0wn-root/mcache/poolstore"
	pr "github.com/unkn0wn-root/mcache/provider"
)

type Provider struct {
	c      *bc.BigCache
	life   time.Duration
	pool   poolstore.PoolStore
	poolID string
	now    func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

// DefaultLifeWindow outlives any memcached deadline: expirations are int32 UNIX
// timestamps, so none lies further than MaxInt32 seconds ahead.
const DefaultLifeWindow = time.Duration(math.MaxInt32) * time.Second

type Config struct {
	// LifeWindow caps every entry's life: bigcache evicts entries older than it
	// whatever their own deadline. 0 => DefaultLifeWindow.
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited

	PoolID string
	Pool   poolstore.PoolStore // nil or empty PoolID => poolstore.NewLocal()
	Now    func() time.Time    // nil => time.Now
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = DefaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	p := &Provider{c: c, life: life, pool: cfg.Pool, poolID: cfg.PoolID, now: cfg.Now}
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
	raw, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	expiresAt, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		_ = p.c.Delete(key) // self-heal corrupt
		return nil, false, nil
	}
	if expiresAt != 0 && !p.now().Before(time.Unix(expiresAt, 0)) {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	return payload, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, expiration int64) (bool, error) {
	return p.set(key, value, expiration)
}

func (p *Provider) set(key string, value []byte, expiration int64) (bool, error) {
	deadline, expired := pr.ExpiresAt(expiration, p.now())
	if expired {
		if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			return false, err
		}
		return true, nil
	}
	var expiresAt int64
	if !deadline.IsZero() {
		expiresAt = deadline.Unix()
	}
	if err := p.c.Set(key, wire.EncodeEntry(expiresAt, value)); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Delete(ctx context.Context, key string) (bool, error) {
	if _, ok, err := p.Get(ctx, key); err != nil || !ok {
		return false, err
	}
	err := p.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *Provider) Flush(_ context.Context) (bool, error) {
	if err := p.c.Reset(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		b, ok, err := p.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = b
		}
	}
	return out, nil
}

func (p *Provider) SetMulti(_ context.Context, items map[string][]byte, expiration int64) (bool, error) {
	stored := true
	var merr *multierror.Error
	for k, v := range items {
		ok, err := p.set(k, v, expiration)
		if !ok {
			stored = false
		}
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return stored, merr.ErrorOrNil()
}

func (p *Provider) DeleteMulti(ctx context.Context, keys []string) ([]bool, error) {
	out := make([]bool, len(keys))
	for i, k := range keys {
		ok, err := p.Delete(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = ok
	}
	return out, nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
