package mcache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	c "github.com/unkn0wn-root/mcache/codec"
	pr "github.com/unkn0wn-root/mcache/provider"
	"github.com/unkn0wn-root/mcache/provider/gomemcache"
)

type cache[V any] struct {
	id       string
	provider pr.Provider
	codec    c.Codec[V]
	log      Logger
	hooks    Hooks
	now      func() time.Time
	registry *Registry // nil unless the provider is shared
	close    sync.Once
}

var _ Cache[string] = (*cache[string])(nil)

func newCache[V any](ctx context.Context, opts Options[V]) (*cache[V], error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("mcache: codec is required")
	}
	servers, err := NormalizeServers(opts.Servers)
	if err != nil {
		return nil, err
	}

	cc := &cache[V]{
		id:    opts.PersistentID,
		codec: opts.Codec,
		log:   coalesce[Logger](opts.Logger, NopLogger{}),
		hooks: coalesce[Hooks](opts.Hooks, NopHooks{}),
		now:   opts.Now,
	}
	if cc.now == nil {
		cc.now = time.Now
	}
	open := opts.Open
	if open == nil {
		open = openGomemcache
	}

	register, skipped := servers, 0
	if cc.id == "" {
		if cc.provider, err = open(ctx, ""); err != nil {
			return nil, fmt.Errorf("mcache: open provider: %w", err)
		}
	} else {
		cc.registry = coalesce(opts.Registry, DefaultRegistry())
		if cc.provider, _, err = cc.registry.acquire(ctx, cc.id, open); err != nil {
			return nil, fmt.Errorf("mcache: open provider %q: %w", cc.id, err)
		}
		existing, err := cc.provider.ServerList(ctx)
		if err != nil {
			cc.abort(ctx)
			return nil, &SetupError{PersistentID: cc.id, Servers: servers, Err: err}
		}
		register, skipped = newServers(existing, servers)
	}

	if len(register) > 0 {
		if err := cc.provider.AddServers(ctx, register); err != nil {
			cc.abort(ctx)
			return nil, &SetupError{PersistentID: cc.id, Servers: register, Err: err}
		}
	}
	cc.hooks.ServersRegistered(cc.id, len(register), skipped)
	cc.log.Info("servers registered", Fields{
		"persistent_id": cc.id,
		"added":         len(register),
		"skipped":       skipped,
	})
	return cc, nil
}

func openGomemcache(ctx context.Context, persistentID string) (pr.Provider, error) {
	p, err := gomemcache.New(ctx, gomemcache.Config{PoolID: persistentID})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// abort undoes provider acquisition after a failed construction.
func (cc *cache[V]) abort(ctx context.Context) {
	if cc.registry != nil {
		cc.registry.release(cc.id)
		return
	}
	_ = cc.provider.Close(ctx)
}

// Close releases the provider. A shared handle stays open in its Registry.
func (cc *cache[V]) Close(ctx context.Context) error {
	var err error
	cc.close.Do(func() {
		if cc.registry != nil {
			cc.registry.release(cc.id)
			return
		}
		err = cc.provider.Close(ctx)
	})
	return err
}

func (cc *cache[V]) Servers(ctx context.Context) ([]Server, error) {
	servers, err := cc.provider.ServerList(ctx)
	if err != nil {
		cc.providerError("servers", err)
		return nil, err
	}
	return servers, nil
}

func (cc *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if err := ValidateKey(key); err != nil {
		return zero, false, err
	}
	raw, ok, err := cc.provider.Get(ctx, key)
	if err != nil {
		cc.providerError("get", err)
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	v, err := cc.decode(key, raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (cc *cache[V]) GetOr(ctx context.Context, key string, def V) (V, error) {
	v, ok, err := cc.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// Set stores value under key. A ttl that has already elapsed deletes the key
// and reports the result of the delete.
func (cc *cache[V]) Set(ctx context.Context, key string, value V, ttl TTL) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	exp := NormalizeTTL(ttl, cc.now())
	if exp <= -1 {
		ok, err := cc.provider.Delete(ctx, key)
		if err != nil {
			cc.providerError("set", err)
			return false, err
		}
		cc.hooks.ExpiredSetDeleted(key)
		cc.log.Debug("expired ttl, deleted instead of set", Fields{"key": key, "ttl": ttl.String()})
		return ok, nil
	}

	raw, err := cc.codec.Encode(value)
	if err != nil {
		return false, fmt.Errorf("mcache: encode %q: %w", key, err)
	}
	ok, err := cc.provider.Set(ctx, key, raw, exp)
	if err != nil {
		cc.providerError("set", err)
		return false, err
	}
	return ok, nil
}

func (cc *cache[V]) Delete(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	ok, err := cc.provider.Delete(ctx, key)
	if err != nil {
		cc.providerError("delete", err)
		return false, err
	}
	return ok, nil
}

// Has reports whether key is present without decoding its value.
func (cc *cache[V]) Has(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, ok, err := cc.provider.Get(ctx, key)
	if err != nil {
		cc.providerError("has", err)
		return false, err
	}
	return ok, nil
}

// Clear flushes every server of the pool, not only keys written by this adapter.
func (cc *cache[V]) Clear(ctx context.Context) (bool, error) {
	ok, err := cc.provider.Flush(ctx)
	if err != nil {
		cc.providerError("clear", err)
		return false, err
	}
	return ok, nil
}

// GetMultiple returns one entry per distinct key, in first-seen order.
// Missing keys carry def and Hit=false.
func (cc *cache[V]) GetMultiple(ctx context.Context, keys []string, def V) (Entries[V], error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	keys = lo.Uniq(keys)
	if len(keys) == 0 {
		return Entries[V]{}, nil
	}

	found, err := cc.provider.GetMulti(ctx, keys)
	if err != nil {
		cc.providerError("get_multiple", err)
		return nil, err
	}
	out := make(Entries[V], len(keys))
	for i, k := range keys {
		out[i] = Entry[V]{Key: k, Value: def}
		raw, ok := found[k]
		if !ok {
			continue
		}
		v, err := cc.decode(k, raw)
		if err != nil {
			return nil, err
		}
		out[i].Value, out[i].Hit = v, true
	}
	return out, nil
}

// SetMultiple stores every value with one expiration. Unlike Set, an elapsed
// ttl is passed to the server as is.
func (cc *cache[V]) SetMultiple(ctx context.Context, values map[string]V, ttl TTL) (bool, error) {
	keys := lo.Keys(values)
	sort.Strings(keys)
	if err := validateKeys(keys); err != nil {
		return false, err
	}
	if len(values) == 0 {
		return true, nil
	}

	items := make(map[string][]byte, len(values))
	for _, k := range keys {
		raw, err := cc.codec.Encode(values[k])
		if err != nil {
			return false, fmt.Errorf("mcache: encode %q: %w", k, err)
		}
		items[k] = raw
	}
	ok, err := cc.provider.SetMulti(ctx, items, NormalizeTTL(ttl, cc.now()))
	if err != nil {
		cc.providerError("set_multiple", err)
		return false, err
	}
	return ok, nil
}

// DeleteMultiple reports true only if every distinct key was deleted.
func (cc *cache[V]) DeleteMultiple(ctx context.Context, keys []string) (bool, error) {
	if err := validateKeys(keys); err != nil {
		return false, err
	}
	keys = lo.Uniq(keys)
	if len(keys) == 0 {
		return true, nil
	}

	flags, err := cc.provider.DeleteMulti(ctx, keys)
	if err != nil {
		cc.providerError("delete_multiple", err)
		return false, err
	}
	failed := lo.Count(flags, false) + len(keys) - len(flags)
	if failed > 0 {
		cc.hooks.BulkDeletePartial(len(keys), failed)
		cc.log.Debug("bulk delete partial", Fields{"requested": len(keys), "failed": failed})
		return false, nil
	}
	return true, nil
}

func (cc *cache[V]) decode(key string, raw []byte) (V, error) {
	v, err := cc.codec.Decode(raw)
	if err != nil {
		cc.hooks.DecodeFailed(key, err)
		cc.log.Warn("decode failed", Fields{"key": key, "err": err})
		var zero V
		return zero, fmt.Errorf("mcache: decode %q: %w", key, err)
	}
	return v, nil
}

func (cc *cache[V]) providerError(op string, err error) {
	cc.hooks.ProviderError(op, err)
	cc.log.Warn("provider error", Fields{"op": op, "err": err})
}
