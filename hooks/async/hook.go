// Package asynchook runs mcache.Hooks on background workers so hot paths never
// wait on them. Events are dropped when the queue is full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    ExpiredSetEvery:    10, // ~every 10th expired set
//	    ProviderErrorEvery: 1,  // every provider error
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := mcache.New[User](ctx, mcache.Options[User]{
//	    PersistentID: "users",
//	    Codec:        codec.JSON[User]{},
//	    Hooks:        hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/mcache"
)

type Hooks struct {
	inner   mcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ mcache.Hooks = (*Hooks)(nil)

func New(inner mcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close panic.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped counts events discarded because the queue was full.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) ServersRegistered(id string, added, skipped int) {
	h.try(func() { h.inner.ServersRegistered(id, added, skipped) })
}
func (h *Hooks) ExpiredSetDeleted(k string)      { h.try(func() { h.inner.ExpiredSetDeleted(k) }) }
func (h *Hooks) BulkDeletePartial(req, fail int) { h.try(func() { h.inner.BulkDeletePartial(req, fail) }) }
func (h *Hooks) DecodeFailed(k string, err error) {
	h.try(func() { h.inner.DecodeFailed(k, err) })
}
func (h *Hooks) ProviderError(op string, err error) {
	h.try(func() { h.inner.ProviderError(op, err) })
}
