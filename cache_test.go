package mcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	c "github.com/unkn0wn-root/mcache/codec"
	"github.com/unkn0wn-root/mcache/internal/util"
	"github.com/unkn0wn-root/mcache/poolstore"
	pr "github.com/unkn0wn-root/mcache/provider"
	"github.com/unkn0wn-root/mcache/provider/gomemcache"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// memProvider is a map-backed provider that applies memcached's expiration rules.
type memProvider struct {
	mu      sync.Mutex
	m       map[string]memEntry
	servers []Server
	now     func() time.Time

	calls   int
	lastExp int64
	addErr  error
	closed  bool
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider {
	return &memProvider{m: make(map[string]memEntry), now: time.Now}
}

func (p *memProvider) AddServers(_ context.Context, servers []Server) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addErr != nil {
		return p.addErr
	}
	p.servers = append(p.servers, servers...)
	return nil
}

func (p *memProvider) ServerList(context.Context) ([]Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Server(nil), p.servers...), nil
}

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.get(key)
}

func (p *memProvider) get(key string) ([]byte, bool, error) {
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && !p.now().Before(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, expiration int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.set(key, value, expiration)
	return true, nil
}

func (p *memProvider) set(key string, value []byte, expiration int64) {
	p.lastExp = expiration
	at, expired := pr.ExpiresAt(expiration, p.now())
	if expired {
		delete(p.m, key)
		return
	}
	p.m[key] = memEntry{v: value, exp: at}
}

func (p *memProvider) Delete(_ context.Context, key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.del(key), nil
}

func (p *memProvider) del(key string) bool {
	_, ok, _ := p.get(key)
	delete(p.m, key)
	return ok
}

func (p *memProvider) Flush(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.m = make(map[string]memEntry)
	return true, nil
}

func (p *memProvider) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	out := make(map[string][]byte)
	for _, k := range keys {
		if v, ok, _ := p.get(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (p *memProvider) SetMulti(_ context.Context, items map[string][]byte, expiration int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	for k, v := range items {
		p.set(k, v, expiration)
	}
	return true, nil
}

func (p *memProvider) DeleteMulti(_ context.Context, keys []string) ([]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	out := make([]bool, len(keys))
	for i, k := range keys {
		out[i] = p.del(k)
	}
	return out, nil
}

func (p *memProvider) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *memProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recHooks struct {
	mu             sync.Mutex
	added, skipped int
	expiredSets    []string
	partial        [2]int
	decodeFailures int
	providerErrors []string
}

func (h *recHooks) ServersRegistered(_ string, added, skipped int) {
	h.mu.Lock()
	h.added, h.skipped = added, skipped
	h.mu.Unlock()
}

func (h *recHooks) ExpiredSetDeleted(key string) {
	h.mu.Lock()
	h.expiredSets = append(h.expiredSets, key)
	h.mu.Unlock()
}

func (h *recHooks) BulkDeletePartial(requested, failed int) {
	h.mu.Lock()
	h.partial = [2]int{requested, failed}
	h.mu.Unlock()
}

func (h *recHooks) DecodeFailed(string, error) {
	h.mu.Lock()
	h.decodeFailures++
	h.mu.Unlock()
}

func (h *recHooks) ProviderError(op string, _ error) {
	h.mu.Lock()
	h.providerErrors = append(h.providerErrors, op)
	h.mu.Unlock()
}

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var testNow = time.Unix(1_700_000_000, 0)

func openWith(p pr.Provider, opens *int) OpenFunc {
	return func(context.Context, string) (pr.Provider, error) {
		if opens != nil {
			*opens++
		}
		return p, nil
	}
}

func newTestCache[V any](t *testing.T, mp *memProvider, codec c.Codec[V], optsOpt func(*Options[V])) Cache[V] {
	t.Helper()
	mp.now = func() time.Time { return testNow }
	opts := Options[V]{
		Codec: codec,
		Open:  openWith(mp, nil),
		Now:   func() time.Time { return testNow },
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[V](context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cc
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	cc := newTestCache[user](t, mp, c.JSON[user]{}, nil)
	defer cc.Close(ctx)

	if _, ok, err := cc.Get(ctx, "u1"); err != nil || ok {
		t.Fatalf("Get miss expected, got ok=%v err=%v", ok, err)
	}
	v := user{ID: "1", Name: "Ada"}
	if ok, err := cc.Set(ctx, "u1", v, TTL{}); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	if got, ok, err := cc.Get(ctx, "u1"); err != nil || !ok || got != v {
		t.Fatalf("Get after set: ok=%v err=%v got=%v", ok, err, got)
	}
	if mp.lastExp != 0 {
		t.Fatalf("unset ttl should store without expiration, got %d", mp.lastExp)
	}
	if has, err := cc.Has(ctx, "u1"); err != nil || !has {
		t.Fatalf("Has: %v %v", has, err)
	}
	if ok, err := cc.Delete(ctx, "u1"); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if ok, err := cc.Delete(ctx, "u1"); err != nil || ok {
		t.Fatalf("second Delete should report false, got ok=%v err=%v", ok, err)
	}
	if got, err := cc.GetOr(ctx, "u1", user{ID: "def"}); err != nil || got.ID != "def" {
		t.Fatalf("GetOr: got=%v err=%v", got, err)
	}
}

func TestFalsyValuesAreHits(t *testing.T) {
	ctx := context.Background()

	bools := newTestCache[bool](t, newMemProvider(), c.JSON[bool]{}, nil)
	if _, err := bools.Set(ctx, "flag", false, TTL{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := bools.Get(ctx, "flag"); err != nil || !ok || v {
		t.Fatalf("false should round-trip as a hit: v=%v ok=%v err=%v", v, ok, err)
	}

	ptrs := newTestCache[*user](t, newMemProvider(), c.JSON[*user]{}, nil)
	if _, err := ptrs.Set(ctx, "nil", nil, TTL{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := ptrs.Get(ctx, "nil"); err != nil || !ok || v != nil {
		t.Fatalf("nil should round-trip as a hit: v=%v ok=%v err=%v", v, ok, err)
	}
	if got, err := ptrs.GetOr(ctx, "nil", &user{ID: "def"}); err != nil || got != nil {
		t.Fatalf("GetOr must not replace a stored nil: got=%v err=%v", got, err)
	}
}

func TestInvalidKeysNeverReachProvider(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	cc := newTestCache[string](t, mp, c.String{}, nil)

	bad := []string{"", "a{b", "a}b", "a(b", "a)b", "a/b", `a\b`, "a@b", "a:b"}
	for _, k := range bad {
		if _, _, err := cc.Get(ctx, k); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Get(%q): want ErrInvalidKey, got %v", k, err)
		}
		if _, err := cc.Set(ctx, k, "v", TTL{}); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Set(%q): want ErrInvalidKey, got %v", k, err)
		}
		if _, err := cc.Delete(ctx, k); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Delete(%q): want ErrInvalidKey, got %v", k, err)
		}
		if _, err := cc.Has(ctx, k); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Has(%q): want ErrInvalidKey, got %v", k, err)
		}
	}
	if _, err := cc.GetMultiple(ctx, []string{"ok", "bad:key"}, ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("GetMultiple: want ErrInvalidKey, got %v", err)
	}
	if _, err := cc.SetMultiple(ctx, map[string]string{"ok": "1", "bad@key": "2"}, TTL{}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("SetMultiple: want ErrInvalidKey, got %v", err)
	}
	if _, err := cc.DeleteMultiple(ctx, []string{"ok", ""}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("DeleteMultiple: want ErrInvalidKey, got %v", err)
	}

	if n := mp.callCount(); n != 0 {
		t.Fatalf("provider called %d times for invalid keys", n)
	}
	if _, ok := mp.m["ok"]; ok {
		t.Fatalf("partial bulk write happened")
	}
}

func TestSetWithExpiredTTLDeletes(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	cc := newTestCache[string](t, mp, c.String{}, func(o *Options[string]) { o.Hooks = h })

	if _, err := cc.Set(ctx, "k", "v", TTL{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ok, err := cc.Set(ctx, "k", "v2", Seconds(0)); err != nil || !ok {
		t.Fatalf("Set with zero ttl should delete the present key: ok=%v err=%v", ok, err)
	}
	if has, _ := cc.Has(ctx, "k"); has {
		t.Fatalf("key should be gone")
	}
	if ok, err := cc.Set(ctx, "k", "v3", Seconds(-5)); err != nil || ok {
		t.Fatalf("Set with negative ttl on absent key reports the delete result: ok=%v err=%v", ok, err)
	}
	if len(h.expiredSets) != 2 {
		t.Fatalf("ExpiredSetDeleted calls = %d", len(h.expiredSets))
	}
}

func TestSetPassesNormalizedExpiration(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	cc := newTestCache[string](t, mp, c.String{}, nil)

	cases := []struct {
		ttl  TTL
		want int64
	}{
		{TTL{}, 0},
		{Seconds(123), 123},
		{Duration(6*time.Hour + 8*time.Minute), 22080},
		{Seconds(30 * 24 * 3600), 30 * 24 * 3600},
		{Duration(31 * 24 * time.Hour), testNow.Unix() + 31*24*3600},
	}
	for _, tc := range cases {
		if _, err := cc.Set(ctx, "k", "v", tc.ttl); err != nil {
			t.Fatalf("Set(%v): %v", tc.ttl, err)
		}
		if mp.lastExp != tc.want {
			t.Fatalf("ttl %v: expiration=%d want %d", tc.ttl, mp.lastExp, tc.want)
		}
		if _, ok, _ := cc.Get(ctx, "k"); !ok {
			t.Fatalf("ttl %v: value should be visible", tc.ttl)
		}
	}
}

func TestBulkRoundTrip(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	cc := newTestCache[int](t, mp, c.JSON[int]{}, nil)

	if ok, err := cc.SetMultiple(ctx, map[string]int{"a": 1, "b": 2, "c": 0}, Seconds(60)); err != nil || !ok {
		t.Fatalf("SetMultiple: ok=%v err=%v", ok, err)
	}
	if mp.lastExp != 60 {
		t.Fatalf("expiration=%d", mp.lastExp)
	}

	es, err := cc.GetMultiple(ctx, []string{"b", "x", "a", "b", "c"}, -1)
	if err != nil {
		t.Fatalf("GetMultiple: %v", err)
	}
	want := []Entry[int]{{"b", 2, true}, {"x", -1, false}, {"a", 1, true}, {"c", 0, true}}
	if len(es) != len(want) {
		t.Fatalf("entries=%v", es)
	}
	for i := range want {
		if es[i] != want[i] {
			t.Fatalf("entry %d = %+v want %+v", i, es[i], want[i])
		}
	}
	if m := es.Map(); len(m) != 4 || m["x"] != -1 {
		t.Fatalf("Map: %v", m)
	}
	if v, hit := es.Get("a"); !hit || v != 1 {
		t.Fatalf("Get(a) = %v %v", v, hit)
	}
	if miss := es.Missing(); len(miss) != 1 || miss[0] != "x" {
		t.Fatalf("Missing: %v", miss)
	}

	if es, err := cc.GetMultiple(ctx, nil, 0); err != nil || len(es) != 0 {
		t.Fatalf("empty GetMultiple: %v %v", es, err)
	}
}

func TestSetMultiplePassesExpiredTTLThrough(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	cc := newTestCache[string](t, mp, c.String{}, func(o *Options[string]) { o.Hooks = h })

	before := mp.callCount()
	if _, err := cc.SetMultiple(ctx, map[string]string{"a": "1"}, Seconds(0)); err != nil {
		t.Fatalf("SetMultiple: %v", err)
	}
	if mp.callCount() != before+1 || mp.lastExp != -1 {
		t.Fatalf("want one SetMulti with expiration -1, got calls=%d exp=%d", mp.callCount()-before, mp.lastExp)
	}
	if len(h.expiredSets) != 0 {
		t.Fatalf("bulk set must not take the delete path")
	}
}

func TestDeleteMultiple(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	cc := newTestCache[string](t, mp, c.String{}, func(o *Options[string]) { o.Hooks = h })

	if _, err := cc.SetMultiple(ctx, map[string]string{"a": "1", "b": "2", "c": "3"}, TTL{}); err != nil {
		t.Fatalf("SetMultiple: %v", err)
	}
	if ok, err := cc.DeleteMultiple(ctx, []string{"a", "b", "a"}); err != nil || !ok {
		t.Fatalf("DeleteMultiple present keys: ok=%v err=%v", ok, err)
	}
	if ok, err := cc.DeleteMultiple(ctx, []string{"c", "missing"}); err != nil || ok {
		t.Fatalf("DeleteMultiple with a missing key must be false: ok=%v err=%v", ok, err)
	}
	if h.partial != [2]int{2, 1} {
		t.Fatalf("BulkDeletePartial = %v", h.partial)
	}
	if has, _ := cc.Has(ctx, "c"); has {
		t.Fatalf("present key must still be deleted on partial failure")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache[string](t, newMemProvider(), c.String{}, nil)
	_, _ = cc.SetMultiple(ctx, map[string]string{"a": "1", "b": "2"}, TTL{})

	if ok, err := cc.Clear(ctx); err != nil || !ok {
		t.Fatalf("Clear: ok=%v err=%v", ok, err)
	}
	es, _ := cc.GetMultiple(ctx, []string{"a", "b"}, "")
	if len(es.Missing()) != 2 {
		t.Fatalf("Clear left entries: %+v", es)
	}
}

func TestDecodeFailureIsReported(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	cc := newTestCache[user](t, mp, c.JSON[user]{}, func(o *Options[user]) { o.Hooks = h })
	mp.m["u"] = memEntry{v: []byte("{not json")}

	if _, ok, err := cc.Get(ctx, "u"); err == nil || ok {
		t.Fatalf("Get of corrupt value: ok=%v err=%v", ok, err)
	}
	if _, err := cc.GetMultiple(ctx, []string{"u"}, user{}); err == nil {
		t.Fatalf("GetMultiple of corrupt value should fail")
	}
	if has, err := cc.Has(ctx, "u"); err != nil || !has {
		t.Fatalf("Has does not decode: has=%v err=%v", has, err)
	}
	if h.decodeFailures != 2 {
		t.Fatalf("DecodeFailed calls = %d", h.decodeFailures)
	}
}

func TestEmptyServersRegisterDefault(t *testing.T) {
	mp := newMemProvider()
	_ = newTestCache[string](t, mp, c.String{}, nil)

	want := Server{Host: DefaultServerHost, Port: DefaultServerPort, Weight: DefaultServerWeight}
	if len(mp.servers) != 1 || mp.servers[0] != want {
		t.Fatalf("servers = %v", mp.servers)
	}
}

func TestInvalidServerRejectedBeforeOpening(t *testing.T) {
	opens := 0
	_, err := New(context.Background(), Options[string]{
		Codec:   c.String{},
		Servers: []Server{{Host: "10.0.0.1"}},
		Open:    openWith(newMemProvider(), &opens),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
	if opens != 0 {
		t.Fatalf("provider opened for invalid servers")
	}
}

func TestPersistentIDSharesHandleAndDeduplicatesServers(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	mp := newMemProvider()
	opens := 0
	h := &recHooks{}
	build := func(servers ...Server) Cache[string] {
		t.Helper()
		cc, err := New(ctx, Options[string]{
			PersistentID: "pool",
			Servers:      servers,
			Codec:        c.String{},
			Open:         openWith(mp, &opens),
			Registry:     reg,
			Hooks:        h,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return cc
	}

	a := build(Server{Host: "10.0.0.1", Port: 11211}, Server{Host: "10.0.0.2", Port: 11211})
	b := build(
		Server{Host: "10.0.0.2", Port: 11211, Weight: 5},
		Server{Host: "10.0.0.3", Port: 11211},
		Server{Host: "10.0.0.3", Port: 11211},
	)

	if opens != 1 {
		t.Fatalf("provider opened %d times", opens)
	}
	if h.added != 1 || h.skipped != 2 {
		t.Fatalf("second registration added=%d skipped=%d", h.added, h.skipped)
	}
	seen := map[string]int{}
	for _, s := range mp.servers {
		seen[util.HostPort(s.Host, s.Port)]++
	}
	if len(seen) != 3 || len(mp.servers) != 3 {
		t.Fatalf("servers = %v", mp.servers)
	}
	if reg.Refs("pool") != 2 {
		t.Fatalf("refs = %d", reg.Refs("pool"))
	}

	_ = a.Close(ctx)
	_ = a.Close(ctx)
	if reg.Refs("pool") != 1 || mp.closed {
		t.Fatalf("closing a shared adapter must only release: refs=%d closed=%v", reg.Refs("pool"), mp.closed)
	}
	_ = b.Close(ctx)
	if err := reg.Close(ctx); err != nil || !mp.closed {
		t.Fatalf("registry Close: err=%v closed=%v", err, mp.closed)
	}
	if len(reg.IDs()) != 0 {
		t.Fatalf("registry not empty after Close")
	}
}

func TestPrivateHandleIsClosed(t *testing.T) {
	mp := newMemProvider()
	cc := newTestCache[string](t, mp, c.String{}, nil)
	if err := cc.Close(context.Background()); err != nil || !mp.closed {
		t.Fatalf("Close: err=%v closed=%v", err, mp.closed)
	}
}

func TestSetupErrorCleansUp(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	mp := newMemProvider()
	mp.addErr = boom
	_, err := New(ctx, Options[string]{Codec: c.String{}, Open: openWith(mp, nil)})
	var se *SetupError
	if !errors.As(err, &se) || !errors.Is(err, ErrConnectionSetup) || !errors.Is(err, boom) {
		t.Fatalf("want SetupError wrapping boom, got %v", err)
	}
	if !mp.closed {
		t.Fatalf("private provider must be closed after setup failure")
	}

	reg := NewRegistry()
	shared := newMemProvider()
	shared.addErr = boom
	_, err = New(ctx, Options[string]{PersistentID: "p", Codec: c.String{}, Open: openWith(shared, nil), Registry: reg})
	if !errors.Is(err, ErrConnectionSetup) {
		t.Fatalf("want ErrConnectionSetup, got %v", err)
	}
	if reg.Refs("p") != 0 || shared.closed {
		t.Fatalf("shared handle must be released, not closed: refs=%d closed=%v", reg.Refs("p"), shared.closed)
	}
}

func TestCodecIsRequired(t *testing.T) {
	if _, err := New(context.Background(), Options[string]{Open: openWith(newMemProvider(), nil)}); err == nil {
		t.Fatalf("want error without codec")
	}
}

func TestPrivateAdaptersKeepSharedPoolStoreBounded(t *testing.T) {
	ctx := context.Background()
	shared := poolstore.NewLocal()
	open := func(ctx context.Context, id string) (pr.Provider, error) {
		return gomemcache.New(ctx, gomemcache.Config{PoolID: id, Pool: shared})
	}

	for i := 0; i < 3; i++ {
		cc, err := New(ctx, Options[string]{Codec: c.String{}, Open: open})
		if err != nil {
			t.Fatalf("New #%d: %v", i, err)
		}
		servers, err := cc.Servers(ctx)
		if err != nil || len(servers) != 1 {
			t.Fatalf("adapter #%d servers = %v err=%v", i, servers, err)
		}
		_ = cc.Close(ctx)
	}

	stored, err := shared.Servers(ctx, "")
	if err != nil || len(stored) != 0 {
		t.Fatalf("shared store grew: %v err=%v", stored, err)
	}
}
