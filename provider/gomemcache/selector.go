package gomemcache

import (
	"net"
	"strconv"
	"sync"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
	"github.com/pkg/errors"

	"github.com/unkn0wn-root/mcache/internal/util"
	pr "github.com/unkn0wn-root/mcache/provider"
)

// selector is a memcache.ServerSelector with weights.
// Every server owns Weight slots on a rendezvous hash; a key maps to the server
// owning the winning slot. Adding servers only moves keys onto the new slots.
type selector struct {
	mu    sync.RWMutex
	addrs map[string]net.Addr // host:port -> resolved address
	order []string            // unique host:port in registration order
	slots []string
	owner map[string]string // slot -> host:port
	ring  *rendezvous.Rendezvous
}

var _ memcache.ServerSelector = (*selector)(nil)

func newSelector() *selector {
	return &selector{
		addrs: make(map[string]net.Addr),
		owner: make(map[string]string),
		ring:  rendezvous.New(nil, xxhash.Sum64String),
	}
}

func resolve(srv pr.Server) (net.Addr, error) {
	if util.IsSocket(srv.Host) {
		return net.ResolveUnixAddr("unix", srv.Host)
	}
	return net.ResolveTCPAddr("tcp", util.HostPort(srv.Host, srv.Port))
}

// add resolves every server first and only then publishes them, so a failing
// address leaves the selector untouched.
func (s *selector) add(servers []pr.Server) error {
	resolved := make([]net.Addr, len(servers))
	for i, srv := range servers {
		addr, err := resolve(srv)
		if err != nil {
			return errors.Wrapf(err, "resolve %s", util.HostPort(srv.Host, srv.Port))
		}
		resolved[i] = addr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, srv := range servers {
		hp := util.HostPort(srv.Host, srv.Port)
		if _, ok := s.addrs[hp]; !ok {
			s.order = append(s.order, hp)
		}
		s.addrs[hp] = resolved[i]

		weight := srv.Weight
		if weight <= 0 {
			weight = 1
		}
		// A repeated registration adds more slots, i.e. more weight.
		base := 0
		for _, o := range s.owner {
			if o == hp {
				base++
			}
		}
		for w := 0; w < weight; w++ {
			slot := hp + "#" + strconv.Itoa(base+w)
			s.owner[slot] = hp
			s.slots = append(s.slots, slot)
		}
	}
	s.ring = rendezvous.New(s.slots, xxhash.Sum64String)
	return nil
}

func (s *selector) PickServer(key string) (net.Addr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.slots) == 0 {
		return nil, memcache.ErrNoServers
	}
	return s.addrs[s.owner[s.ring.Lookup(key)]], nil
}

// Each visits every distinct server once.
func (s *selector) Each(f func(net.Addr) error) error {
	s.mu.RLock()
	addrs := make([]net.Addr, 0, len(s.order))
	for _, hp := range s.order {
		addrs = append(addrs, s.addrs[hp])
	}
	s.mu.RUnlock()

	for _, a := range addrs {
		if err := f(a); err != nil {
			return err
		}
	}
	return nil
}
