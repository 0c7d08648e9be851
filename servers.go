package mcache

import (
	"fmt"
	"math"
	"reflect"

	"github.com/samber/lo"

	"github.com/unkn0wn-root/mcache/internal/util"
)

// NormalizeServers validates servers and fills defaults: weight 0 becomes
// DefaultServerWeight and an empty list becomes the single default server.
func NormalizeServers(servers []Server) ([]Server, error) {
	if len(servers) == 0 {
		return []Server{{Host: DefaultServerHost, Port: DefaultServerPort, Weight: DefaultServerWeight}}, nil
	}
	out := make([]Server, len(servers))
	for i, s := range servers {
		if s.Host == "" {
			return nil, &ServerError{Index: i, Reason: "missing host"}
		}
		if util.IsSocket(s.Host) {
			if s.Port != 0 {
				return nil, &ServerError{Index: i, Reason: fmt.Sprintf("socket %q must use port 0", s.Host)}
			}
		} else if s.Port < 1 || s.Port > math.MaxUint16 {
			return nil, &ServerError{Index: i, Reason: fmt.Sprintf("port %d out of range", s.Port)}
		}
		if s.Weight < 0 {
			return nil, &ServerError{Index: i, Reason: fmt.Sprintf("negative weight %d", s.Weight)}
		}
		s.Weight = coalesce(s.Weight, DefaultServerWeight)
		out[i] = s
	}
	return out, nil
}

// ParseServers validates loosely typed server descriptors, as decoded from
// YAML or JSON: a list of maps with "host", "port" and optional "weight".
// nil yields the default server.
func ParseServers(raw any) ([]Server, error) {
	if raw == nil {
		return NormalizeServers(nil)
	}
	switch v := raw.(type) {
	case []Server:
		return NormalizeServers(v)
	case []map[string]any:
		return ParseServers(lo.ToAnySlice(v))
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: servers must be a list, got %T", ErrInvalidInput, raw)
	}
	servers := make([]Server, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		s, err := parseServer(i, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return NormalizeServers(servers)
}

func parseServer(i int, raw any) (Server, error) {
	if s, ok := raw.(Server); ok {
		return s, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Server{}, &ServerError{Index: i, Reason: fmt.Sprintf("expected a map, got %T", raw)}
	}

	var s Server
	h, ok := m["host"]
	if !ok {
		return Server{}, &ServerError{Index: i, Reason: "missing host"}
	}
	if s.Host, ok = h.(string); !ok {
		return Server{}, &ServerError{Index: i, Reason: fmt.Sprintf("host must be a string, got %T", h)}
	}

	// Sockets carry an explicit port 0.
	p, ok := m["port"]
	if !ok || p == nil {
		return Server{}, &ServerError{Index: i, Reason: "missing port"}
	}
	if s.Port, ok = toInt(p); !ok {
		return Server{}, &ServerError{Index: i, Reason: fmt.Sprintf("port must be an integer, got %v", p)}
	}

	if w, ok := m["weight"]; ok && w != nil {
		if s.Weight, ok = toInt(w); !ok {
			return Server{}, &ServerError{Index: i, Reason: fmt.Sprintf("weight must be an integer, got %v", w)}
		}
	}
	return s, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8, int16, int32, int64:
		i := reflect.ValueOf(n).Int()
		return int(i), i >= math.MinInt && i <= math.MaxInt
	case uint, uint8, uint16, uint32, uint64:
		u := reflect.ValueOf(n).Uint()
		return int(u), u <= math.MaxInt
	case float32, float64:
		f := reflect.ValueOf(n).Float()
		if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}

// newServers drops requested servers whose host and port are already in
// existing, or repeated earlier in requested. Weight is not part of the identity.
func newServers(existing, requested []Server) (added []Server, skipped int) {
	id := func(s Server) string { return util.HostPort(s.Host, s.Port) }
	known := lo.SliceToMap(existing, func(s Server) (string, struct{}) { return id(s), struct{}{} })
	added = lo.Filter(lo.UniqBy(requested, id), func(s Server, _ int) bool {
		_, dup := known[id(s)]
		return !dup
	})
	return added, len(requested) - len(added)
}
