package mcache

// Entry is one result of GetMultiple.
type Entry[V any] struct {
	Key   string
	Value V
	Hit   bool
}

// Entries are GetMultiple results in request order.
type Entries[V any] []Entry[V]

// Map returns every entry's value keyed by key, hits and defaults alike.
func (es Entries[V]) Map() map[string]V {
	out := make(map[string]V, len(es))
	for _, e := range es {
		out[e.Key] = e.Value
	}
	return out
}

// Get returns the value for key and whether it was a hit.
// Keys that were not requested return the zero value and false.
func (es Entries[V]) Get(key string) (V, bool) {
	for _, e := range es {
		if e.Key == key {
			return e.Value, e.Hit
		}
	}
	var zero V
	return zero, false
}

func (es Entries[V]) Keys() []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Key
	}
	return out
}

// Missing lists the requested keys that were not found.
func (es Entries[V]) Missing() []string {
	var out []string
	for _, e := range es {
		if !e.Hit {
			out = append(out, e.Key)
		}
	}
	return out
}
