package mcache

const (
	DefaultServerHost   = "127.0.0.1"
	DefaultServerPort   = 11211
	DefaultServerWeight = 1
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
