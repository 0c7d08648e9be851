package mcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// New registered servers with the pool. skipped counts servers already
	// registered under persistentID (or repeated in the request).
	ServersRegistered(persistentID string, added, skipped int)

	// Set received a TTL that normalized to "already expired" and deleted the key instead.
	ExpiredSetDeleted(key string)

	// DeleteMultiple saw failed flags for some keys; others may have been deleted.
	BulkDeletePartial(requested, failed int)

	// A stored value could not be decoded with the configured codec.
	DecodeFailed(key string, err error)

	// The provider returned an error. op is the adapter operation, e.g. "get", "set_multiple".
	ProviderError(op string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ServersRegistered(string, int, int) {}
func (NopHooks) ExpiredSetDeleted(string)           {}
func (NopHooks) BulkDeletePartial(int, int)         {}
func (NopHooks) DecodeFailed(string, error)         {}
func (NopHooks) ProviderError(string, error)        {}
