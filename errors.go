package mcache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/mcache/internal/util"
)

var (
	// ErrInvalidInput reports a malformed server descriptor or other untyped input.
	ErrInvalidInput = errors.New("mcache: invalid input")
	// ErrInvalidKey reports a key that is not a non-empty string free of reserved characters.
	ErrInvalidKey = errors.New("mcache: invalid key")
	// ErrNotIterable reports a bulk input that is not a collection.
	ErrNotIterable = errors.New("mcache: iterable expected")
	// ErrConnectionSetup reports that the provider rejected server registration.
	ErrConnectionSetup = errors.New("mcache: connection setup failed")
)

// KeyError describes a rejected key. errors.Is(err, ErrInvalidKey) holds.
type KeyError struct {
	Key    any
	Reason string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("mcache: invalid key %#v: %s", e.Key, e.Reason)
}

func (e *KeyError) Unwrap() error { return ErrInvalidKey }

// ServerError describes a rejected server descriptor. errors.Is(err, ErrInvalidInput) holds.
type ServerError struct {
	Index  int
	Reason string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("mcache: server #%d: %s; each entry must provide host, port and optionally weight", e.Index, e.Reason)
}

func (e *ServerError) Unwrap() error { return ErrInvalidInput }

// SetupError is returned by New when the provider refuses the server pool.
type SetupError struct {
	PersistentID string
	Servers      []Server
	Err          error
}

func (e *SetupError) Error() string {
	addrs := make([]string, len(e.Servers))
	for i, s := range e.Servers {
		addrs[i] = util.HostPort(s.Host, s.Port)
	}
	return fmt.Sprintf("mcache: adding servers [%s] to pool %q: %v",
		strings.Join(addrs, ", "), e.PersistentID, e.Err)
}

func (e *SetupError) Unwrap() []error {
	errs := []error{ErrConnectionSetup}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
