package mcache

import (
	"fmt"
	"strings"
)

// ReservedKeyChars may not appear in a cache key.
const ReservedKeyChars = `{}()/\@:`

// ValidateKey accepts non-empty keys free of ReservedKeyChars.
func ValidateKey(key string) error {
	if key == "" {
		return &KeyError{Key: key, Reason: "key is empty"}
	}
	if i := strings.IndexAny(key, ReservedKeyChars); i >= 0 {
		return &KeyError{Key: key, Reason: fmt.Sprintf("reserved character %q", key[i])}
	}
	return nil
}

// ValidateKeyAny is ValidateKey for untyped input. Non-strings are rejected.
func ValidateKeyAny(key any) error {
	s, ok := key.(string)
	if !ok {
		return &KeyError{Key: key, Reason: fmt.Sprintf("expected string, got %T", key)}
	}
	return ValidateKey(s)
}

func validateKeys(keys []string) error {
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			return err
		}
	}
	return nil
}
