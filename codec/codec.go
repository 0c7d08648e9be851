// Package codec turns cache values into the opaque bytes stored in memcached.
//
// Memcached does not interpret values, so whatever a Codec produces is what the
// server keeps. A codec must round-trip "empty" values faithfully: a stored nil
// pointer or false must decode back to nil or false, because the adapter reports
// hits by the server's answer and not by inspecting the decoded value.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
