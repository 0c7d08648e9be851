package util

import (
	"net"
	"strconv"
	"strings"
)

// HostPort returns the identity of a server in the pool. Weight is not part of it.
// Unix socket paths are returned as-is.
func HostPort(host string, port int) string {
	if IsSocket(host) {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// IsSocket reports whether host names a unix socket path.
func IsSocket(host string) bool {
	return strings.HasPrefix(host, "/")
}

// SplitHostPortWeight parses "host:port[:weight]" or "/path/to.sock[:weight]".
// A missing weight is returned as 0.
func SplitHostPortWeight(s string) (host string, port, weight int, err error) {
	if IsSocket(s) {
		path, w, found := strings.Cut(s, ":")
		if found {
			if weight, err = strconv.Atoi(w); err != nil {
				return "", 0, 0, err
			}
		}
		return path, 0, weight, nil
	}

	rest := s
	// host:port:weight - the weight is a third segment after the port. For an
	// IPv6 literal, segments are counted after the closing bracket.
	tail, offset := s, 0
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "]"); end >= 0 {
			tail, offset = s[end+1:], end+1
		}
	}
	if strings.Count(tail, ":") == 2 {
		i := offset + strings.LastIndex(tail, ":")
		if weight, err = strconv.Atoi(s[i+1:]); err != nil {
			return "", 0, 0, err
		}
		rest = s[:i]
	}
	h, p, err := net.SplitHostPort(rest)
	if err != nil {
		return "", 0, 0, err
	}
	if port, err = strconv.Atoi(p); err != nil {
		return "", 0, 0, err
	}
	return h, port, weight, nil
}
