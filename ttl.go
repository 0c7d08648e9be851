package mcache

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	pr "github.com/unkn0wn-root/mcache/provider"
)

// TTL is a cache lifetime. The zero value means "not provided" and stores
// without expiration. Seconds(0) and negative lifetimes mean "already expired".
type TTL struct {
	set                 bool
	secs                int64
	years, months, days int
	dur                 time.Duration
}

// Seconds is a lifetime of n seconds.
func Seconds(n int64) TTL { return TTL{set: true, secs: n} }

// Duration is a lifetime of d, rounded up to whole seconds.
func Duration(d time.Duration) TTL { return TTL{set: true, dur: d} }

// Period is a calendar lifetime. Calendar components are resolved from the
// UNIX epoch, so Period(1, 0, 0, 0) is 365 days and Period(0, 2, 0, 0) is 59.
func Period(years, months, days int, d time.Duration) TTL {
	return TTL{set: true, years: years, months: months, days: days, dur: d}
}

// IsSet reports whether a lifetime was provided.
func (t TTL) IsSet() bool { return t.set }

// InSeconds resolves the lifetime to a signed number of seconds.
func (t TTL) InSeconds() int64 {
	if !t.set {
		return 0
	}
	if t.years == 0 && t.months == 0 && t.days == 0 {
		s := int64(t.dur / time.Second)
		if t.dur%time.Second > 0 {
			s++
		}
		return t.secs + s
	}
	at := time.Unix(0, 0).UTC().AddDate(t.years, t.months, t.days).Add(t.dur)
	s := at.Unix()
	if at.Nanosecond() > 0 {
		s++
	}
	return t.secs + s
}

func (t TTL) String() string {
	if !t.set {
		return "none"
	}
	return strconv.FormatInt(t.InSeconds(), 10) + "s"
}

// NormalizeTTL converts t into memcached's expiration field at now:
// 0 when t is not set, an absolute UNIX timestamp when t exceeds 30 days,
// t in seconds when positive, otherwise -1 (already expired).
func NormalizeTTL(t TTL, now time.Time) int64 {
	if !t.set {
		return 0
	}
	n := t.InSeconds()
	switch {
	case n > pr.MaxRelativeExpiration:
		base := now.Unix()
		if n > math.MaxInt64-base {
			return math.MaxInt64
		}
		return n + base
	case n > 0:
		return n
	default:
		return -1
	}
}

var isoDuration = regexp.MustCompile(
	`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseTTL parses a lifetime. Accepted forms:
//
//	""        -> Seconds(0)
//	"300"     -> Seconds(300), signed integers allowed
//	"P1Y2DT3H", "PT6H8M", "P1W" -> Period (ISO-8601 duration)
//	"90m", "1h30m" -> Duration
func ParseTTL(s string) (TTL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Seconds(0), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Seconds(n), nil
	}
	if strings.HasPrefix(s, "P") {
		return parseISODuration(s)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return TTL{}, fmt.Errorf("%w: ttl %q", ErrInvalidInput, s)
	}
	return Duration(d), nil
}

func parseISODuration(s string) (TTL, error) {
	m := isoDuration.FindStringSubmatch(s)
	bad := fmt.Errorf("%w: ttl %q is not an ISO-8601 duration", ErrInvalidInput, s)
	if m == nil {
		return TTL{}, bad
	}
	if strings.Join(m[1:], "") == "" {
		return TTL{}, bad // "P" or "PT"
	}
	if strings.Contains(s, "T") && m[5]+m[6]+m[7] == "" {
		return TTL{}, bad // "P1DT"
	}

	num := func(g string) int {
		if g == "" {
			return 0
		}
		n, err := strconv.Atoi(g)
		if err != nil {
			n = math.MaxInt32
		}
		return n
	}
	d := time.Duration(num(m[5]))*time.Hour + time.Duration(num(m[6]))*time.Minute
	if m[7] != "" {
		secs, err := time.ParseDuration(m[7] + "s")
		if err != nil {
			return TTL{}, bad
		}
		d += secs
	}
	return Period(num(m[1]), num(m[2]), num(m[3])*7+num(m[4]), d), nil
}
