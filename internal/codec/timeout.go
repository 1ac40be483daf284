package codec

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/stonefire-oss/qrpc-core/status"
)

// timeoutRe matches the grpc-timeout header: up to 8 digits, one unit
// letter. spec.md §4.2.
var timeoutRe = regexp.MustCompile(`^(\d{1,8})\s*([HMSmun])$`)

// unitToNanos converts the unit letter to a nanosecond multiplier, via
// the millisecond table in spec.md (H/M/S/m/u/n), scaled up so the
// conversion stays in integers.
var unitToNanos = map[byte]int64{
	'H': int64(time.Hour),
	'M': int64(time.Minute),
	'S': int64(time.Second),
	'm': int64(time.Millisecond),
	'u': int64(time.Microsecond),
	'n': int64(time.Nanosecond),
}

// unitOrder is the smallest-unit-first search order used when encoding
// a duration: FormatTimeout scans it from the end for an exact unit,
// and from the start for the ceiling fallback.
var unitOrder = []byte{'n', 'u', 'm', 'S', 'M', 'H'}

// ParseTimeout parses a grpc-timeout header value into a duration.
// Invalid input maps to status.OutOfRange per spec.md §4.2.
func ParseTimeout(v string) (time.Duration, error) {
	m := timeoutRe.FindStringSubmatch(v)
	if m == nil {
		return 0, status.New(status.OutOfRange, fmt.Sprintf("malformed grpc-timeout: %q", v)).Err()
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, status.New(status.OutOfRange, fmt.Sprintf("malformed grpc-timeout: %q", v)).Err()
	}
	mult, ok := unitToNanos[m[2][0]]
	if !ok {
		return 0, status.New(status.OutOfRange, fmt.Sprintf("malformed grpc-timeout unit: %q", v)).Err()
	}
	// Open question (spec.md §9): a legal 8-digit value (up to
	// 99999999) times the 'H' multiplier overflows int64 nanoseconds
	// before any division could clamp it, so check for that overflow
	// directly against the unmultiplied operands rather than
	// multiplying first and inspecting an already-wrapped result.
	if n != 0 && mult > math.MaxInt64/n {
		return time.Duration(math.MaxInt64), nil
	}
	return time.Duration(n * mult), nil
}

// FormatTimeout renders d as a grpc-timeout header value. It uses the
// largest unit that represents d exactly in at most 8 decimal digits
// (5s is "5S", 100ms is "100m"); when no unit is exact, it uses the
// smallest unit whose rounded-up magnitude fits in 8 digits.
func FormatTimeout(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ns := d.Nanoseconds()
	for i := len(unitOrder) - 1; i >= 0; i-- {
		u := unitOrder[i]
		mult := unitToNanos[u]
		if ns%mult == 0 && ns/mult <= 99999999 {
			return fmt.Sprintf("%d%c", ns/mult, u)
		}
	}
	for _, u := range unitOrder {
		mult := unitToNanos[u]
		val := (ns + mult - 1) / mult // ceil, never under-report the deadline
		if val <= 99999999 {
			return fmt.Sprintf("%d%c", val, u)
		}
	}
	// d is absurdly large; clamp to the largest unit's 8-digit ceiling.
	return "99999999H"
}
