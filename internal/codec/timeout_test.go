package codec

import (
	"math"
	"testing"
	"time"
)

func TestParseTimeoutUnits(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1S", time.Second},
		{"500m", 500 * time.Millisecond},
		{"10M", 10 * time.Minute},
		{"2H", 2 * time.Hour},
		{"1000u", 1000 * time.Microsecond},
		{"999n", 999 * time.Nanosecond},
	}
	for _, tt := range tests {
		got, err := ParseTimeout(tt.in)
		if err != nil {
			t.Fatalf("ParseTimeout(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseTimeout(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTimeoutRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "S", "1X", "123456789S", "-1S"} {
		if _, err := ParseTimeout(in); err == nil {
			t.Fatalf("ParseTimeout(%q): expected an error", in)
		}
	}
}

// TestParseTimeoutLargeHourValueDoesNotOverflow guards against
// multiplying the parsed digits by the unit's nanosecond multiplier
// before checking for overflow: 99999999 hours worth of nanoseconds
// vastly exceeds int64, and must clamp rather than wrap to a
// negative/tiny duration.
func TestParseTimeoutLargeHourValueDoesNotOverflow(t *testing.T) {
	got, err := ParseTimeout("99999999H")
	if err != nil {
		t.Fatalf("ParseTimeout: %v", err)
	}
	if got <= 0 {
		t.Fatalf("overflowed to a non-positive duration: %v", got)
	}
	if got != time.Duration(math.MaxInt64) {
		t.Fatalf("want the clamped max duration, got %v", got)
	}
}

func TestFormatTimeoutPicksLargestExactUnit(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{999 * time.Nanosecond, "999n"},
		{5 * time.Second, "5S"},
		{3 * time.Hour, "3H"},
	}
	for _, tt := range tests {
		if got := FormatTimeout(tt.in); got != tt.want {
			t.Fatalf("FormatTimeout(%v): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatThenParseRoundTripsWithinUnitPrecision(t *testing.T) {
	d := 42 * time.Second
	s := FormatTimeout(d)
	got, err := ParseTimeout(s)
	if err != nil {
		t.Fatalf("ParseTimeout(%q): %v", s, err)
	}
	if got < d {
		t.Fatalf("round trip under-reported the deadline: got %v, want at least %v", got, d)
	}
}
