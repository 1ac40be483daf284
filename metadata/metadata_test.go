package metadata

import (
	"net/http"
	"testing"
)

func TestWireHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		md   MD
	}{
		{"empty", MD{}},
		{"ascii", Pairs("x-req-id", "abc123", "content-type", "application/qrpc")},
		{"binary", MD{"trace-bin": []string{string([]byte{0x00, 0x01, 0xFF, 0x7F})}}},
		{"multi-value", MD{"x-tag": []string{"a", "b", "c"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := tt.md.ToWireHeaders()
			got, errs := FromWireHeaders(wire)
			if len(errs) != 0 {
				t.Fatalf("FromWireHeaders errors: %v", errs)
			}
			if len(got) != len(tt.md) {
				t.Fatalf("key count: got %d, want %d", len(got), len(tt.md))
			}
			for k, want := range tt.md {
				gotVals := got[normalize(k)]
				if len(gotVals) != len(want) {
					t.Fatalf("key %q: got %v, want %v", k, gotVals, want)
				}
				for i := range want {
					if gotVals[i] != want[i] {
						t.Fatalf("key %q[%d]: got %q, want %q", k, i, gotVals[i], want[i])
					}
				}
			}
		})
	}
}

func TestBinKeyIsBase64Encoded(t *testing.T) {
	md := MD{"trace-bin": []string{"\x00\x01\x02"}}
	wire := md.ToWireHeaders()
	v := wire.Get("trace-bin")
	if v == "" {
		t.Fatal("expected a wire value for trace-bin")
	}
	for _, c := range v {
		if c == '\x00' || c == '\x01' || c == '\x02' {
			t.Fatal("raw bytes leaked onto the wire unencoded")
		}
	}
}

func TestSetRejectsInvalidValueForNonBinKey(t *testing.T) {
	md := MD{}
	if err := md.Set("x-req-id", "bad\x01value"); err == nil {
		t.Fatal("expected an error for a non-printable-ASCII value on a non-bin key")
	}
}

func TestSetAllowsAnyBytesForBinKey(t *testing.T) {
	md := MD{}
	if err := md.Set("trace-bin", "\x00\x01\x02"); err != nil {
		t.Fatalf("Set on a -bin key should accept arbitrary bytes: %v", err)
	}
}

func TestFromWireHeadersSkipsInvalidEntryNotWholeDecode(t *testing.T) {
	h := http.Header{}
	h.Add("x-ok", "fine")
	h.Add(":bad-pseudo", "nope")
	md, errs := FromWireHeaders(h)
	if len(errs) != 1 {
		t.Fatalf("want exactly one per-entry error, got %d", len(errs))
	}
	if got := md.Get("x-ok"); len(got) != 1 || got[0] != "fine" {
		t.Fatalf("valid entry was dropped alongside the invalid one: %v", got)
	}
}

func TestKeyNormalizedToLowerCase(t *testing.T) {
	md := MD{}
	md.Set("X-Req-ID", "v")
	if got := md.Get("x-req-id"); len(got) != 1 || got[0] != "v" {
		t.Fatalf("Get with lowercase key: got %v", got)
	}
}
