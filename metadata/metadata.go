// Package metadata implements the case-normalized multimap described
// in spec.md §3/§4.1: metadata round-trips through HTTP/2 headers and
// trailers, with "-bin" keys carrying base64-encoded opaque bytes and
// all other keys carrying printable ASCII.
package metadata

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const binHdrSuffix = "-bin"

// MD is an ordered multimap from a normalized key to its values.
// The zero value is ready to use.
type MD map[string][]string

var (
	errInvalidKey   = errors.New("metadata: invalid key")
	errInvalidValue = errors.New("metadata: invalid value")
)

// validKey reports whether k matches [0-9a-z_.-]+ once lowercased, and
// is not an HTTP/2 pseudo-header.
func validKey(k string) bool {
	if k == "" || k[0] == ':' {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '.' || c == '-':
		default:
			return false
		}
	}
	return true
}

func isBinKey(k string) bool {
	return strings.HasSuffix(k, binHdrSuffix)
}

// validValue reports whether v is legal for a non-binary key: every
// byte is printable ASCII, 0x20-0x7E.
func validValue(v string) bool {
	for i := 0; i < len(v); i++ {
		if v[i] < 0x20 || v[i] > 0x7E {
			return false
		}
	}
	return true
}

func normalize(k string) string {
	return strings.ToLower(k)
}

// New builds an MD from a plain map, validating every entry. Invalid
// entries are dropped rather than causing New to fail, matching the
// decode contract in spec.md §4.1 ("a per-entry error is reported
// out-of-band and the offending entry is skipped").
func New(kv map[string]string) MD {
	md := make(MD, len(kv))
	for k, v := range kv {
		md.Add(k, v)
	}
	return md
}

// Pairs builds an MD from alternating key/value strings, like
// metadata.Pairs("a", "1", "b", "2") in the real grpc-go package this
// mirrors.
func Pairs(kv ...string) MD {
	if len(kv)%2 == 1 {
		panic(fmt.Sprintf("metadata: Pairs got the odd number of input pairs for metadata: %d", len(kv)))
	}
	md := make(MD, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		md.Add(kv[i], kv[i+1])
	}
	return md
}

func (md MD) Set(key, value string) error {
	k := normalize(key)
	if !validKey(k) {
		return errInvalidKey
	}
	if !isBinKey(k) && !validValue(value) {
		return errInvalidValue
	}
	md[k] = []string{value}
	return nil
}

func (md MD) Add(key, value string) error {
	k := normalize(key)
	if !validKey(k) {
		return errInvalidKey
	}
	if !isBinKey(k) && !validValue(value) {
		return errInvalidValue
	}
	md[k] = append(md[k], value)
	return nil
}

func (md MD) Remove(key string) error {
	k := normalize(key)
	if !validKey(k) {
		return errInvalidKey
	}
	delete(md, k)
	return nil
}

// Get never fails; it returns an empty list when key is absent.
func (md MD) Get(key string) []string {
	if md == nil {
		return nil
	}
	return md[normalize(key)]
}

// Merge concatenates other's values into md, per key.
func (md MD) Merge(other MD) {
	for k, vs := range other {
		md[k] = append(md[k], vs...)
	}
}

// Clone deep-copies md; value slices (and, for -bin keys, their
// decoded byte payloads) are independent of the source.
func (md MD) Clone() MD {
	out := make(MD, len(md))
	for k, vs := range md {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}

// DecodeEntry reports any per-entry error encountered while decoding
// wire headers, so callers can surface it out-of-band without failing
// the whole decode.
type DecodeEntry struct {
	Key string
	Err error
}

// FromWireHeaders decodes an http.Header (as produced by an HTTP/2
// request/response) into an MD. Pseudo-headers are already absent from
// http.Header by construction; "-bin" keys are split on comma and each
// piece independently base64-decoded (no padding required).
func FromWireHeaders(h http.Header) (MD, []DecodeEntry) {
	md := make(MD, len(h))
	var errs []DecodeEntry
	for k, vs := range h {
		nk := normalize(k)
		if !validKey(nk) {
			errs = append(errs, DecodeEntry{Key: k, Err: errInvalidKey})
			continue
		}
		if isBinKey(nk) {
			for _, v := range vs {
				for _, part := range strings.Split(v, ",") {
					b, err := decodeBinValue(part)
					if err != nil {
						errs = append(errs, DecodeEntry{Key: k, Err: err})
						continue
					}
					md[nk] = append(md[nk], string(b))
				}
			}
			continue
		}
		for _, v := range vs {
			if !validValue(v) {
				errs = append(errs, DecodeEntry{Key: k, Err: errInvalidValue})
				continue
			}
			md[nk] = append(md[nk], v)
		}
	}
	return md, errs
}

func decodeBinValue(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// ToWireHeaders serializes md into an http.Header suitable for an
// HTTP/2 HEADERS or trailer frame. "-bin" values are base64-encoded
// without padding.
func (md MD) ToWireHeaders() http.Header {
	h := make(http.Header, len(md))
	for k, vs := range md {
		if isBinKey(k) {
			for _, v := range vs {
				h.Add(k, base64.RawStdEncoding.EncodeToString([]byte(v)))
			}
			continue
		}
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

// Len reports the number of keys carried.
func (md MD) Len() int {
	return len(md)
}
