package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeGrpcMessage percent-encodes a status message for transmission in
// the grpc-message trailer, per spec.md §4.2/§6 and grpc-go's own
// status/percent-encoding scheme: printable ASCII (0x20-0x7E) other than
// '%' passes through unchanged; everything else, including a literal
// '%', is escaped as an uppercase %XX.
func EncodeGrpcMessage(msg string) string {
	if !needsEncoding(msg) {
		return msg
	}
	var b strings.Builder
	for _, c := range []byte(msg) {
		if c >= ' ' && c <= '~' && c != '%' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func needsEncoding(msg string) bool {
	for _, c := range []byte(msg) {
		if c < ' ' || c > '~' || c == '%' {
			return true
		}
	}
	return false
}

// DecodeGrpcMessage reverses EncodeGrpcMessage. Malformed escapes are
// passed through verbatim rather than rejected, matching grpc-go's
// lenient trailer decoding (a corrupt trailer shouldn't itself fail the
// call's status reporting).
func DecodeGrpcMessage(msg string) string {
	if !strings.Contains(msg, "%") {
		return msg
	}
	var b strings.Builder
	for i := 0; i < len(msg); i++ {
		if msg[i] != '%' || i+2 >= len(msg) {
			b.WriteByte(msg[i])
			continue
		}
		n, err := strconv.ParseUint(msg[i+1:i+3], 16, 8)
		if err != nil {
			b.WriteByte(msg[i])
			continue
		}
		b.WriteByte(byte(n))
		i += 2
	}
	return b.String()
}
