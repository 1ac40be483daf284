package codec

import (
	"fmt"

	"golang.org/x/net/http2"

	"github.com/stonefire-oss/qrpc-core/status"
)

// StatusFromHTTP maps an HTTP/2 :status to an RPC status, used only
// when the response ends without a grpc-status trailer (spec.md
// §4.2).
func StatusFromHTTP(code int) *status.Status {
	switch code {
	case 400:
		return status.New(status.Internal, fmt.Sprintf("unexpected HTTP status code %d", code))
	case 401:
		return status.New(status.Unauthenticated, fmt.Sprintf("unexpected HTTP status code %d", code))
	case 403:
		return status.New(status.PermissionDenied, fmt.Sprintf("unexpected HTTP status code %d", code))
	case 404:
		return status.New(status.Unimplemented, fmt.Sprintf("unexpected HTTP status code %d", code))
	case 429, 502, 503, 504:
		return status.New(status.Unavailable, fmt.Sprintf("unexpected HTTP status code %d", code))
	default:
		return status.New(status.Unknown, fmt.Sprintf("unexpected HTTP status code %d", code))
	}
}

// StatusFromRSTCode maps an HTTP/2 RST_STREAM error code to an RPC
// status (spec.md §4.2).
func StatusFromRSTCode(code http2.ErrCode) *status.Status {
	switch code {
	case http2.ErrCodeRefusedStream:
		return status.New(status.Unavailable, "Stream refused by server")
	case http2.ErrCodeCancel:
		return status.New(status.Canceled, "Call cancelled")
	case http2.ErrCodeEnhanceYourCalm:
		return status.New(status.ResourceExhausted, "Bandwidth exhausted or memory limit exceeded")
	case http2.ErrCodeInadequateSecurity:
		return status.New(status.PermissionDenied, "Security policy violated")
	default:
		return status.New(status.Internal, fmt.Sprintf("stream terminated by RST_STREAM with error code: %v", code))
	}
}
