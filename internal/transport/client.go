// Package transport is the thin adapter over the external HTTP/2
// library named as a collaborator in spec.md §9 ("HTTP/2 library
// boundary... a library providing: client stream open with headers,
// stream write/read, trailers receive, stream reset, and a
// connection-level ping/keepalive. Flow control is delegated."). It
// wraps golang.org/x/net/http2, the library already present in the
// teacher's go.mod (indirect, pulled in by quic-go's fork of the HTTP/2
// varint helpers) and promoted here to the direct transport.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/stonefire-oss/qrpc-core/metadata"
)

// CallHdr carries everything needed to open one HTTP/2-framed RPC
// stream (spec.md §6 "Request headers").
type CallHdr struct {
	Host       string
	Method     string // full method path, "/service/method"
	Scheme     string
	SendTimeout time.Duration
	UserAgent  string
	Metadata   metadata.MD
	TimeoutHdr string // pre-formatted grpc-timeout value, empty if no deadline
}

// ClientStream is one open HTTP/2 stream from the client's side: a
// io.Writer for outgoing DATA frames and an io.Reader for incoming
// ones, plus header/trailer access following the "headers, then body,
// then trailers" HTTP/2 shape.
type ClientStream struct {
	req    *http.Request
	pw     *io.PipeWriter
	resp   *http.Response
	cancel context.CancelFunc

	mu       sync.Mutex
	headerMD metadata.MD
}

// Write sends one chunk of the length-prefixed message stream on the
// request body pipe.
func (s *ClientStream) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

// CloseSend half-closes the local send direction (spec.md §3 Call
// invariant (c): "half-close is monotonic").
func (s *ClientStream) CloseSend() error {
	return s.pw.Close()
}

// Read pulls bytes from the response body (server -> client DATA).
func (s *ClientStream) Read(p []byte) (int, error) {
	return s.resp.Body.Read(p)
}

// Header blocks, if necessary, for the response headers and returns
// them once available (they're already available by the time
// RoundTrip returns).
func (s *ClientStream) Header() http.Header { return s.resp.Header }

// StatusCode returns the :status pseudo-header's numeric value.
func (s *ClientStream) StatusCode() int { return s.resp.StatusCode }

// Trailer returns the trailers; only valid after the body has been
// fully read to EOF, a property of net/http's trailer contract that
// this package relies on rather than re-implements.
func (s *ClientStream) Trailer() http.Header { return s.resp.Trailer }

// Reset cancels the stream's context, which makes the HTTP/2 library
// reset the stream with CANCEL; reason is not sent to the peer.
func (s *ClientStream) Reset(reason string) {
	s.cancel()
}

// ClientTransport owns one HTTP/2 connection to one address (spec.md
// §2 "Subchannel": "owns one transport connection to one address").
type ClientTransport struct {
	addr      string
	t         *http2.Transport
	tlsConfig *tls.Config

	mu      sync.Mutex
	closed  bool
	errCh   chan struct{}
}

// Dial prepares the HTTP/2 transport for one subchannel and checks that
// addr accepts a connection. Every stream opened on the transport
// connects to addr, whatever host its request names; the HTTP/2
// connection itself is opened by the first NewStream.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config) (*ClientTransport, error) {
	ct := &ClientTransport{addr: addr, tlsConfig: tlsConfig, errCh: make(chan struct{})}
	ct.t = &http2.Transport{
		AllowHTTP: tlsConfig == nil,
		DialTLSContext: func(ctx context.Context, network, _ string, cfg *tls.Config) (net.Conn, error) {
			return tls.Dial(network, ct.addr, cfg)
		},
	}
	if tlsConfig == nil {
		// h2c: dial a plain TCP connection and speak HTTP/2 over it
		// directly, bypassing TLS negotiation.
		ct.t.DialTLSContext = func(ctx context.Context, network, _ string, cfg *tls.Config) (net.Conn, error) {
			return net.Dial(network, ct.addr)
		}
	}
	// Probe connectivity eagerly so Dial's caller observes failures
	// synchronously instead of on the first RPC.
	conn, err := ct.t.DialTLSContext(ctx, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, err
	}
	conn.Close()
	return ct, nil
}

// NewStream opens one HTTP/2 stream carrying one RPC, per spec.md §6
// request header contract.
func (ct *ClientTransport) NewStream(ctx context.Context, hdr CallHdr) (*ClientStream, error) {
	ct.mu.Lock()
	if ct.closed {
		ct.mu.Unlock()
		return nil, fmt.Errorf("transport: closed")
	}
	ct.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	scheme := hdr.Scheme
	if scheme == "" {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, hdr.Host, hdr.Method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("content-type", "application/grpc+proto")
	req.Header.Set("te", "trailers")
	if hdr.UserAgent != "" {
		req.Header.Set("user-agent", hdr.UserAgent)
	}
	if hdr.TimeoutHdr != "" {
		req.Header.Set("grpc-timeout", hdr.TimeoutHdr)
	}
	for k, vs := range hdr.Metadata.ToWireHeaders() {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := ct.t.RoundTrip(req)
	if err != nil {
		cancel()
		return nil, err
	}

	return &ClientStream{req: req, pw: pw, resp: resp, cancel: cancel}, nil
}

// Error returns a channel that is closed when Close is called. A
// connection that fails on its own does not close it, and closing it
// does not end the calls bound to the transport.
func (ct *ClientTransport) Error() <-chan struct{} { return ct.errCh }

func (ct *ClientTransport) Close() error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.closed {
		return nil
	}
	ct.closed = true
	close(ct.errCh)
	ct.t.CloseIdleConnections()
	return nil
}

// Ping is a no-op that always returns nil. It sends no PING frame, and
// Dial leaves http2.Transport's ReadIdleTimeout unset, so the library's
// keepalive pings are off as well.
func (ct *ClientTransport) Ping(ctx context.Context) error {
	return nil
}
