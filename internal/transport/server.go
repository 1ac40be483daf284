package transport

import (
	"crypto/tls"
	"net"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ServerStream is the server's side of one HTTP/2-framed RPC stream.
// It is handed to method dispatch as a plain http.ResponseWriter +
// *http.Request pair, following the same "delegate framing to the
// HTTP/2 library, own only the RPC semantics on top" boundary as
// ClientTransport.
type ServerStream struct {
	W http.ResponseWriter
	R *http.Request
}

// Path returns the ":path" pseudo-header value.
func (s *ServerStream) Path() string { return s.R.URL.Path }

// WriteHeader emits the response headers with :status 200 and the
// grpc content-type, per spec.md §4.5 step 4 ("first outbound write
// emits response headers with :status=200, content-type=
// application/grpc+proto ... currently fixed identity encoding").
func (s *ServerStream) WriteHeader() {
	h := s.W.Header()
	h.Set("content-type", "application/grpc+proto")
	h.Set("grpc-encoding", "identity")
	s.W.WriteHeader(http.StatusOK)
	if f, ok := s.W.(http.Flusher); ok {
		f.Flush()
	}
}

// WriteData writes one chunk of the outbound message stream.
func (s *ServerStream) WriteData(p []byte) (int, error) {
	n, err := s.W.Write(p)
	if f, ok := s.W.(http.Flusher); ok {
		f.Flush()
	}
	return n, err
}

// WriteTrailers emits trailers by setting http.TrailerPrefix-prefixed
// header keys after the headers have been written, the mechanism
// net/http's HTTP/2 server uses to send trailers that were not
// declared before WriteHeader.
func (s *ServerStream) WriteTrailers(kv map[string]string) {
	h := s.W.Header()
	for k, v := range kv {
		h.Set(http.TrailerPrefix+k, v)
	}
}

// Server wraps golang.org/x/net/http2's Server for h2c (cleartext
// HTTP/2) serving, matching the fixed "content-type:
// application/grpc+proto" wire contract in spec.md §6 rather than
// requiring ALPN/TLS for local development, the way grpc-go's
// insecure.NewCredentials() path does.
type Server struct {
	h2s *http2.Server
}

func NewServer() *Server {
	return &Server{h2s: &http2.Server{}}
}

// Serve accepts connections from ln and dispatches HTTP/2 streams to
// handler, one call to handler per RPC. TLS listeners are served
// directly by golang.org/x/net/http2's Server (relying on ALPN
// negotiating "h2"); cleartext listeners are served via h2c, so the
// wire contract in spec.md §6 doesn't require credentials to exercise
// locally.
func (s *Server) Serve(ln net.Listener, handler func(*ServerStream)) error {
	httpHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(&ServerStream{W: w, R: r})
	})

	if _, isTLS := ln.(interface{ TLSConfig() *tls.Config }); isTLS {
		srv := &http.Server{Handler: httpHandler}
		if err := http2.ConfigureServer(srv, s.h2s); err != nil {
			return err
		}
		return srv.Serve(ln)
	}

	srv := &http.Server{Handler: h2c.NewHandler(httpHandler, s.h2s)}
	return srv.Serve(ln)
}
