// Package server implements the server-side dispatch named in spec.md
// §4.5 and §2 item 8: a method registry keyed by full path, an HTTP/2
// listener, and the four method-shape dispatch flows built on top of
// call.ServerCall.
package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	"google.golang.org/grpc/encoding"

	"github.com/stonefire-oss/qrpc-core/call"
	"github.com/stonefire-oss/qrpc-core/filter"
	"github.com/stonefire-oss/qrpc-core/internal/concurrency"
	"github.com/stonefire-oss/qrpc-core/internal/transport"
	"github.com/stonefire-oss/qrpc-core/metadata"
	"github.com/stonefire-oss/qrpc-core/status"
)

// UnaryHandler handles one request, one response.
type UnaryHandler func(ctx context.Context, req []byte) ([]byte, error)

// ClientStreamHandler handles many requests, one response.
type ClientStreamHandler func(stream *ServerStream) ([]byte, error)

// ServerStreamHandler handles one request, many responses.
type ServerStreamHandler func(req []byte, stream *ServerStream) error

// BidiStreamHandler handles many requests, many responses,
// interleaved freely (spec.md §4.4's bidi-streaming shape).
type BidiStreamHandler func(stream *ServerStream) error

// MethodType names which of the four shapes a MethodDesc implements.
type MethodType int

const (
	Unary MethodType = iota
	ClientStreamingType
	ServerStreamingType
	BidiStreamingType
)

// MethodDesc binds one full method path to its handler and shape,
// matching the "(path, handler, serializer, deserializer, methodType)"
// registration tuple from spec.md §2 item 8. Streaming handlers work
// with raw message bytes by default, or can call
// ServerStream.RecvProto/SendProto to (de)serialize through the
// server's configured google.golang.org/grpc/encoding Codec
// (WithCodec) instead of a bespoke interface.
type MethodDesc struct {
	FullMethod string
	Type       MethodType

	Unary         UnaryHandler
	ClientStream  ClientStreamHandler
	ServerStream  ServerStreamHandler
	BidiStream    BidiStreamHandler
}

// Server owns the method registry and the HTTP/2 listener.
type Server struct {
	transport *transport.Server

	mu       sync.Mutex
	registry *iradix.Tree

	filters     []filter.Factory
	maxRecvSize int
	codec       encoding.Codec
	limiter     *concurrency.Semaphore
	stopping    *concurrency.Event
}

// Option configures a Server at construction, the functional-options
// pattern named in SPEC_FULL.md's ambient-stack section.
type Option func(*Server)

// WithFilters installs the server-side filter chain applied to every
// registered method.
func WithFilters(factories ...filter.Factory) Option {
	return func(s *Server) { s.filters = factories }
}

// WithMaxReceiveMessageSize bounds the largest inbound message any
// method on this server will deframe.
func WithMaxReceiveMessageSize(n int) Option {
	return func(s *Server) { s.maxRecvSize = n }
}

// WithCodec sets the google.golang.org/grpc/encoding Codec used by
// ServerStream.RecvProto/SendProto; defaults to the registered "proto"
// codec.
func WithCodec(c encoding.Codec) Option {
	return func(s *Server) { s.codec = c }
}

// WithMaxConcurrentCalls bounds the number of RPCs handled
// concurrently; a call arriving over the limit blocks until one
// finishes (spec.md §4.5 "a server may bound concurrent calls").
func WithMaxConcurrentCalls(n int) Option {
	return func(s *Server) { s.limiter = concurrency.NewSemaphore(n) }
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		transport: transport.NewServer(),
		registry:  iradix.New(),
		limiter:   concurrency.NewSemaphore(0),
		stopping:  concurrency.NewEvent(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GracefulStop signals handleStream to stop admitting new calls;
// in-flight calls run to completion. Actual listener teardown is the
// caller's responsibility, matching the teacher's pattern of returning
// control from Serve once its net.Listener is closed.
func (s *Server) GracefulStop() {
	s.stopping.Fire()
}

// RegisterMethod adds one MethodDesc to the registry. Per spec.md §9,
// call this only during setup, before Serve.
func (s *Server) RegisterMethod(m MethodDesc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry, _, _ = s.registry.Insert([]byte(m.FullMethod), m)
}

// RegisterService registers every MethodDesc in descs, prefixed by
// serviceName ("/" + serviceName + "/" + method).
func (s *Server) RegisterService(serviceName string, descs ...MethodDesc) {
	for _, d := range descs {
		d.FullMethod = "/" + serviceName + "/" + strings.TrimPrefix(d.FullMethod, "/")
		s.RegisterMethod(d)
	}
}

func (s *Server) lookup(path string) (MethodDesc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.registry.Get([]byte(path))
	if !ok {
		return MethodDesc{}, false
	}
	return v.(MethodDesc), true
}

// Serve accepts connections on ln and dispatches RPCs until ln is
// closed, per spec.md §4.5.
func (s *Server) Serve(ln net.Listener) error {
	return s.transport.Serve(ln, s.handleStream)
}

func (s *Server) handleStream(ts *transport.ServerStream) {
	select {
	case <-s.stopping.Done():
		sc, err := call.NewServerCall(context.Background(), ts, call.ServerCallOptions{Filters: s.filters, MaxRecvSize: s.maxRecvSize, Codec: s.codec})
		if err == nil {
			sc.Finish(status.New(status.Unavailable, "server is shutting down"))
		}
		return
	default:
	}

	s.limiter.Acquire()
	defer s.limiter.Release()

	path := ts.Path()
	m, ok := s.lookup(path)
	if !ok {
		sc, err := call.NewServerCall(context.Background(), ts, call.ServerCallOptions{Filters: s.filters, MaxRecvSize: s.maxRecvSize, Codec: s.codec})
		if err != nil {
			return
		}
		sc.Finish(status.New(status.Unimplemented, fmt.Sprintf("unknown method %s", path)))
		return
	}

	sc, err := call.NewServerCall(context.Background(), ts, call.ServerCallOptions{Filters: s.filters, MaxRecvSize: s.maxRecvSize, Codec: s.codec})
	if err != nil {
		return
	}

	st := dispatch(sc, m)
	sc.Finish(st)
}

// dispatch implements the four method-shape flows from spec.md §4.4:
// unary/server-streaming read the single request message (rejecting a
// second one) before invoking the handler; client-streaming/bidi-streaming
// hand the handler a ServerStream wrapping sc directly.
func dispatch(sc *call.ServerCall, m MethodDesc) *status.Status {
	switch m.Type {
	case Unary:
		req, err := sc.RecvMsg()
		if err != nil {
			return toStatus(err)
		}
		if _, err := drainExtra(sc); err != nil {
			return toStatus(err)
		}
		resp, err := m.Unary(sc.Context(), req)
		if err != nil {
			return toStatus(err)
		}
		if err := sc.SendMsg(resp); err != nil {
			return toStatus(err)
		}
		return status.OKStatus

	case ClientStreamingType:
		stream := &ServerStream{sc: sc}
		resp, err := m.ClientStream(stream)
		if err != nil {
			return toStatus(err)
		}
		if err := sc.SendMsg(resp); err != nil {
			return toStatus(err)
		}
		return status.OKStatus

	case ServerStreamingType:
		req, err := sc.RecvMsg()
		if err != nil {
			return toStatus(err)
		}
		if _, err := drainExtra(sc); err != nil {
			return toStatus(err)
		}
		stream := &ServerStream{sc: sc}
		if err := m.ServerStream(req, stream); err != nil {
			return toStatus(err)
		}
		return status.OKStatus

	case BidiStreamingType:
		stream := &ServerStream{sc: sc}
		if err := m.BidiStream(stream); err != nil {
			return toStatus(err)
		}
		return status.OKStatus

	default:
		return status.New(status.Internal, "unregistered method type")
	}
}

// drainExtra enforces the unary/server-streaming invariant that the
// client sends exactly one request message.
func drainExtra(sc *call.ServerCall) (bool, error) {
	_, err := sc.RecvMsg()
	if err == nil {
		return true, status.New(status.InvalidArgument, "expected exactly one request message").Err()
	}
	return false, nil
}

func toStatus(err error) *status.Status {
	if err == nil {
		return status.OKStatus
	}
	return status.Convert(err)
}

// ServerStream is the handler-facing view of one in-progress call's
// streaming side, hiding call.ServerCall's framing/filter bookkeeping.
type ServerStream struct {
	sc *call.ServerCall
}

func (s *ServerStream) Context() context.Context { return s.sc.Context() }
func (s *ServerStream) RecvMsg() ([]byte, error)  { return s.sc.RecvMsg() }
func (s *ServerStream) SendMsg(p []byte) error    { return s.sc.SendMsg(p) }
func (s *ServerStream) SetHeader(md metadata.MD) error { return s.sc.SetHeader(md) }

// RecvProto/SendProto give handlers typed access to the call's
// google.golang.org/grpc/encoding Codec (the "proto" codec by
// default) instead of raw frame bytes.
func (s *ServerStream) RecvProto(v any) error { return s.sc.RecvProto(v) }
func (s *ServerStream) SendProto(v any) error { return s.sc.SendProto(v) }
