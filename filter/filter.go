// Package filter implements the per-call filter chain described in
// spec.md §4.3 and formalized as "promise-threaded filters" in §9's
// design notes: each filter is a pair of async transforms over
// (metadata|message|trailers), composed send-direction in
// registration order and receive-direction in reverse. A sum-type
// Result{Continue|Fail} stands in for the source's promise chain so
// filter errors never need panics or exceptions to short-circuit the
// stack.
package filter

import (
	"context"

	"github.com/stonefire-oss/qrpc-core/metadata"
	"github.com/stonefire-oss/qrpc-core/status"
)

// Result is Continue(value) or Fail(status); exactly one is set.
type Result[T any] struct {
	Value T
	Err   *status.Status
}

func Continue[T any](v T) Result[T] { return Result[T]{Value: v} }
func Fail[T any](s *status.Status) Result[T] {
	var zero T
	return Result[T]{Value: zero, Err: s}
}

func (r Result[T]) Ok() bool { return r.Err == nil }

// Filter is instantiated once per call by a Factory, so it may hold
// per-call state (e.g. a client-side auth filter caching a fetched
// token).
type Filter interface {
	// SendMetadata runs before outgoing headers are written.
	SendMetadata(ctx context.Context, md metadata.MD) Result[metadata.MD]
	// SendMessage runs before an outgoing message is framed and
	// written.
	SendMessage(ctx context.Context, msg []byte) Result[[]byte]
	// ReceiveMetadata runs when inbound headers/trailers-as-headers
	// arrive.
	ReceiveMetadata(ctx context.Context, md metadata.MD) Result[metadata.MD]
	// ReceiveMessage runs on each deframed inbound message.
	ReceiveMessage(ctx context.Context, msg []byte) Result[[]byte]
	// ReceiveTrailers runs on the final trailers, after the last
	// message.
	ReceiveTrailers(ctx context.Context, md metadata.MD) Result[metadata.MD]
}

// Factory creates one Filter instance per call.
type Factory interface {
	NewFilter(ctx context.Context) Filter
}

type FactoryFunc func(ctx context.Context) Filter

func (f FactoryFunc) NewFilter(ctx context.Context) Filter { return f(ctx) }

// passthroughFilter returns every value unchanged; it backs the
// exported Passthrough value. NewStack does not use it: with no
// factories the stack simply holds no filters.
type passthroughFilter struct{}

func (passthroughFilter) SendMetadata(_ context.Context, md metadata.MD) Result[metadata.MD] {
	return Continue(md)
}
func (passthroughFilter) SendMessage(_ context.Context, msg []byte) Result[[]byte] {
	return Continue(msg)
}
func (passthroughFilter) ReceiveMetadata(_ context.Context, md metadata.MD) Result[metadata.MD] {
	return Continue(md)
}
func (passthroughFilter) ReceiveMessage(_ context.Context, msg []byte) Result[[]byte] {
	return Continue(msg)
}
func (passthroughFilter) ReceiveTrailers(_ context.Context, md metadata.MD) Result[metadata.MD] {
	return Continue(md)
}

// Passthrough is a Filter that changes nothing at every stage; embed
// it to implement only the stages a concrete filter cares about.
var Passthrough passthroughFilter

// Stack composes N filters: send-direction in registration order,
// receive-direction in reverse (spec.md §4.3).
type Stack struct {
	instances []Filter
}

// NewStack instantiates one Filter per factory for this call.
func NewStack(ctx context.Context, factories []Factory) *Stack {
	instances := make([]Filter, len(factories))
	for i, f := range factories {
		instances[i] = f.NewFilter(ctx)
	}
	return &Stack{instances: instances}
}

// SendMetadata runs the send-direction chain in registration order.
// A failure here is a send-chain error: per spec.md §4.3/§7 it cancels
// the call locally, it is never surfaced to the peer.
func (s *Stack) SendMetadata(ctx context.Context, md metadata.MD) Result[metadata.MD] {
	cur := md
	for _, f := range s.instances {
		r := f.SendMetadata(ctx, cur)
		if !r.Ok() {
			return r
		}
		cur = r.Value
	}
	return Continue(cur)
}

func (s *Stack) SendMessage(ctx context.Context, msg []byte) Result[[]byte] {
	cur := msg
	for _, f := range s.instances {
		r := f.SendMessage(ctx, cur)
		if !r.Ok() {
			return r
		}
		cur = r.Value
	}
	return Continue(cur)
}

// ReceiveMetadata runs the receive-direction chain in reverse
// registration order. A failure here is reclassified as INTERNAL per
// spec.md §4.3/§7 and ends the call locally.
func (s *Stack) ReceiveMetadata(ctx context.Context, md metadata.MD) Result[metadata.MD] {
	cur := md
	for i := len(s.instances) - 1; i >= 0; i-- {
		r := s.instances[i].ReceiveMetadata(ctx, cur)
		if !r.Ok() {
			return Fail[metadata.MD](reclassify(r.Err))
		}
		cur = r.Value
	}
	return Continue(cur)
}

func (s *Stack) ReceiveMessage(ctx context.Context, msg []byte) Result[[]byte] {
	cur := msg
	for i := len(s.instances) - 1; i >= 0; i-- {
		r := s.instances[i].ReceiveMessage(ctx, cur)
		if !r.Ok() {
			return Fail[[]byte](reclassify(r.Err))
		}
		cur = r.Value
	}
	return Continue(cur)
}

func (s *Stack) ReceiveTrailers(ctx context.Context, md metadata.MD) Result[metadata.MD] {
	cur := md
	for i := len(s.instances) - 1; i >= 0; i-- {
		r := s.instances[i].ReceiveTrailers(ctx, cur)
		if !r.Ok() {
			return Fail[metadata.MD](reclassify(r.Err))
		}
		cur = r.Value
	}
	return Continue(cur)
}

func reclassify(s *status.Status) *status.Status {
	if s == nil {
		return status.New(status.Internal, "filter error")
	}
	return status.New(status.Internal, s.Message)
}
