// Package call implements the client and server call state machines
// from spec.md §4.4 and §4.5: header/message/trailer framing on top of
// internal/transport and internal/codec, deadline propagation, and the
// per-call filter.Stack.
package call

import (
	"context"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/mem"

	"github.com/stonefire-oss/qrpc-core/channel"
	"github.com/stonefire-oss/qrpc-core/filter"
	"github.com/stonefire-oss/qrpc-core/internal/codec"
	"github.com/stonefire-oss/qrpc-core/internal/transport"
	"github.com/stonefire-oss/qrpc-core/metadata"
	"github.com/stonefire-oss/qrpc-core/resolver"
	"github.com/stonefire-oss/qrpc-core/status"
)

// ClientCallOptions configure one RPC attempt. They are used exactly
// as the caller passes them; no service-config method defaults are
// merged in.
type ClientCallOptions struct {
	Filters       []filter.Factory
	SendMD        metadata.MD
	MaxRecvSize   int
	UserAgent     string

	// Codec serializes/deserializes typed messages for InvokeProto; it
	// plays no part in the byte-oriented SendMsg/RecvMsg/Invoke path.
	// Defaults to the registered "proto" codec.
	Codec encoding.Codec
}

// ClientStream drives one RPC attempt over a picked transport, in any
// of the four method shapes (spec.md §4.4: "the same underlying
// stream machinery serves all four method shapes; they differ only in
// how many messages are sent/received before half-close").
type ClientStream struct {
	ctx    context.Context
	cancel context.CancelFunc

	ch         *channel.Channel
	fullMethod string
	opts       ClientCallOptions
	stack      *filter.Stack

	stream *transport.ClientStream
	dec    *codec.Decoder
	doneFn func(error)

	sendClosed bool
	headerMD   metadata.MD
	gotHeader  bool
	trailer    metadata.MD
}

// NewClientStream picks a transport, opens the HTTP/2 stream, and
// sends the initial headers, per spec.md §4.4 steps 1-2.
func NewClientStream(ctx context.Context, ch *channel.Channel, fullMethod string, opts ClientCallOptions) (*ClientStream, error) {
	ctx, cancel := context.WithCancel(ctx)

	stack := filter.NewStack(ctx, opts.Filters)
	md := opts.SendMD
	if md == nil {
		md = metadata.MD{}
	}
	mdRes := stack.SendMetadata(ctx, md)
	if !mdRes.Ok() {
		cancel()
		return nil, mdRes.Err.Err()
	}

	t, done, err := ch.PickTransport(ctx, fullMethod)
	if err != nil {
		cancel()
		return nil, err
	}

	// The request's authority is the target's endpoint, so the full
	// target URI never leaks into the request URL and :path stays
	// "/service/method".
	host := ch.Target()
	if tgt, err := resolver.ParseTarget(host); err == nil && tgt.Endpoint() != "" {
		host = tgt.Endpoint()
	}
	hdr := transport.CallHdr{
		Host:      host,
		Method:    fullMethod,
		UserAgent: opts.UserAgent,
		Metadata:  mdRes.Value,
	}
	if dl, ok := ctx.Deadline(); ok {
		hdr.TimeoutHdr = codec.FormatTimeout(time.Until(dl))
	}

	stream, err := t.NewStream(ctx, hdr)
	if err != nil {
		cancel()
		done(err)
		return nil, err
	}

	maxSize := opts.MaxRecvSize
	if maxSize <= 0 {
		maxSize = codec.DefaultMaxMessageSize
	}
	return &ClientStream{
		ctx:        ctx,
		cancel:     cancel,
		ch:         ch,
		fullMethod: fullMethod,
		opts:       opts,
		stack:      stack,
		stream:     stream,
		dec:        codec.NewDecoder(mem.DefaultBufferPool(), maxSize),
		doneFn:     done,
	}, nil
}

// SendMsg frames and writes one outbound message (spec.md §4.4 step 3).
func (cs *ClientStream) SendMsg(msg []byte) error {
	if cs.sendClosed {
		return status.New(status.Internal, "SendMsg called after CloseSend").Err()
	}
	r := cs.stack.SendMessage(cs.ctx, msg)
	if !r.Ok() {
		cs.fail(r.Err)
		return r.Err.Err()
	}
	if err := codec.EncodeFrame(cs.stream, codec.Identity, r.Value); err != nil {
		st := cs.classifyIOErr(err)
		cs.fail(st)
		return st.Err()
	}
	return nil
}

// CloseSend half-closes the local send direction, per the "half-close
// is monotonic" call invariant (spec.md §3(c)).
func (cs *ClientStream) CloseSend() error {
	if cs.sendClosed {
		return nil
	}
	cs.sendClosed = true
	return cs.stream.CloseSend()
}

// Header blocks until response headers arrive and returns them,
// running the receive-direction filter chain over them (spec.md §4.4
// step 4).
func (cs *ClientStream) Header() (metadata.MD, error) {
	if cs.gotHeader {
		return cs.headerMD, nil
	}
	if cs.stream.StatusCode() != 200 {
		st := codec.StatusFromHTTP(cs.stream.StatusCode())
		return nil, st.Err()
	}
	md, _ := metadata.FromWireHeaders(cs.stream.Header())
	r := cs.stack.ReceiveMetadata(cs.ctx, md)
	if !r.Ok() {
		return nil, r.Err.Err()
	}
	cs.headerMD = r.Value
	cs.gotHeader = true
	return cs.headerMD, nil
}

// RecvMsg reads and deframes the next inbound message, running the
// receive-direction message filters (spec.md §4.4 step 5). It returns
// io.EOF once trailers close the stream with grpc-status=OK, or the
// converted status error otherwise.
func (cs *ClientStream) RecvMsg() ([]byte, error) {
	if _, err := cs.Header(); err != nil {
		return nil, err
	}
	for {
		fr, ok, err := cs.dec.Next()
		if err != nil {
			st := status.New(status.ResourceExhausted, err.Error())
			cs.fail(st)
			return nil, st.Err()
		}
		if ok {
			payload := append([]byte(nil), fr.Payload.ReadOnlyData()...)
			fr.Payload.Free()
			r := cs.stack.ReceiveMessage(cs.ctx, payload)
			if !r.Ok() {
				cs.fail(r.Err)
				return nil, r.Err.Err()
			}
			return r.Value, nil
		}

		buf := make([]byte, 32*1024)
		n, rerr := cs.stream.Read(buf)
		if n > 0 {
			cs.dec.Write(buf[:n])
			continue
		}
		if rerr == io.EOF {
			return nil, cs.finish()
		}
		if rerr != nil {
			st := cs.classifyIOErr(rerr)
			cs.fail(st)
			return nil, st.Err()
		}
	}
}

// finish reads trailers once the body reaches EOF and produces the
// call's terminal status, per spec.md §4.4 step 6.
func (cs *ClientStream) finish() error {
	if cs.dec.Pending() {
		st := status.New(status.Internal, "unexpected EOF mid-frame")
		cs.fail(st)
		return st.Err()
	}

	trailer := cs.stream.Trailer()
	md, _ := metadata.FromWireHeaders(trailer)
	r := cs.stack.ReceiveTrailers(cs.ctx, md)
	if !r.Ok() {
		cs.fail(r.Err)
		return r.Err.Err()
	}
	cs.trailer = r.Value

	codes := cs.trailer.Get("grpc-status")
	if len(codes) == 0 {
		st := codec.StatusFromHTTP(cs.stream.StatusCode())
		cs.fail(st)
		return st.Err()
	}
	var code int
	fmt.Sscanf(codes[0], "%d", &code)
	msg := ""
	if ms := cs.trailer.Get("grpc-message"); len(ms) > 0 {
		msg = codec.DecodeGrpcMessage(ms[0])
	}
	st := status.New(status.Code(code), msg)
	if st.Code == status.OK {
		cs.doneFn(nil)
		return io.EOF
	}
	cs.doneFn(st.Err())
	return st.Err()
}

func (cs *ClientStream) Trailer() metadata.MD { return cs.trailer }

func (cs *ClientStream) classifyIOErr(err error) *status.Status {
	if cs.ctx.Err() != nil {
		return status.FromContextError(cs.ctx.Err())
	}
	return status.New(status.Unavailable, err.Error())
}

func (cs *ClientStream) fail(st *status.Status) {
	cs.stream.Reset("call failed")
	cs.doneFn(st.Err())
	cs.cancel()
}

// Invoke drives a full unary call: send one message, half-close,
// receive exactly one message and the trailers (spec.md §4.4's unary
// shape).
func Invoke(ctx context.Context, ch *channel.Channel, fullMethod string, req []byte, opts ClientCallOptions) ([]byte, metadata.MD, error) {
	cs, err := NewClientStream(ctx, ch, fullMethod, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, nil, err
	}
	resp, err := cs.RecvMsg()
	if err != nil {
		return nil, cs.Trailer(), err
	}
	if _, err := cs.RecvMsg(); err != io.EOF {
		if err == nil {
			return resp, cs.Trailer(), status.New(status.Internal, "unary call server sent more than one message").Err()
		}
		return resp, cs.Trailer(), err
	}
	return resp, cs.Trailer(), nil
}
