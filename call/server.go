package call

import (
	"context"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/mem"

	"github.com/stonefire-oss/qrpc-core/filter"
	"github.com/stonefire-oss/qrpc-core/internal/codec"
	"github.com/stonefire-oss/qrpc-core/internal/transport"
	"github.com/stonefire-oss/qrpc-core/metadata"
	"github.com/stonefire-oss/qrpc-core/status"
)

// ServerCallOptions carries the server-side filter chain and message
// size limits for one method, set up once at registration time.
type ServerCallOptions struct {
	Filters     []filter.Factory
	MaxRecvSize int

	// Codec names the google.golang.org/grpc/encoding Codec a
	// typed handler wrapper should use; unset means the registered
	// "proto" codec.
	Codec encoding.Codec
}

// ServerCall is the server's side of one RPC, the mirror of
// ClientStream (spec.md §4.5): it deframes inbound messages, dispatches
// to the registered handler, and frames the response plus trailers.
type ServerCall struct {
	ctx    context.Context
	cancel context.CancelFunc

	stream *transport.ServerStream
	dec    *codec.Decoder
	stack  *filter.Stack
	msgCodec encoding.Codec

	headerSent bool
	wroteMsg   bool
}

// NewServerCall parses the inbound headers — including the
// grpc-timeout deadline propagation contract from spec.md §4.2/§4.5 —
// and constructs the call-scoped filter stack.
func NewServerCall(parent context.Context, stream *transport.ServerStream, opts ServerCallOptions) (*ServerCall, error) {
	ctx := parent
	var cancel context.CancelFunc
	if tstr := stream.R.Header.Get("grpc-timeout"); tstr != "" {
		d, err := codec.ParseTimeout(tstr)
		if err != nil {
			return nil, err
		}
		ctx, cancel = context.WithTimeout(ctx, d)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	md, _ := metadata.FromWireHeaders(stream.R.Header)
	stack := filter.NewStack(ctx, opts.Filters)
	r := stack.ReceiveMetadata(ctx, md)
	if !r.Ok() {
		cancel()
		return nil, r.Err.Err()
	}

	maxSize := opts.MaxRecvSize
	if maxSize <= 0 {
		maxSize = codec.DefaultMaxMessageSize
	}
	return &ServerCall{
		ctx:      ctx,
		cancel:   cancel,
		stream:   stream,
		dec:      codec.NewDecoder(mem.DefaultBufferPool(), maxSize),
		stack:    stack,
		msgCodec: opts.codec(),
	}, nil
}

func (sc *ServerCall) Context() context.Context { return sc.ctx }

// Codec returns the google.golang.org/grpc/encoding Codec this call
// was constructed with (the registered "proto" codec by default), for
// handlers that want typed RecvProto/SendProto instead of raw bytes.
func (sc *ServerCall) Codec() encoding.Codec { return sc.msgCodec }

// RecvProto reads the next inbound message and unmarshals it into v
// via Codec().
func (sc *ServerCall) RecvProto(v any) error {
	b, err := sc.RecvMsg()
	if err != nil {
		return err
	}
	return sc.msgCodec.Unmarshal(b, v)
}

// SendProto marshals v via Codec() and sends it as the next outbound
// message.
func (sc *ServerCall) SendProto(v any) error {
	b, err := sc.msgCodec.Marshal(v)
	if err != nil {
		return status.New(status.Internal, err.Error()).Err()
	}
	return sc.SendMsg(b)
}

// RecvMsg reads and deframes the next inbound message, returning
// io.EOF once the client has half-closed (spec.md §4.5 step 2).
func (sc *ServerCall) RecvMsg() ([]byte, error) {
	for {
		fr, ok, err := sc.dec.Next()
		if err != nil {
			return nil, status.New(status.ResourceExhausted, err.Error()).Err()
		}
		if ok {
			payload := append([]byte(nil), fr.Payload.ReadOnlyData()...)
			fr.Payload.Free()
			r := sc.stack.ReceiveMessage(sc.ctx, payload)
			if !r.Ok() {
				return nil, r.Err.Err()
			}
			return r.Value, nil
		}

		buf := make([]byte, 32*1024)
		n, rerr := sc.stream.R.Body.Read(buf)
		if n > 0 {
			sc.dec.Write(buf[:n])
			continue
		}
		if rerr == io.EOF {
			if sc.dec.Pending() {
				return nil, status.New(status.Internal, "unexpected EOF mid-frame").Err()
			}
			return nil, io.EOF
		}
		if rerr != nil {
			return nil, status.FromContextError(sc.ctx.Err()).Err()
		}
	}
}

// SendMsg frames and writes one outbound message, sending response
// headers first if this is the first write (spec.md §4.5 step 4).
func (sc *ServerCall) SendMsg(msg []byte) error {
	if !sc.headerSent {
		sc.stream.WriteHeader()
		sc.headerSent = true
	}
	r := sc.stack.SendMessage(sc.ctx, msg)
	if !r.Ok() {
		return r.Err.Err()
	}
	sc.wroteMsg = true
	return codec.EncodeFrame(serverWriter{sc.stream}, codec.Identity, r.Value)
}

// SetHeader stages outgoing metadata, running the send-direction
// metadata filters; it must be called before the first SendMsg.
func (sc *ServerCall) SetHeader(md metadata.MD) error {
	r := sc.stack.SendMetadata(sc.ctx, md)
	if !r.Ok() {
		return r.Err.Err()
	}
	for k, vs := range r.Value.ToWireHeaders() {
		for _, v := range vs {
			sc.stream.W.Header().Add(k, v)
		}
	}
	return nil
}

// Finish ends the call: emits response headers if none were sent yet
// (the "trailers-only" response shape of spec.md §4.2 for a call that
// errors before any message), then the grpc-status/grpc-message
// trailers (spec.md §4.5 step 5).
func (sc *ServerCall) Finish(st *status.Status) {
	if !sc.headerSent {
		sc.stream.WriteHeader()
		sc.headerSent = true
	}
	if st == nil {
		st = status.OKStatus
	}

	trailer := metadata.MD{}
	trailer.Set("grpc-status", fmt.Sprintf("%d", int(st.Code)))
	if st.Message != "" {
		trailer.Set("grpc-message", codec.EncodeGrpcMessage(st.Message))
	}
	if st.Trailer != nil {
		trailer.Merge(st.Trailer)
	}

	r := sc.stack.ReceiveTrailers(sc.ctx, trailer)
	out := trailer
	if r.Ok() {
		out = r.Value
	}

	kv := make(map[string]string, out.Len())
	for k, vs := range out {
		if len(vs) > 0 {
			kv[k] = vs[0]
		}
	}
	sc.stream.WriteTrailers(kv)
	sc.cancel()
}

// deadline exposes the parsed deadline for handlers/dispatch logging;
// zero ok means no deadline was set on this call.
func (sc *ServerCall) deadline() (time.Time, bool) {
	return sc.ctx.Deadline()
}

// serverWriter adapts *transport.ServerStream's WriteData to io.Writer
// so codec.EncodeFrame can target it directly.
type serverWriter struct{ s *transport.ServerStream }

func (w serverWriter) Write(p []byte) (int, error) { return w.s.WriteData(p) }
