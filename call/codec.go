package call

import (
	"context"

	"google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // registers the "proto" codec

	"github.com/stonefire-oss/qrpc-core/channel"
	"github.com/stonefire-oss/qrpc-core/metadata"
	"github.com/stonefire-oss/qrpc-core/status"
)

// defaultCodecName is the codec looked up when a call's options don't
// name one, matching grpc-go's own default content-subtype.
const defaultCodecName = "proto"

func (o ClientCallOptions) codec() encoding.Codec {
	if o.Codec != nil {
		return o.Codec
	}
	return encoding.GetCodec(defaultCodecName)
}

func (o ServerCallOptions) codec() encoding.Codec {
	if o.Codec != nil {
		return o.Codec
	}
	return encoding.GetCodec(defaultCodecName)
}

// InvokeProto is the typed counterpart to Invoke: it marshals req and
// unmarshals the response through opts.Codec (falling back to the
// registered "proto" codec), so callers with proto.Message types don't
// need to hand-serialize (spec.md §4.4's "caller supplies a
// serializer/deserializer pair", here satisfied by
// google.golang.org/grpc/encoding's pluggable Codec instead of a
// bespoke interface).
func InvokeProto(ctx context.Context, ch *channel.Channel, fullMethod string, req, resp any, opts ClientCallOptions) (metadata.MD, error) {
	c := opts.codec()
	reqBytes, err := c.Marshal(req)
	if err != nil {
		return nil, status.New(status.Internal, err.Error()).Err()
	}
	respBytes, md, err := Invoke(ctx, ch, fullMethod, reqBytes, opts)
	if err != nil {
		return md, err
	}
	if err := c.Unmarshal(respBytes, resp); err != nil {
		return md, status.New(status.Internal, err.Error()).Err()
	}
	return md, nil
}
