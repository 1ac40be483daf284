// Package status carries the fixed RPC status enumeration and the
// (code, details, metadata) triple that ends every call.
package status

import (
	"context"
	"errors"
	"fmt"

	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/stonefire-oss/qrpc-core/metadata"
)

// Code is the fixed status code enumeration. See spec.md §3.
type Code uint8

const (
	OK Code = iota
	Canceled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
	DataLoss
	Unauthenticated

	_maxCode
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Canceled:
		return "CANCELLED"
	case Unknown:
		return "UNKNOWN"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case DeadlineExceeded:
		return "DEADLINE_EXCEEDED"
	case NotFound:
		return "NOT_FOUND"
	case AlreadyExists:
		return "ALREADY_EXISTS"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case ResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case FailedPrecondition:
		return "FAILED_PRECONDITION"
	case Aborted:
		return "ABORTED"
	case OutOfRange:
		return "OUT_OF_RANGE"
	case Unimplemented:
		return "UNIMPLEMENTED"
	case Internal:
		return "INTERNAL"
	case Unavailable:
		return "UNAVAILABLE"
	case DataLoss:
		return "DATA_LOSS"
	case Unauthenticated:
		return "UNAUTHENTICATED"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

func (c Code) IsValid() bool {
	return c < _maxCode
}

// Status is the (code, details, metadata) triple a call ends with.
type Status struct {
	Code    Code
	Message string
	Trailer metadata.MD

	details []*anypb.Any
}

func New(c Code, msg string) *Status {
	return &Status{Code: c, Message: msg}
}

func Newf(c Code, format string, a ...any) *Status {
	return New(c, fmt.Sprintf(format, a...))
}

// OKStatus is the canonical success status, reused to avoid allocation
// on the hot path of a unary call that never errors.
var OKStatus = New(OK, "")

func (s *Status) Err() error {
	if s == nil || s.Code == OK {
		return nil
	}
	return (*statusError)(s)
}

// WithDetails attaches rich error detail messages, exposed through
// Details and Proto. This is an enrichment beyond the bare (code,
// details string) triple that the distilled spec names — see
// SPEC_FULL.md. The call package neither writes nor reads a
// grpc-status-details-bin trailer, so details do not cross the wire.
func (s *Status) WithDetails(details ...proto.Message) (*Status, error) {
	ns := &Status{Code: s.Code, Message: s.Message, Trailer: s.Trailer}
	ns.details = append(ns.details, s.details...)
	for _, d := range details {
		any, err := anypb.New(d)
		if err != nil {
			return nil, err
		}
		ns.details = append(ns.details, any)
	}
	return ns, nil
}

func (s *Status) Details() []*anypb.Any {
	if s == nil {
		return nil
	}
	return s.details
}

// Proto renders the status as the canonical google.rpc.Status message,
// the wire shape of the grpc-status-details-bin trailer.
func (s *Status) Proto() *spb.Status {
	if s == nil {
		return nil
	}
	return &spb.Status{
		Code:    int32(s.Code),
		Message: s.Message,
		Details: s.details,
	}
}

// FromProto reconstructs a Status from a decoded google.rpc.Status.
func FromProto(p *spb.Status) *Status {
	if p == nil {
		return nil
	}
	return &Status{Code: Code(p.Code), Message: p.Message, details: p.Details}
}

type statusError Status

func (e *statusError) Error() string {
	return fmt.Sprintf("rpc error: code = %s desc = %s", Code(e.Code), e.Message)
}

func (e *statusError) GRPCStatus() *Status {
	return (*Status)(e)
}

// FromError recovers the Status embedded in an error produced by Err,
// or wraps an arbitrary error as Unknown.
func FromError(err error) (*Status, bool) {
	if err == nil {
		return OKStatus, true
	}
	if se, ok := err.(interface{ GRPCStatus() *Status }); ok {
		return se.GRPCStatus(), true
	}
	return New(Unknown, err.Error()), false
}

// Convert is FromError without the ok flag, for callers that always
// want a Status regardless of origin.
func Convert(err error) *Status {
	s, _ := FromError(err)
	return s
}

func (c Code) Error() string {
	return c.String()
}

// FromContextError maps context.Canceled/context.DeadlineExceeded to
// their RPC status equivalents, per spec.md §4.4's "a call's context
// being canceled or exceeding its deadline ends the call with CANCELLED
// or DEADLINE_EXCEEDED respectively".
func FromContextError(err error) *Status {
	switch {
	case err == nil:
		return OKStatus
	case errors.Is(err, context.DeadlineExceeded):
		return New(DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return New(Canceled, err.Error())
	default:
		return New(Unknown, err.Error())
	}
}
