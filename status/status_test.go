package status

import (
	"context"
	"errors"
	"testing"
)

// TestOKStatusErrIsNil is half of the spec.md §8 "a call ends with
// exactly one status" invariant as seen from the status package: OK
// must collapse to a nil error, since callers branch on err != nil to
// decide whether a call ended successfully.
func TestOKStatusErrIsNil(t *testing.T) {
	if err := New(OK, "").Err(); err != nil {
		t.Fatalf("OK status: got non-nil error %v", err)
	}
	if err := OKStatus.Err(); err != nil {
		t.Fatalf("OKStatus: got non-nil error %v", err)
	}
	var nilStatus *Status
	if err := nilStatus.Err(); err != nil {
		t.Fatalf("nil *Status: got non-nil error %v", err)
	}
}

func TestNonOKStatusRoundTripsThroughErr(t *testing.T) {
	want := New(NotFound, "no such widget")
	err := want.Err()
	if err == nil {
		t.Fatal("expected a non-nil error for a non-OK status")
	}
	got, ok := FromError(err)
	if !ok {
		t.Fatal("FromError: expected ok=true for an error produced by Status.Err")
	}
	if got.Code != want.Code || got.Message != want.Message {
		t.Fatalf("FromError round trip: got %+v, want %+v", got, want)
	}
}

func TestFromErrorWrapsArbitraryErrorsAsUnknown(t *testing.T) {
	got, ok := FromError(errors.New("boom"))
	if ok {
		t.Fatal("FromError: expected ok=false for a plain error")
	}
	if got.Code != Unknown {
		t.Fatalf("FromError: got code %v, want Unknown", got.Code)
	}
}

func TestFromErrorNilIsOK(t *testing.T) {
	got, ok := FromError(nil)
	if !ok || got.Code != OK {
		t.Fatalf("FromError(nil): got (%+v, %v), want (OK, true)", got, ok)
	}
}

func TestProtoFromProtoRoundTrip(t *testing.T) {
	want := New(PermissionDenied, "nope")
	p := want.Proto()
	got := FromProto(p)
	if got.Code != want.Code || got.Message != want.Message {
		t.Fatalf("Proto/FromProto round trip: got %+v, want %+v", got, want)
	}
}

func TestFromContextErrorMapsCanceledAndDeadlineExceeded(t *testing.T) {
	if got := FromContextError(context.Canceled); got.Code != Canceled {
		t.Fatalf("FromContextError(Canceled): got %v, want Canceled", got.Code)
	}
	if got := FromContextError(context.DeadlineExceeded); got.Code != DeadlineExceeded {
		t.Fatalf("FromContextError(DeadlineExceeded): got %v, want DeadlineExceeded", got.Code)
	}
	if got := FromContextError(nil); got.Code != OK {
		t.Fatalf("FromContextError(nil): got %v, want OK", got.Code)
	}
}

// TestErrIsIdempotent guards the "exactly one status" invariant from
// the other direction: calling Err twice on the same Status must not
// mutate shared state or produce inconsistent results, since a call's
// terminal status is read from more than one place (Trailer, doneFn).
func TestErrIsIdempotent(t *testing.T) {
	st := New(Aborted, "retry elsewhere")
	err1 := st.Err()
	err2 := st.Err()
	got1, _ := FromError(err1)
	got2, _ := FromError(err2)
	if got1.Code != got2.Code || got1.Message != got2.Message {
		t.Fatalf("Err: repeated calls diverged: %+v vs %+v", got1, got2)
	}
}
