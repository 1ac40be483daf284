package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stonefire-oss/qrpc-core/balancer"
	"github.com/stonefire-oss/qrpc-core/connectivity"
	"github.com/stonefire-oss/qrpc-core/resolver"
)

type fakeSubConn struct{}

func (*fakeSubConn) Connect()                                {}
func (*fakeSubConn) UpdateAddresses(addrs []resolver.Address) {}
func (*fakeSubConn) Shutdown()                                {}
func (*fakeSubConn) State() connectivity.State                { return connectivity.Ready }

func newTestChannel() *Channel {
	ch := &Channel{
		state: connectivity.Idle,
		picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
			return balancer.PickResult{Queue: true}
		}),
	}
	ch.pickCond = sync.NewCond(&ch.mu)
	return ch
}

// TestPickQueueLivenessWakesOnPickerUpdate is the spec.md §8 pick-queue
// liveness invariant: a call blocked on a QUEUE result must wake up
// and re-pick once the channel publishes a new Picker, rather than
// waiting for some unrelated timeout.
func TestPickQueueLivenessWakesOnPickerUpdate(t *testing.T) {
	ch := newTestChannel()
	want := &fakeSubConn{}

	type pickOutcome struct {
		sc  balancer.SubConn
		err error
	}
	resultCh := make(chan pickOutcome, 1)
	go func() {
		sc, _, _, err := ch.pick(context.Background(), balancer.PickInfo{})
		resultCh <- pickOutcome{sc, err}
	}()

	select {
	case <-resultCh:
		t.Fatal("pick returned before any Picker update was published")
	case <-time.After(50 * time.Millisecond):
	}

	ch.updateState(balancer.State{
		ConnectivityState: connectivity.Ready,
		Picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
			return balancer.PickResult{SubConn: want}
		}),
	})

	select {
	case out := <-resultCh:
		if out.err != nil {
			t.Fatalf("pick: %v", out.err)
		}
		if out.sc != want {
			t.Fatal("pick returned a different SubConn than the updated Picker published")
		}
	case <-time.After(time.Second):
		t.Fatal("pick did not wake up after the Picker was updated")
	}
}

// TestPickQueueContextCancelUnblocks verifies a queued pick is also
// woken by its own context ending, not just by a Picker update, so a
// caller with a short deadline never blocks past it.
func TestPickQueueContextCancelUnblocks(t *testing.T) {
	ch := newTestChannel()
	ctx, cancel := context.WithCancel(context.Background())

	resultCh := make(chan error, 1)
	go func() {
		_, _, _, err := ch.pick(ctx, balancer.PickInfo{})
		resultCh <- err
	}()

	select {
	case <-resultCh:
		t.Fatal("pick returned before cancellation")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-resultCh:
		if err == nil {
			t.Fatal("expected a cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("pick did not unblock after its context was canceled")
	}
}

func TestGetStateReportsCurrentState(t *testing.T) {
	ch := newTestChannel()
	ch.rlb = newResolvingLoadBalancer(ch)
	if got := ch.GetState(false); got != connectivity.Idle {
		t.Fatalf("GetState: got %v, want IDLE", got)
	}
	ch.updateState(balancer.State{ConnectivityState: connectivity.Ready, Picker: ch.picker})
	if got := ch.GetState(false); got != connectivity.Ready {
		t.Fatalf("GetState: got %v, want READY", got)
	}
}
