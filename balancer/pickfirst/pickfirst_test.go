package pickfirst

import (
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/stonefire-oss/qrpc-core/balancer"
	"github.com/stonefire-oss/qrpc-core/balancer/balancermock"
	"github.com/stonefire-oss/qrpc-core/connectivity"
	"github.com/stonefire-oss/qrpc-core/resolver"
)

func TestPickFirstConnectsAndPublishesReady(t *testing.T) {
	ctrl := gomock.NewController(t)
	cc := balancermock.NewMockClientConn(ctrl)
	sc := balancermock.NewMockSubConn(ctrl)

	var listener func(balancer.SubConnState)
	cc.EXPECT().NewSubConn(gomock.Any(), gomock.Any()).DoAndReturn(
		func(addrs []resolver.Address, opts balancer.NewSubConnOptions) (balancer.SubConn, error) {
			listener = opts.StateListener
			return sc, nil
		})
	sc.EXPECT().Connect()

	var lastState connectivity.State
	var picker balancer.Picker
	cc.EXPECT().UpdateState(gomock.Any()).Do(func(s balancer.State) {
		lastState = s.ConnectivityState
		picker = s.Picker
	}).AnyTimes()

	b := (builder{}).Build(cc)
	err := b.UpdateClientConnState(balancer.ClientConnState{
		Endpoints: []resolver.Endpoint{{Addresses: []resolver.Address{{Addr: "127.0.0.1:1"}}}},
	})
	if err != nil {
		t.Fatalf("UpdateClientConnState: %v", err)
	}
	if listener == nil {
		t.Fatal("NewSubConn was not called with a StateListener")
	}

	listener(balancer.SubConnState{ConnectivityState: connectivity.Ready})
	if lastState != connectivity.Ready {
		t.Fatalf("want READY, got %v", lastState)
	}
	res := picker.Pick(balancer.PickInfo{})
	if res.SubConn != sc {
		t.Fatal("picker did not return the connected SubConn")
	}
}

func TestPickFirstNoAddressesGoesTransientFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	cc := balancermock.NewMockClientConn(ctrl)

	var lastState connectivity.State
	var picker balancer.Picker
	cc.EXPECT().UpdateState(gomock.Any()).Do(func(s balancer.State) {
		lastState = s.ConnectivityState
		picker = s.Picker
	})

	b := (builder{}).Build(cc)
	if err := b.UpdateClientConnState(balancer.ClientConnState{}); err != nil {
		t.Fatalf("UpdateClientConnState: %v", err)
	}
	if lastState != connectivity.TransientFailure {
		t.Fatalf("want TRANSIENT_FAILURE, got %v", lastState)
	}
	res := picker.Pick(balancer.PickInfo{})
	if res.Status == nil || res.Status.Err() == nil {
		t.Fatal("expected a non-nil failure status")
	}
}
