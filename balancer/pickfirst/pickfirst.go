// Package pickfirst implements the pick-first load-balancing policy
// from spec.md §4.6: a single subchannel, publishing a picker that
// always returns that subchannel once READY. The subchannel is created
// with every resolved address, but the channel dials only the first
// one; later addresses are not tried when it fails.
package pickfirst

import (
	"sync"

	"github.com/stonefire-oss/qrpc-core/balancer"
	"github.com/stonefire-oss/qrpc-core/connectivity"
	"github.com/stonefire-oss/qrpc-core/resolver"
	"github.com/stonefire-oss/qrpc-core/status"
)

const Name = "pick_first"

func init() {
	balancer.Register(builder{})
}

type builder struct{}

func (builder) Name() string { return Name }

func (builder) Build(cc balancer.ClientConn) balancer.Balancer {
	return &pickFirstBalancer{cc: cc}
}

type pickFirstBalancer struct {
	mu    sync.Mutex
	cc    balancer.ClientConn
	sc    balancer.SubConn
	state connectivity.State
}

func (b *pickFirstBalancer) UpdateClientConnState(s balancer.ClientConnState) error {
	var addrs []resolver.Address
	for _, ep := range s.Endpoints {
		addrs = append(addrs, ep.Addresses...)
	}
	if len(addrs) == 0 {
		b.ResolverError(status.New(status.Unavailable, "produced zero addresses").Err())
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sc == nil {
		sc, err := b.cc.NewSubConn(addrs, balancer.NewSubConnOptions{
			StateListener: b.onSubConnState,
		})
		if err != nil {
			return err
		}
		b.sc = sc
		b.state = connectivity.Idle
		b.publishLocked()
		sc.Connect()
		return nil
	}
	b.sc.UpdateAddresses(addrs)
	return nil
}

func (b *pickFirstBalancer) onSubConnState(s balancer.SubConnState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s.ConnectivityState
	if s.ConnectivityState == connectivity.Idle {
		// spec.md §4.6: "on disconnect, re-enters CONNECTING with
		// backoff" — here we simply re-request a connection; the
		// subchannel itself owns the backoff timer (spec.md §4.7).
		b.sc.Connect()
	}
	b.publishLocked()
}

func (b *pickFirstBalancer) publishLocked() {
	switch b.state {
	case connectivity.Ready:
		sc := b.sc
		b.cc.UpdateState(balancer.State{
			ConnectivityState: connectivity.Ready,
			Picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
				return balancer.PickResult{SubConn: sc}
			}),
		})
	case connectivity.TransientFailure:
		b.cc.UpdateState(balancer.State{
			ConnectivityState: connectivity.TransientFailure,
			Picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
				return balancer.PickResult{Status: status.New(status.Unavailable, "pick_first: subchannel not ready")}
			}),
		})
	default:
		b.cc.UpdateState(balancer.State{
			ConnectivityState: b.state,
			Picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
				return balancer.PickResult{Queue: true}
			}),
		})
	}
}

func (b *pickFirstBalancer) ResolverError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = connectivity.TransientFailure
	st := status.Convert(err)
	b.cc.UpdateState(balancer.State{
		ConnectivityState: connectivity.TransientFailure,
		Picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
			return balancer.PickResult{Status: st}
		}),
	})
}

func (b *pickFirstBalancer) ExitIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sc != nil && b.state == connectivity.Idle {
		b.sc.Connect()
	}
}

func (b *pickFirstBalancer) ResetBackoff() {}

func (b *pickFirstBalancer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sc != nil {
		b.sc.Shutdown()
	}
}
