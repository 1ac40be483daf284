// Package roundrobin implements the round-robin load-balancing policy
// from spec.md §4.6: one subchannel per endpoint, rotating across
// READY children with a per-instance counter.
package roundrobin

import (
	"sync"
	"sync/atomic"

	"github.com/stonefire-oss/qrpc-core/balancer"
	"github.com/stonefire-oss/qrpc-core/connectivity"
	"github.com/stonefire-oss/qrpc-core/resolver"
	"github.com/stonefire-oss/qrpc-core/status"
)

const Name = "round_robin"

func init() {
	balancer.Register(builder{})
}

type builder struct{}

func (builder) Name() string { return Name }

func (builder) Build(cc balancer.ClientConn) balancer.Balancer {
	return &roundRobinBalancer{cc: cc, children: map[string]*child{}}
}

type child struct {
	sc    balancer.SubConn
	state connectivity.State
}

type roundRobinBalancer struct {
	mu       sync.Mutex
	cc       balancer.ClientConn
	children map[string]*child
}

func (b *roundRobinBalancer) UpdateClientConnState(s balancer.ClientConnState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool)
	for _, ep := range s.Endpoints {
		for _, addr := range ep.Addresses {
			seen[addr.Addr] = true
			if _, ok := b.children[addr.Addr]; ok {
				continue
			}
			c := &child{state: connectivity.Idle}
			sc, err := b.cc.NewSubConn([]resolver.Address{addr}, balancer.NewSubConnOptions{
				StateListener: func(s balancer.SubConnState) { b.onSubConnState(c, s) },
			})
			if err != nil {
				continue
			}
			c.sc = sc
			b.children[addr.Addr] = c
			sc.Connect()
		}
	}
	for addr, c := range b.children {
		if !seen[addr] {
			c.sc.Shutdown()
			delete(b.children, addr)
		}
	}
	b.publishLocked()
	return nil
}

func (b *roundRobinBalancer) onSubConnState(c *child, s balancer.SubConnState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.state = s.ConnectivityState
	if s.ConnectivityState == connectivity.Idle {
		c.sc.Connect()
	}
	b.publishLocked()
}

// publishLocked implements the aggregate-state rule from spec.md
// §4.6: "READY if any child READY; CONNECTING if any CONNECTING and
// none READY; TRANSIENT_FAILURE if all TF; IDLE otherwise."
func (b *roundRobinBalancer) publishLocked() {
	var ready []balancer.SubConn
	anyConnecting := false
	allTF := len(b.children) > 0
	for _, c := range b.children {
		switch c.state {
		case connectivity.Ready:
			ready = append(ready, c.sc)
			allTF = false
		case connectivity.Connecting:
			anyConnecting = true
			allTF = false
		default:
			if c.state != connectivity.TransientFailure {
				allTF = false
			}
		}
	}

	switch {
	case len(ready) > 0:
		p := newRoundRobinPicker(ready)
		b.cc.UpdateState(balancer.State{ConnectivityState: connectivity.Ready, Picker: p})
	case anyConnecting:
		b.cc.UpdateState(balancer.State{
			ConnectivityState: connectivity.Connecting,
			Picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
				return balancer.PickResult{Queue: true}
			}),
		})
	case allTF:
		b.cc.UpdateState(balancer.State{
			ConnectivityState: connectivity.TransientFailure,
			Picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
				return balancer.PickResult{Status: status.New(status.Unavailable, "round_robin: all subchannels are in TRANSIENT_FAILURE")}
			}),
		})
	default:
		b.cc.UpdateState(balancer.State{
			ConnectivityState: connectivity.Idle,
			Picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
				return balancer.PickResult{Queue: true}
			}),
		})
	}
}

func (b *roundRobinBalancer) ResolverError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.children) > 0 {
		return
	}
	st := status.Convert(err)
	b.cc.UpdateState(balancer.State{
		ConnectivityState: connectivity.TransientFailure,
		Picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
			return balancer.PickResult{Status: st}
		}),
	})
}

func (b *roundRobinBalancer) ExitIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.children {
		if c.state == connectivity.Idle {
			c.sc.Connect()
		}
	}
}

func (b *roundRobinBalancer) ResetBackoff() {}

func (b *roundRobinBalancer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.children {
		c.sc.Shutdown()
	}
}

type roundRobinPicker struct {
	subconns []balancer.SubConn
	next     atomic.Uint64
}

func newRoundRobinPicker(ready []balancer.SubConn) *roundRobinPicker {
	return &roundRobinPicker{subconns: ready}
}

func (p *roundRobinPicker) Pick(balancer.PickInfo) balancer.PickResult {
	n := uint64(len(p.subconns))
	idx := p.next.Add(1) % n
	return balancer.PickResult{SubConn: p.subconns[idx]}
}
