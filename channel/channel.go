// Package channel implements the client-side Channel, its resolving
// load balancer, and the Subchannel pool (spec.md §2 items 5, 9, 10;
// §4.7, §4.8, §4.9).
package channel

import (
	"context"
	"sync"

	"github.com/stonefire-oss/qrpc-core/balancer"
	"github.com/stonefire-oss/qrpc-core/connectivity"
	"github.com/stonefire-oss/qrpc-core/internal/transport"
	"github.com/stonefire-oss/qrpc-core/resolver"
	"github.com/stonefire-oss/qrpc-core/status"
)

// Channel is the client's resolving, load-balanced handle onto a
// logical backend (spec.md §2 item 9). It owns the resolving load
// balancer, the current (state, Picker) pair, and the pick queue. It
// keeps no list of the SubConn adapters handed to the Balancer.
type Channel struct {
	target resolver.Target
	args   Args
	rlb    *resolvingLoadBalancer

	mu       sync.Mutex
	state    connectivity.State
	picker   balancer.Picker
	watchers []chan connectivity.State

	pickCond *sync.Cond

	closed bool
}

// Dial creates a Channel for target and starts its resolver, per the
// "resolving channel" architecture of spec.md §4.8.
func Dial(target string, args Args) (*Channel, error) {
	t, err := resolver.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	ch := &Channel{
		target: t,
		args:   args,
		state:  connectivity.Idle,
		picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
			return balancer.PickResult{Queue: true}
		}),
	}
	ch.pickCond = sync.NewCond(&ch.mu)
	ch.rlb = newResolvingLoadBalancer(ch)
	if err := ch.rlb.start(t); err != nil {
		return nil, err
	}
	return ch, nil
}

// newSubConn implements the balancer.ClientConn NewSubConn contract on
// behalf of resolvingLoadBalancer: it wraps the pooled Subchannel for
// the (first) address in a subConnAdapter, wiring the caller's
// StateListener to the Subchannel's Watch feed.
func (c *Channel) newSubConn(addrs []resolver.Address, opts balancer.NewSubConnOptions) (balancer.SubConn, error) {
	if len(addrs) == 0 {
		return nil, status.New(status.InvalidArgument, "NewSubConn called with zero addresses").Err()
	}
	sc := getOrCreateSubchannel(addrs[0].Addr, c.args)
	a := &subConnAdapter{sub: sc, listener: opts.StateListener}
	a.start()
	return a, nil
}

// updateState implements the receiving half of balancer.ClientConn.UpdateState
// as seen by resolvingLoadBalancer: publish (state, Picker) and wake
// anything blocked in the pick queue (spec.md §4.9 "the channel drains
// its pick queue against the new Picker").
func (c *Channel) updateState(s balancer.State) {
	c.mu.Lock()
	prev := c.state
	c.state = s.ConnectivityState
	c.picker = s.Picker
	c.mu.Unlock()

	if prev != s.ConnectivityState {
		connectivity.ReportTransition("channel", c.target.Endpoint(), prev, s.ConnectivityState)
	}

	c.notifyWatchers(s.ConnectivityState)
	c.pickCond.Broadcast()
}

func (c *Channel) notifyWatchers(s connectivity.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.watchers {
		select {
		case ch <- s:
		default:
		}
	}
}

// GetState implements connectivity.Reporter. tryToConnect nudges the
// child balancer out of IDLE, matching the "on-demand connection"
// contract of spec.md §6.
func (c *Channel) GetState(tryToConnect bool) connectivity.State {
	c.mu.Lock()
	s := c.state
	c.mu.Unlock()
	if tryToConnect && s == connectivity.Idle {
		c.ExitIdle()
	}
	return s
}

func (c *Channel) WatchState(current connectivity.State, done <-chan struct{}) <-chan connectivity.State {
	ch := make(chan connectivity.State, 1)
	c.mu.Lock()
	c.watchers = append(c.watchers, ch)
	c.mu.Unlock()
	go func() {
		<-done
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, w := range c.watchers {
			if w == ch {
				c.watchers = append(c.watchers[:i], c.watchers[i+1:]...)
				break
			}
		}
	}()
	return ch
}

// pick blocks until the current Picker returns a non-QUEUE result or
// ctx is done, implementing the pick-queue behaviour of spec.md §4.9:
// "A call whose pick returns QUEUE is placed on a wait list ... woken
// on the next Picker update."
func (c *Channel) pick(ctx context.Context, info balancer.PickInfo) (balancer.SubConn, func(), func(error), error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.pickCond.Broadcast()
			c.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, status.FromContextError(err).Err()
		}
		picker := c.picker
		c.mu.Unlock()
		res := picker.Pick(info)
		c.mu.Lock()

		switch {
		case res.Queue:
			c.pickCond.Wait()
			continue
		case res.Drop:
			return nil, nil, nil, res.Status.Err()
		case res.Status != nil:
			return nil, nil, nil, res.Status.Err()
		default:
			return res.SubConn, res.OnCallStarted, res.OnCallEnded, nil
		}
	}
}

// PickTransport resolves one RPC attempt down to a live HTTP/2
// transport, blocking through the pick queue as needed (spec.md §4.9,
// §5's "re-verify state after any suspension point").
func (c *Channel) PickTransport(ctx context.Context, fullMethod string) (*transport.ClientTransport, func(error), error) {
	sc, onStarted, onEnded, err := c.pick(ctx, balancer.PickInfo{FullMethod: fullMethod, Ctx: ctx})
	if err != nil {
		return nil, nil, err
	}
	adapter, ok := sc.(*subConnAdapter)
	if !ok {
		return nil, nil, status.New(status.Internal, "channel: picker returned a foreign SubConn").Err()
	}
	t := adapter.sub.Transport()
	if t == nil {
		if onEnded != nil {
			onEnded(status.New(status.Unavailable, "picked subchannel is not READY").Err())
		}
		return nil, nil, status.New(status.Unavailable, "picked subchannel is not READY").Err()
	}
	adapter.sub.callRef()
	if onStarted != nil {
		onStarted()
	}
	done := func(callErr error) {
		adapter.sub.callUnref()
		if onEnded != nil {
			onEnded(callErr)
		}
	}
	return t, done, nil
}

func (c *Channel) ExitIdle() { c.rlb.exitIdle() }

func (c *Channel) ResetBackoff() { c.rlb.resetBackoff() }

func (c *Channel) Target() string { return c.target.URL.String() }

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.rlb.close()
	c.pickCond.Broadcast()
	return nil
}

// subConnAdapter is the balancer.SubConn handed to Balancer
// implementations; it forwards Connect/UpdateAddresses/Shutdown to the
// pooled Subchannel and republishes the Subchannel's connectivity
// transitions to the Balancer's StateListener.
type subConnAdapter struct {
	sub      *Subchannel
	listener func(balancer.SubConnState)

	stopMu sync.Mutex
	stopCh chan struct{}
}

func (a *subConnAdapter) start() {
	a.stopCh = make(chan struct{})
	ch := a.sub.Watch(a.sub.State())
	go func() {
		for {
			select {
			case s := <-ch:
				if a.listener != nil {
					a.listener(balancer.SubConnState{ConnectivityState: s})
				}
				if s == connectivity.Shutdown {
					return
				}
			case <-a.stopCh:
				return
			}
		}
	}()
}

func (a *subConnAdapter) Connect()   { a.sub.Connect() }
func (a *subConnAdapter) Shutdown() {
	a.stopMu.Lock()
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
	a.stopMu.Unlock()
	a.sub.Shutdown()
}
func (a *subConnAdapter) UpdateAddresses(addrs []resolver.Address) { a.sub.UpdateAddresses(addrs) }
func (a *subConnAdapter) State() connectivity.State                { return a.sub.State() }
