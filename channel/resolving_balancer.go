package channel

import (
	"sync"
	"time"

	"github.com/stonefire-oss/qrpc-core/balancer"
	"github.com/stonefire-oss/qrpc-core/connectivity"
	"github.com/stonefire-oss/qrpc-core/internal/backoff"
	"github.com/stonefire-oss/qrpc-core/resolver"
	"github.com/stonefire-oss/qrpc-core/serviceconfig"
	"github.com/stonefire-oss/qrpc-core/status"
)

// resolvingLoadBalancer composes a Resolver and a child Balancer,
// implementing the service-config error-handling algorithm and the
// IDLE-picker-wraps-exitIdle rule from spec.md §4.8.
type resolvingLoadBalancer struct {
	ch  *Channel
	res resolver.Resolver

	mu             sync.Mutex
	child          balancer.Balancer
	childType      string
	previousSC     *serviceconfig.Config
	backoffStrat   *backoff.Strategy
	backoffRetries int
	backoffTimer   *time.Timer
	continueResolving bool
}

func newResolvingLoadBalancer(ch *Channel) *resolvingLoadBalancer {
	return &resolvingLoadBalancer{
		ch:           ch,
		backoffStrat: backoff.New(backoff.DefaultConfig),
	}
}

func (r *resolvingLoadBalancer) start(target resolver.Target) error {
	scheme := target.Scheme()
	if scheme == "" {
		scheme = resolver.DefaultScheme()
	}
	b := resolver.Get(scheme)
	if b == nil {
		return status.Newf(status.Unavailable, "no resolver registered for scheme %q", scheme).Err()
	}
	res, err := b.Build(target, resolverCC{r}, resolver.BuildOptions{})
	if err != nil {
		return err
	}
	r.res = res
	return nil
}

// resolverCC adapts resolvingLoadBalancer to resolver.ClientConn. It
// exists as its own type, rather than a method directly on
// resolvingLoadBalancer, because resolver.ClientConn and
// balancer.ClientConn both declare an UpdateState method with
// different signatures — Go does not allow one receiver type to
// implement both via same-named methods, so each interface gets its
// own thin adapter delegating into the shared state machine below.
type resolverCC struct{ r *resolvingLoadBalancer }

func (a resolverCC) UpdateState(s resolver.State) error { return a.r.handleResolverState(s) }
func (a resolverCC) ReportError(err error)              { a.r.handleResolverError(err) }

// handleResolverState applies the service-config error-handling table
// of spec.md §4.8. Called only via resolverCC.UpdateState.
func (r *resolvingLoadBalancer) handleResolverState(s resolver.State) error {
	r.mu.Lock()

	var chosenSC *serviceconfig.Config
	switch {
	case s.ServiceConfig != nil:
		chosenSC = s.ServiceConfig
		r.previousSC = chosenSC
	default:
		// null SC, no resolver error (ReportError is the error path,
		// this path only runs on a clean update with no SC): clear
		// previous, use default (nil) SC.
		r.previousSC = nil
	}

	var name string
	var raw []byte
	ok := true
	if chosenSC != nil {
		n, rm, found := chosenSC.RawLBConfig(func(n string) bool { return balancer.Get(n) != nil })
		name, ok = n, found
		raw = rm
	} else {
		name = "pick_first"
	}
	if !ok {
		r.mu.Unlock()
		r.publishTransientFailure(status.New(status.Unavailable, "All load balancer options in service config are not compatible"))
		return nil
	}

	bd := balancer.Get(name)
	var lbCfg serviceconfig.LoadBalancingConfig
	if cp, ok := bd.(balancer.ConfigParser); ok && raw != nil {
		cfg, err := cp.ParseConfig(raw)
		if err != nil {
			r.mu.Unlock()
			r.publishTransientFailure(status.New(status.Unavailable, err.Error()))
			return nil
		}
		lbCfg = cfg
	}

	if r.child == nil || r.childType != name {
		if r.child != nil {
			r.child.Close()
		}
		r.child = bd.Build(balancerCC{r})
		r.childType = name
	}
	child := r.child
	r.mu.Unlock()

	return child.UpdateClientConnState(balancer.ClientConnState{
		Endpoints:      s.Endpoints,
		BalancerConfig: lbCfg,
		Attributes:     s.Attributes,
	})
}

// handleResolverError applies the "null SC, error" rows of the
// spec.md §4.8 table: keep the previous service config if one exists,
// else surface the failure; either way start the resolution-failure
// backoff timer. Called only via resolverCC.ReportError.
func (r *resolvingLoadBalancer) handleResolverError(err error) {
	r.mu.Lock()
	hadPrevious := r.previousSC != nil
	child := r.child
	r.mu.Unlock()

	if !hadPrevious {
		if child != nil {
			child.ResolverError(err)
		} else {
			r.publishTransientFailure(status.Convert(err))
		}
	}
	// hadPrevious: spec.md E6 — "channel continues using SC1, publishes
	// the child's state unchanged" — no action needed beyond starting
	// backoff below.

	r.startBackoff()
}

func (r *resolvingLoadBalancer) startBackoff() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backoffTimer != nil {
		r.continueResolving = true
		return
	}
	delay := r.backoffStrat.Backoff(r.backoffRetries)
	r.backoffRetries++
	r.backoffTimer = time.AfterFunc(delay, r.onBackoffFire)
}

func (r *resolvingLoadBalancer) onBackoffFire() {
	r.mu.Lock()
	r.backoffTimer = nil
	again := r.continueResolving
	r.continueResolving = false
	res := r.res
	r.mu.Unlock()

	if again && res != nil {
		res.ResolveNow()
	}
}

func (r *resolvingLoadBalancer) publishTransientFailure(st *status.Status) {
	r.ch.updateState(balancer.State{
		ConnectivityState: connectivity.TransientFailure,
		Picker: balancer.PickerFunc(func(balancer.PickInfo) balancer.PickResult {
			return balancer.PickResult{Status: st}
		}),
	})
}

// balancerCC adapts resolvingLoadBalancer to balancer.ClientConn, the
// helper given to the child Balancer — the counterpart to resolverCC
// above, split out for the same reason (distinct UpdateState
// signatures can't both live on *resolvingLoadBalancer).
type balancerCC struct{ r *resolvingLoadBalancer }

func (a balancerCC) NewSubConn(addrs []resolver.Address, opts balancer.NewSubConnOptions) (balancer.SubConn, error) {
	return a.r.ch.newSubConn(addrs, opts)
}

func (a balancerCC) UpdateState(s balancer.State) { a.r.handleBalancerState(s) }

func (a balancerCC) ResolveNow() { a.r.ResolveNow() }

// handleBalancerState propagates the child's (state, Picker) upward,
// except when the child reports IDLE, in which case the published
// Picker wraps the child's Picker to call ExitIdle() on the first pick
// (spec.md §4.8). Called only via balancerCC.UpdateState.
func (r *resolvingLoadBalancer) handleBalancerState(s balancer.State) {
	if s.ConnectivityState == connectivity.Idle {
		inner := s.Picker
		r.mu.Lock()
		child := r.child
		r.mu.Unlock()
		s.Picker = balancer.PickerFunc(func(info balancer.PickInfo) balancer.PickResult {
			if child != nil {
				child.ExitIdle()
			}
			return inner.Pick(info)
		})
	}
	r.ch.updateState(s)
}

func (r *resolvingLoadBalancer) ResolveNow() {
	r.mu.Lock()
	res := r.res
	r.mu.Unlock()
	if res != nil {
		res.ResolveNow()
	}
}

func (r *resolvingLoadBalancer) exitIdle() {
	r.mu.Lock()
	child := r.child
	timerRunning := r.backoffTimer != nil
	if timerRunning {
		r.continueResolving = true
	}
	r.mu.Unlock()
	if child != nil {
		child.ExitIdle()
	}
	if !timerRunning {
		r.ResolveNow()
	}
}

func (r *resolvingLoadBalancer) resetBackoff() {
	r.mu.Lock()
	r.backoffRetries = 0
	child := r.child
	r.mu.Unlock()
	if child != nil {
		child.ResetBackoff()
	}
}

func (r *resolvingLoadBalancer) close() {
	r.mu.Lock()
	child := r.child
	res := r.res
	if r.backoffTimer != nil {
		r.backoffTimer.Stop()
	}
	r.mu.Unlock()
	if child != nil {
		child.Close()
	}
	if res != nil {
		res.Close()
	}
}
