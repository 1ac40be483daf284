// Package channel implements the client-side Channel, its resolving
// load balancer, and the Subchannel pool (spec.md §2 items 5, 9, 10;
// §4.7, §4.8, §4.9).
package channel

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/stonefire-oss/qrpc-core/connectivity"
	"github.com/stonefire-oss/qrpc-core/internal/backoff"
	"github.com/stonefire-oss/qrpc-core/internal/transport"
	"github.com/stonefire-oss/qrpc-core/resolver"
)

// Args are the channel args a Subchannel is keyed by, alongside its
// address (spec.md §3 Subchannel: "{address, channel args, ...}").
type Args struct {
	TLSConfig *tls.Config
}

func (a Args) key() bool { return a.TLSConfig != nil }

// subchannelPoolCapacity bounds the process-wide LRU pool. Real
// deployments dial far fewer than this many distinct addresses per
// process; it exists to bound memory for pathological resolver churn.
const subchannelPoolCapacity = 4096

// pool is the process-wide subchannel pool named in spec.md §9 ("a
// process-wide LRU-like pool with weak channel-side handles
// (ref/unref)"), backed by github.com/hashicorp/golang-lru so
// eviction under memory pressure follows LRU order instead of an
// unbounded map.
var pool = newSubchannelPool()

type subchannelPool struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newSubchannelPool() *subchannelPool {
	c, err := lru.NewWithEvict(subchannelPoolCapacity, onEvict)
	if err != nil {
		panic(err) // capacity is a positive constant; NewWithEvict cannot fail
	}
	return &subchannelPool{cache: c}
}

func onEvict(key, value any) {
	if sc, ok := value.(*Subchannel); ok {
		sc.mu.Lock()
		unreferenced := sc.refs == 0 && sc.callRefs == 0
		sc.mu.Unlock()
		if unreferenced {
			sc.shutdownLocked()
		}
	}
}

type poolKey struct {
	addr string
	tls  bool
}

// getOrCreateSubchannel returns the shared Subchannel for (addr,
// args), incrementing its LB reference count (spec.md §5 "Subchannels
// are shared across calls within a channel and across channels that
// target the same (address, channel args)").
func getOrCreateSubchannel(addr string, args Args) *Subchannel {
	key := poolKey{addr: addr, tls: args.key()}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	if v, ok := pool.cache.Get(key); ok {
		sc := v.(*Subchannel)
		sc.ref()
		return sc
	}
	sc := newSubchannel(addr, args)
	sc.ref()
	pool.cache.Add(key, sc)
	return sc
}

// Subchannel owns at most one HTTP/2 connection to one address
// (spec.md §2 item 5, §4.7).
type Subchannel struct {
	addr string
	args Args

	mu       sync.Mutex
	state    connectivity.State
	refs     int // LB holders (ref/unref)
	callRefs int // active calls (callRef/callUnref)

	transport *transport.ClientTransport
	backoff   *backoff.Strategy
	retries   int

	watchersMu sync.Mutex
	watchers   []chan connectivity.State

	shutdownCh chan struct{}
}

func newSubchannel(addr string, args Args) *Subchannel {
	return &Subchannel{
		addr:       addr,
		args:       args,
		state:      connectivity.Idle,
		backoff:    backoff.New(backoff.DefaultConfig),
		shutdownCh: make(chan struct{}),
	}
}

func (sc *Subchannel) Address() string { return sc.addr }

func (sc *Subchannel) State() connectivity.State {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.state
}

// ref/unref track LB holders (spec.md §4.7).
func (sc *Subchannel) ref() {
	sc.mu.Lock()
	sc.refs++
	sc.mu.Unlock()
}

func (sc *Subchannel) unref() {
	sc.mu.Lock()
	sc.refs--
	shouldClose := sc.refs <= 0 && sc.callRefs <= 0
	sc.mu.Unlock()
	if shouldClose {
		sc.shutdownLocked()
	}
}

// callRef/callUnref track active calls; the subchannel may not close
// while either counter is positive (spec.md §4.7).
func (sc *Subchannel) callRef() {
	sc.mu.Lock()
	sc.callRefs++
	sc.mu.Unlock()
}

func (sc *Subchannel) callUnref() {
	sc.mu.Lock()
	sc.callRefs--
	shouldClose := sc.refs <= 0 && sc.callRefs <= 0
	sc.mu.Unlock()
	if shouldClose {
		sc.shutdownLocked()
	}
}

func (sc *Subchannel) setState(s connectivity.State) {
	sc.mu.Lock()
	prev := sc.state
	sc.state = s
	sc.mu.Unlock()

	if prev != s {
		connectivity.ReportTransition("subchannel", sc.addr, prev, s)
	}

	sc.watchersMu.Lock()
	for _, ch := range sc.watchers {
		select {
		case ch <- s:
		default:
		}
	}
	sc.watchersMu.Unlock()
}

// Connect requests the subchannel move out of IDLE, per the "All
// SubConns start in IDLE ... Balancers must call Connect" contract
// (spec.md §4.6). Repeated calls while already CONNECTING or READY are
// no-ops.
func (sc *Subchannel) Connect() {
	sc.mu.Lock()
	if sc.state == connectivity.Connecting || sc.state == connectivity.Ready || sc.state == connectivity.Shutdown {
		sc.mu.Unlock()
		return
	}
	sc.mu.Unlock()
	go sc.connectLoop()
}

func (sc *Subchannel) connectLoop() {
	sc.setState(connectivity.Connecting)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	t, err := transport.Dial(ctx, sc.addr, sc.args.TLSConfig)
	if err != nil {
		sc.retries++
		sc.setState(connectivity.TransientFailure)
		delay := sc.backoff.Backoff(sc.retries)
		select {
		case <-time.After(delay):
			sc.mu.Lock()
			sc.state = connectivity.Idle
			sc.mu.Unlock()
			sc.Connect()
		case <-sc.shutdownCh:
		}
		return
	}

	sc.mu.Lock()
	sc.transport = t
	sc.retries = 0
	sc.mu.Unlock()
	sc.setState(connectivity.Ready)

	go func() {
		select {
		case <-t.Error():
			sc.mu.Lock()
			sc.transport = nil
			sc.mu.Unlock()
			sc.setState(connectivity.Idle)
		case <-sc.shutdownCh:
		}
	}()
}

// Transport returns the live HTTP/2 transport, or nil if not READY.
// Per spec.md §5, callers must re-verify the subchannel's state after
// any suspension point; a nil return means the caller should re-pick.
func (sc *Subchannel) Transport() *transport.ClientTransport {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.state != connectivity.Ready {
		return nil
	}
	return sc.transport
}

func (sc *Subchannel) UpdateAddresses(addrs []resolver.Address) {
	// A subchannel holds one address and rebinds to the first of
	// addrs; the rest are ignored. round_robin creates one SubConn per
	// address; pick_first passes its whole list, of which only the
	// first address is ever dialed.
	if len(addrs) > 0 {
		sc.mu.Lock()
		sc.addr = addrs[0].Addr
		sc.mu.Unlock()
	}
}

func (sc *Subchannel) Shutdown() {
	sc.unref()
}

func (sc *Subchannel) shutdownLocked() {
	sc.mu.Lock()
	if sc.state == connectivity.Shutdown {
		sc.mu.Unlock()
		return
	}
	sc.state = connectivity.Shutdown
	t := sc.transport
	sc.transport = nil
	sc.mu.Unlock()

	close(sc.shutdownCh)
	if t != nil {
		t.Close()
	}
	sc.setState(connectivity.Shutdown)
}

// Watch returns a channel of state transitions, starting after
// current (spec.md §6 "watchConnectivityState(current, deadline, cb)").
func (sc *Subchannel) Watch(current connectivity.State) <-chan connectivity.State {
	ch := make(chan connectivity.State, 1)
	sc.watchersMu.Lock()
	sc.watchers = append(sc.watchers, ch)
	sc.watchersMu.Unlock()
	return ch
}
