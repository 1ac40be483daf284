// Package balancer defines the load-balancer policy plane from
// spec.md §2/§4.6: SubConn, Picker, Balancer, and the process-wide
// registry mapping a policy type name to its Builder. The registry is
// backed by github.com/hashicorp/go-immutable-radix, matching the
// "global registries ... are process-wide read-mostly maps populated
// once at startup; treat as immutable thereafter" design note in
// spec.md §9 — an immutable radix tree gives lock-free reads after
// registration without a sync.Map or a bare map guarded by a mutex.
package balancer

import (
	"context"
	"strings"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/stonefire-oss/qrpc-core/connectivity"
	"github.com/stonefire-oss/qrpc-core/resolver"
	"github.com/stonefire-oss/qrpc-core/serviceconfig"
	"github.com/stonefire-oss/qrpc-core/status"
)

// SubConn is a load balancer's handle onto a single subchannel. It is
// implemented by the channel package; balancers never dial a
// transport directly.
type SubConn interface {
	// Connect requests the subchannel move out of IDLE (spec.md §4.6:
	// "All SubConns start in IDLE ... Balancers must call Connect").
	Connect()
	// UpdateAddresses swaps the address list backing this SubConn.
	UpdateAddresses(addrs []resolver.Address)
	// Shutdown releases the LB's reference on this SubConn.
	Shutdown()
	// State reports the SubConn's current connectivity state.
	State() connectivity.State
}

// NewSubConnOptions configures a SubConn at creation time.
//
// StateListener is delivered every connectivity transition for this
// specific SubConn. Routing state by per-SubConn listener rather than
// a single Balancer.UpdateSubConnState method means a child-wrapping
// policy (balancer/weighted, balancer/priority) never needs to
// intercept or re-dispatch SubConn state — the listener closure the
// innermost Balancer supplied at NewSubConn time already points at the
// right place, however deep the wrapping goes.
type NewSubConnOptions struct {
	HealthCheckEnabled bool
	StateListener      func(SubConnState)
}

// ClientConn is the balancer's view of its owning channel: the subset
// of channel.Channel a Balancer implementation may call.
type ClientConn interface {
	NewSubConn(addrs []resolver.Address, opts NewSubConnOptions) (SubConn, error)
	// UpdateState publishes a new (state, Picker) pair; the channel
	// drains its pick queue against the new Picker (spec.md §4.9).
	UpdateState(State)
	// ResolveNow asks the channel's resolver to re-resolve.
	ResolveNow()
}

// PickInfo carries the request-scoped facts a Picker may consult.
type PickInfo struct {
	FullMethod string
	Ctx        context.Context
}

// PickResult is the tagged union from spec.md §3 "Pick Result".
type PickResult struct {
	SubConn      SubConn
	OnCallStarted func()
	OnCallEnded   func(err error)

	// Queue is true for the QUEUE outcome: no SubConn, retry once the
	// picker is updated.
	Queue bool
	// Drop, when set alongside Status, is the DROP outcome: fail
	// immediately without ever attempting a pick again.
	Drop bool
	// Status carries either the TRANSIENT_FAILURE or DROP status.
	Status *status.Status
}

// ErrNoSubConnAvailable is a ready-made UNAVAILABLE status. The
// pickers in this module do not return it: they signal QUEUE through
// PickResult.Queue.
var ErrNoSubConnAvailable = status.New(status.Unavailable, "no SubConn is currently available")

// Picker is the function object from spec.md §2/§3: (request-info) ->
// {READY subchannel | QUEUE | TRANSIENT_FAILURE(status) | DROP(status)}.
type Picker interface {
	Pick(info PickInfo) PickResult
}

type PickerFunc func(info PickInfo) PickResult

func (f PickerFunc) Pick(info PickInfo) PickResult { return f(info) }

// State is the (connectivity state, Picker) pair a Balancer publishes.
type State struct {
	ConnectivityState connectivity.State
	Picker            Picker
}

// ClientConnState is what the resolving load balancer feeds down to
// the child Balancer on each resolver update (spec.md §4.8: "Push
// (endpoints, lbConfig, attributes) to the child").
type ClientConnState struct {
	Endpoints     []resolver.Endpoint
	BalancerConfig serviceconfig.LoadBalancingConfig
	Attributes    map[string]any
}

// SubConnState reports a SubConn's connectivity transition to its
// owning Balancer.
type SubConnState struct {
	ConnectivityState connectivity.State
	ConnectionError   error
}

// Balancer is the per-instance contract from spec.md §4.6:
// updateAddressList, exitIdle, resetBackoff, destroy. SubConn state is
// delivered out-of-band via the StateListener supplied to NewSubConn,
// not through this interface (see NewSubConnOptions).
type Balancer interface {
	UpdateClientConnState(ClientConnState) error
	ResolverError(error)
	ExitIdle()
	ResetBackoff()
	Close()
}

// Builder constructs a Balancer bound to one ClientConn.
type Builder interface {
	Build(cc ClientConn) Balancer
	Name() string
}

// ConfigParser is implemented by Builders whose policy carries a typed
// JSON config (spec.md §3 Service Config: methodConfig/
// loadBalancingConfig).
type ConfigParser interface {
	ParseConfig(json []byte) (serviceconfig.LoadBalancingConfig, error)
}

var (
	registryMu sync.Mutex
	registry   = iradix.New()
)

// Register adds b to the process-wide registry, keyed by its
// lower-cased Name(). Per spec.md §9, only call this during process
// startup (init functions); the registry is treated as immutable
// thereafter.
func Register(b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry, _, _ = registry.Insert([]byte(strings.ToLower(b.Name())), b)
}

// Get looks up a Builder by name, case-insensitively.
func Get(name string) Builder {
	v, ok := registry.Get([]byte(strings.ToLower(name)))
	if !ok {
		return nil
	}
	return v.(Builder)
}
