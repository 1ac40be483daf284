// Package weighted implements the weighted child-wrapping policy
// named in spec.md §4.6 ("weighted ... child-wrapping policies
// consuming the xDS-derived config; they do not implement transport
// themselves, only policy composition"). It swaps its child balancer
// in place when the configured child *type* changes, and otherwise
// forwards updates straight through, per the "Child-handler pattern"
// design note in spec.md §4.6.
package weighted

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/stonefire-oss/qrpc-core/balancer"
	"github.com/stonefire-oss/qrpc-core/serviceconfig"
)

const Name = "weighted_target_experimental"

func init() {
	balancer.Register(builder{})
}

type builder struct{}

func (builder) Name() string { return Name }

func (builder) Build(cc balancer.ClientConn) balancer.Balancer {
	return &weightedBalancer{ownerCC: cc}
}

// Config names the wrapped child policy and its weight; parsed by
// ParseConfig from the loadBalancingConfig JSON blob.
type Config struct {
	ChildPolicy string          `json:"childPolicy"`
	Weight      int             `json:"weight"`
	RawChild    json.RawMessage `json:"childConfig,omitempty"`
}

func (builder) ParseConfig(raw []byte) (serviceconfig.LoadBalancingConfig, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("weighted: invalid config: %w", err)
	}
	if c.ChildPolicy == "" {
		return nil, fmt.Errorf("weighted: childPolicy is required")
	}
	return &c, nil
}

type weightedBalancer struct {
	mu          sync.Mutex
	ownerCC     balancer.ClientConn
	childType   string
	child       balancer.Balancer
	childHelper *forwardingClientConn
}

func (b *weightedBalancer) UpdateClientConnState(s balancer.ClientConnState) error {
	cfg, _ := s.BalancerConfig.(*Config)
	if cfg == nil {
		return fmt.Errorf("weighted: missing config")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.child == nil || b.childType != cfg.ChildPolicy {
		if b.child != nil {
			b.child.Close()
		}
		bd := balancer.Get(cfg.ChildPolicy)
		if bd == nil {
			return fmt.Errorf("weighted: unregistered child policy %q", cfg.ChildPolicy)
		}
		b.childHelper = &forwardingClientConn{ClientConn: b.ownerCC}
		b.child = bd.Build(b.childHelper)
		b.childType = cfg.ChildPolicy
	}

	child := s
	child.BalancerConfig = nil
	return b.child.UpdateClientConnState(child)
}

func (b *weightedBalancer) ResolverError(err error) {
	b.mu.Lock()
	child := b.child
	b.mu.Unlock()
	if child != nil {
		child.ResolverError(err)
	}
}

func (b *weightedBalancer) ExitIdle() {
	b.mu.Lock()
	child := b.child
	b.mu.Unlock()
	if child != nil {
		child.ExitIdle()
	}
}

func (b *weightedBalancer) ResetBackoff() {
	b.mu.Lock()
	child := b.child
	b.mu.Unlock()
	if child != nil {
		child.ResetBackoff()
	}
}

func (b *weightedBalancer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.child != nil {
		b.child.Close()
		b.child = nil
	}
}

// forwardingClientConn proxies the child's control-helper calls
// upward, unmodified — the "Updates from the child's control helper
// are proxied upward" rule from spec.md §4.6.
type forwardingClientConn struct {
	balancer.ClientConn
}
