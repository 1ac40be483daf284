// Package priority implements the priority child-wrapping policy from
// spec.md §4.6: a list of children in priority order, using the
// highest-priority child that is not in TRANSIENT_FAILURE.
package priority

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/stonefire-oss/qrpc-core/balancer"
	"github.com/stonefire-oss/qrpc-core/connectivity"
	"github.com/stonefire-oss/qrpc-core/serviceconfig"
)

const Name = "priority_experimental"

func init() {
	balancer.Register(builder{})
}

type builder struct{}

func (builder) Name() string { return Name }

func (builder) Build(cc balancer.ClientConn) balancer.Balancer {
	return &priorityBalancer{ownerCC: cc}
}

// Config lists child policies in descending priority order.
type Config struct {
	Priorities []string `json:"priorities"`
	ChildPolicy string  `json:"childPolicy"`
}

func (builder) ParseConfig(raw []byte) (serviceconfig.LoadBalancingConfig, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("priority: invalid config: %w", err)
	}
	if len(c.Priorities) == 0 {
		return nil, fmt.Errorf("priority: priorities must be non-empty")
	}
	return &c, nil
}

type prioChild struct {
	bal   balancer.Balancer
	state connectivity.State
}

type priorityBalancer struct {
	mu       sync.Mutex
	ownerCC  balancer.ClientConn
	cfg      *Config
	children map[string]*prioChild
	current  string
}

func (b *priorityBalancer) UpdateClientConnState(s balancer.ClientConnState) error {
	cfg, _ := s.BalancerConfig.(*Config)
	if cfg == nil {
		return fmt.Errorf("priority: missing config")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
	if b.children == nil {
		b.children = map[string]*prioChild{}
	}

	bd := balancer.Get(cfg.ChildPolicy)
	if bd == nil {
		return fmt.Errorf("priority: unregistered child policy %q", cfg.ChildPolicy)
	}

	for _, name := range cfg.Priorities {
		c, ok := b.children[name]
		if !ok {
			helper := &priorityClientConn{ClientConn: b.ownerCC, owner: b, name: name}
			c = &prioChild{bal: bd.Build(helper), state: connectivity.Idle}
			b.children[name] = c
		}
		child := s
		child.BalancerConfig = nil
		if err := c.bal.UpdateClientConnState(child); err != nil {
			return err
		}
	}
	b.publishLocked()
	return nil
}

func (b *priorityBalancer) publishLocked() {
	for _, name := range b.cfg.Priorities {
		c := b.children[name]
		if c == nil {
			continue
		}
		if c.state == connectivity.Ready || c.state == connectivity.Connecting || c.state == connectivity.Idle {
			b.current = name
			return
		}
	}
	if len(b.cfg.Priorities) > 0 {
		b.current = b.cfg.Priorities[len(b.cfg.Priorities)-1]
	}
}

func (b *priorityBalancer) ResolverError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.children {
		c.bal.ResolverError(err)
	}
}

func (b *priorityBalancer) ExitIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.children {
		c.bal.ExitIdle()
	}
}

func (b *priorityBalancer) ResetBackoff() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.children {
		c.bal.ResetBackoff()
	}
}

func (b *priorityBalancer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.children {
		c.bal.Close()
	}
}

// priorityClientConn is the per-child control helper: it records the
// child's published connectivity state, then forwards to the owning
// balancer only when that child is the currently-selected priority
// (spec.md §4.6: "Updates from the child's control helper are proxied
// upward").
type priorityClientConn struct {
	balancer.ClientConn
	owner *priorityBalancer
	name  string
}

func (h *priorityClientConn) UpdateState(s balancer.State) {
	h.owner.mu.Lock()
	if c, ok := h.owner.children[h.name]; ok {
		c.state = s.ConnectivityState
	}
	h.owner.publishLocked()
	isCurrent := h.owner.current == h.name
	h.owner.mu.Unlock()

	if isCurrent {
		h.ClientConn.UpdateState(s)
	}
}
