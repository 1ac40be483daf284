// Package dns implements the "dns" target scheme named in spec.md §6.
// It resolves A/AAAA records for the target's authority, and, when the
// authority carries a TXT record beginning with "grpc_config=",
// applies the service-config canary-selection algorithm from
// serviceconfig (spec.md §4.10) — but, per spec.md §1's Non-goals,
// "does not implement service-config fetching from DNS TXT records
// beyond the parsing/selection algorithm": the TXT lookup itself is a
// plain net.Resolver call, nothing more.
package dns

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/stonefire-oss/qrpc-core/resolver"
	"github.com/stonefire-oss/qrpc-core/serviceconfig"
)

const defaultResolutionInterval = 30 * time.Minute

func init() {
	resolver.Register(builder{})
}

type builder struct{}

func (builder) Scheme() string { return "dns" }

func (builder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	host, port, err := net.SplitHostPort(target.Endpoint())
	if err != nil {
		host, port = target.Endpoint(), "443"
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &dnsResolver{
		host:   host,
		port:   port,
		cc:     cc,
		ctx:    ctx,
		cancel: cancel,
		resolveNow: make(chan struct{}, 1),
	}
	go r.watcher()
	return r, nil
}

type dnsResolver struct {
	host, port string
	cc         resolver.ClientConn

	ctx        context.Context
	cancel     context.CancelFunc
	resolveNow chan struct{}

	mu sync.Mutex
}

func (r *dnsResolver) ResolveNow() {
	select {
	case r.resolveNow <- struct{}{}:
	default:
	}
}

func (r *dnsResolver) Close() { r.cancel() }

func (r *dnsResolver) watcher() {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.resolveNow:
		case <-t.C:
		}
		r.resolveOnce()
		t.Reset(defaultResolutionInterval)
	}
}

func (r *dnsResolver) resolveOnce() {
	addrs, err := net.DefaultResolver.LookupHost(r.ctx, r.host)
	if err != nil {
		r.cc.ReportError(err)
		return
	}

	var endpoints []resolver.Endpoint
	for _, a := range addrs {
		endpoints = append(endpoints, resolver.Endpoint{
			Addresses: []resolver.Address{{Addr: net.JoinHostPort(a, r.port)}},
		})
	}

	state := resolver.State{Endpoints: endpoints}
	if sc := r.lookupServiceConfig(); sc != nil {
		state.ServiceConfig = sc
	}

	if err := r.cc.UpdateState(state); err != nil {
		r.cc.ReportError(err)
	}
}

// lookupServiceConfig performs the TXT lookup + extraction + canary
// selection from spec.md §4.10. A failure here is non-fatal: the
// resolver still publishes addresses, per the Non-goals carve-out.
func (r *dnsResolver) lookupServiceConfig() *serviceconfig.Config {
	records, err := net.DefaultResolver.LookupTXT(r.ctx, r.host)
	if err != nil || len(records) == 0 {
		return nil
	}
	combined, ok := serviceconfig.ExtractTXTRecord(records)
	if !ok {
		return nil
	}
	raw, err := serviceconfig.SelectCanary([]byte(combined), rand.Float64)
	if err != nil {
		return nil
	}
	cfg, err := serviceconfig.Parse(raw)
	if err != nil {
		return nil
	}
	return cfg
}
