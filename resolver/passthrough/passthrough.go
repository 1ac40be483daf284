// Package passthrough implements the resolver for the passthrough,
// ipv4 and ipv6 target schemes (unix lives in resolver/unix): the
// target's endpoint is already
// a concrete address, so resolution is a single synchronous update
// with no ongoing work.
package passthrough

import (
	"github.com/stonefire-oss/qrpc-core/resolver"
)

func init() {
	resolver.Register(&builder{scheme: "passthrough"})
	resolver.Register(&builder{scheme: "ipv4"})
	resolver.Register(&builder{scheme: "ipv6"})
}

type builder struct {
	scheme string
}

func (b *builder) Scheme() string { return b.scheme }

func (b *builder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	addr := target.Endpoint()
	if addr == "" {
		addr = target.Authority()
	}
	err := cc.UpdateState(resolver.State{
		Endpoints: []resolver.Endpoint{{Addresses: []resolver.Address{{Addr: addr}}}},
	})
	if err != nil {
		cc.ReportError(err)
	}
	return &passthroughResolver{}, nil
}

type passthroughResolver struct{}

func (*passthroughResolver) ResolveNow() {}
func (*passthroughResolver) Close()      {}
