// Package unix implements the "unix" target scheme from spec.md §6:
// the endpoint names a filesystem path for a Unix domain socket.
package unix

import (
	"github.com/stonefire-oss/qrpc-core/resolver"
)

func init() {
	resolver.Register(builder{})
}

type builder struct{}

func (builder) Scheme() string { return "unix" }

func (builder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	path := target.Endpoint()
	if path == "" {
		path = target.Authority()
	}
	err := cc.UpdateState(resolver.State{
		Endpoints: []resolver.Endpoint{{
			Addresses: []resolver.Address{{
				Addr:       path,
				Attributes: map[string]any{"network": "unix"},
			}},
		}},
	})
	if err != nil {
		cc.ReportError(err)
	}
	return unixResolver{}, nil
}

type unixResolver struct{}

func (unixResolver) ResolveNow() {}
func (unixResolver) Close()      {}
