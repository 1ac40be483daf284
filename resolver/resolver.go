// Package resolver turns a target URI into endpoint-list/service-config
// updates, per spec.md §2/§4.9/§6. Concrete scheme implementations
// live in resolver/dns, resolver/passthrough and resolver/unix;
// resolver/xds is named in spec.md as an external collaborator and is
// represented here only by the Builder/Resolver interfaces it must
// satisfy.
package resolver

import (
	"net/url"
	"strings"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/stonefire-oss/qrpc-core/serviceconfig"
)

// Address is one concrete network address within an Endpoint.
type Address struct {
	Addr       string
	Attributes map[string]any
}

// Endpoint is an ordered list of addresses considered equivalent for
// one logical backend (spec.md GLOSSARY).
type Endpoint struct {
	Addresses  []Address
	Attributes map[string]any
}

// ConfigSelector lets a resolver influence per-call routing/config
// beyond plain service-config method matching (e.g. an xDS RouteConfig
// adapter). Out of scope implementations are represented only by this
// interface per spec.md §1.
type ConfigSelector interface {
	SelectConfig(fullMethod string) (*serviceconfig.MethodConfig, error)
}

// State is one resolver update.
type State struct {
	Endpoints      []Endpoint
	ServiceConfig  *serviceconfig.Config
	ConfigSelector ConfigSelector
	Attributes     map[string]any
}

// ClientConn is the resolver's view of its owning ResolvingLoadBalancer.
type ClientConn interface {
	UpdateState(State) error
	ReportError(error)
}

// Target is the parsed form of the "scheme:[//authority/]path" URI
// from spec.md §6.
type Target struct {
	URL url.URL
}

func (t Target) Scheme() string    { return t.URL.Scheme }
func (t Target) Authority() string { return t.URL.Host }
func (t Target) Endpoint() string  { return strings.TrimPrefix(t.URL.Path, "/") }

// ParseTarget parses a target URI into its scheme/authority/path.
func ParseTarget(target string) (Target, error) {
	u, err := url.Parse(target)
	if err != nil {
		return Target{}, err
	}
	return Target{URL: *u}, nil
}

// BuildOptions configures resolver construction.
type BuildOptions struct{}

// Resolver is the per-target instance contract.
type Resolver interface {
	ResolveNow()
	Close()
}

// Builder constructs a Resolver for one target, bound to a ClientConn.
type Builder interface {
	Build(target Target, cc ClientConn, opts BuildOptions) (Resolver, error)
	Scheme() string
}

var (
	registryMu sync.Mutex
	registry   = iradix.New()
	defaultScm string
)

// Register adds b to the process-wide scheme registry (spec.md §9:
// populated once at startup, immutable thereafter).
func Register(b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry, _, _ = registry.Insert([]byte(strings.ToLower(b.Scheme())), b)
}

// Get looks up a Builder by scheme, case-insensitively.
func Get(scheme string) Builder {
	v, ok := registry.Get([]byte(strings.ToLower(scheme)))
	if !ok {
		return nil
	}
	return v.(Builder)
}

// SetDefaultScheme designates the scheme used for targets with no
// scheme prefix at all.
func SetDefaultScheme(scheme string) { defaultScm = scheme }

func DefaultScheme() string {
	if defaultScm == "" {
		return "passthrough"
	}
	return defaultScm
}
