// Package xds names the interfaces the cds/eds/outlier-detection
// policies from spec.md §4.6 would implement against. The xDS
// control-plane data source itself (ADS stream, CDS/EDS responses) is
// explicitly out of scope per spec.md §1 ("the xDS control-plane data
// sources ... only their interfaces named"); no Builder in this
// package registers itself, and no resolver is registered for the
// xds scheme, so channel.Dial of an xds: target fails with UNAVAILABLE
// until an embedder registers a real control-plane integration.
package xds

import "github.com/stonefire-oss/qrpc-core/balancer"

// ClusterSource is the seam a real CDS/EDS integration would satisfy:
// given a cluster name, produce endpoint updates. It is declared here,
// unimplemented, so balancer/priority and balancer/weighted (which
// consume xDS-derived config, not xDS itself) have a stable type to
// depend on.
type ClusterSource interface {
	Watch(cluster string, update func(balancer.ClientConnState)) (cancel func())
}
