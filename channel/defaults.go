package channel

// Registering the two mandatory balancing policies here (rather than
// requiring every importer to blank-import them) matches how the
// teacher's server.go bakes in its own defaults (defaultServerOptions)
// instead of leaving them to caller wiring.
import (
	_ "github.com/stonefire-oss/qrpc-core/balancer/pickfirst"
	_ "github.com/stonefire-oss/qrpc-core/balancer/roundrobin"
	_ "github.com/stonefire-oss/qrpc-core/resolver/dns"
	_ "github.com/stonefire-oss/qrpc-core/resolver/passthrough"
	_ "github.com/stonefire-oss/qrpc-core/resolver/unix"
)
