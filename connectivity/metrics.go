package connectivity

import (
	gmetrics "github.com/hashicorp/go-metrics"
)

// ReportTransition emits a state-transition counter and a gauge
// snapshot of the current state, in the label-path style the teacher's
// memberlist/serf code uses go-metrics in (e.g.
// metrics.IncrCounter([]string{"memberlist", "msg", "alive"}, 1)).
// component identifies what is transitioning ("channel" or
// "subchannel"); callers pass their own stable label (e.g. target or
// address) as the second path element.
func ReportTransition(component, label string, from, to State) {
	gmetrics.IncrCounter([]string{"qrpc", component, "transition", to.String()}, 1)
	gmetrics.SetGauge([]string{"qrpc", component, "state", label}, float32(to))
	_ = from // transition direction isn't counted separately; only the destination state is
}
