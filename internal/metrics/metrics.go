// Package metrics defines the prometheus collectors exported by trajstore.
// Collectors live on Registry rather than the global default registry so
// that embedding applications choose whether to expose them.
package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every trajstore collector.
var Registry = prometheus.NewRegistry()

// Statements counts statements executed by the gateway by kind (read,
// write) and outcome (ok, error).
var Statements = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trajstore",
		Name:      "statements_total",
		Help:      "Statements executed against the backend.",
	},
	[]string{"kind", "outcome"},
)

// Connections counts connection handles acquired by the gateway.
var Connections = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "trajstore",
		Name:      "connections_acquired_total",
		Help:      "Connection handles acquired from the pool.",
	},
)

// Lifecycle counts dataset lifecycle operations by operation (create,
// append, delete, load, unload) and outcome.
var Lifecycle = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trajstore",
		Name:      "dataset_operations_total",
		Help:      "Dataset lifecycle operations.",
	},
	[]string{"op", "outcome"},
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Outcome maps a success flag to an outcome label.
func Outcome(ok bool) string {
	if ok {
		return OutcomeOK
	}
	return OutcomeError
}

func init() {
	Registry.MustRegister(Statements, Connections, Lifecycle)
}

// Snapshot gathers Registry into a map keyed by metric name with its labels
// in exposition form, for example trajstore_statements_total{kind="read",outcome="ok"}.
func Snapshot() (map[string]float64, error) {
	families, err := Registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				parts := make([]string, len(labels))
				for i, l := range labels {
					parts[i] = l.GetName() + "=" + strconv.Quote(l.GetValue())
				}
				key += "{" + strings.Join(parts, ",") + "}"
			}
			out[key] = m.GetCounter().GetValue()
		}
	}
	return out, nil
}
