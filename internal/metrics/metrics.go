// Package metrics exposes Prometheus counters for the mutation protocol
// and the /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Mutations counts protocol operations by kind, op, and outcome.
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_mutations_total",
		Help: "Resource mutations by kind, operation, and outcome.",
	}, []string{"kind", "op", "outcome"})

	// LimitRejections counts creates rejected by the usage ledger.
	LimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_limit_rejections_total",
		Help: "Creates rejected because the plan limit was reached.",
	}, []string{"kind"})

	// UndoRestores counts successful undo restores.
	UndoRestores = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_undo_restores_total",
		Help: "Deletions restored through the undo window.",
	}, []string{"kind"})
)

const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
