// Package metrics holds the Prometheus collectors for pricing traffic and snapshot emission.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PricingRequests counts pricing engine calls by request shape and outcome
	PricingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easyquote_pricing_requests_total",
			Help: "Pricing engine requests by shape and outcome",
		},
		[]string{"shape", "outcome"},
	)

	// PricingLatency observes pricing engine round trips
	PricingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "easyquote_pricing_request_seconds",
			Help:    "Pricing engine request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"shape"},
	)

	// SnapshotEmissions counts snapshot offers by result (emitted, unchanged, suppressed)
	SnapshotEmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easyquote_snapshot_emissions_total",
			Help: "Line item snapshot offers by result",
		},
		[]string{"result"},
	)

	// ReconciledPrompts counts prompts seen by the identifier reconciler
	ReconciledPrompts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easyquote_reconciled_prompts_total",
			Help: "Prompts re-keyed or dropped during identifier reconciliation",
		},
		[]string{"result"},
	)

	// BatchCycles counts multi-quantity cycles by outcome
	BatchCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easyquote_batch_cycles_total",
			Help: "Multi-quantity batch cycles by outcome",
		},
		[]string{"outcome"},
	)
)

// Register registers every collector with reg
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		PricingRequests,
		PricingLatency,
		SnapshotEmissions,
		ReconciledPrompts,
		BatchCycles,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// Serve exposes /metrics on addr in the background. It returns the server so callers can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go srv.ListenAndServe()
	return srv
}

// ObservePricing records one pricing request
func ObservePricing(shape string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	PricingRequests.WithLabelValues(shape, outcome).Inc()
	PricingLatency.WithLabelValues(shape).Observe(time.Since(started).Seconds())
}
