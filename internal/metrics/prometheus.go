package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all portal metrics.
type Registry struct {
	gatherer prometheus.Gatherer

	// Reconciliation
	ReconcileOperations *prometheus.CounterVec
	ReconcileFailures   *prometheus.CounterVec
	ReconcileDuration   *prometheus.HistogramVec

	// VLAN allocation
	VlanAllocations *prometheus.CounterVec
	VlanConflicts   prometheus.Counter
	VlanReleases    *prometheus.CounterVec

	// Fabric clients
	FabricRequests *prometheus.CounterVec
	FabricLatency  *prometheus.HistogramVec

	// Store
	TransactionsTotal *prometheus.CounterVec
}

// NewRegistry registers the portal metrics on reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func NewRegistry(reg *prometheus.Registry) *Registry {
	r := &Registry{
		gatherer: reg,
		ReconcileOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_reconcile_operations_total",
				Help: "Fabric mutations issued by reconciliation",
			},
			[]string{"kind", "op"},
		),
		ReconcileFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_reconcile_failures_total",
				Help: "Reconciliations that returned an error",
			},
			[]string{"kind", "phase"},
		),
		ReconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_reconcile_duration_seconds",
				Help:    "Time spent in a reconciliation call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		VlanAllocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_vlan_allocations_total",
				Help: "VLAN allocation attempts by result",
			},
			[]string{"result"},
		),
		VlanConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_vlan_conflicts_total",
				Help: "VLAN candidates rejected as already in use",
			},
		),
		VlanReleases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_vlan_releases_total",
				Help: "VLAN releases by result",
			},
			[]string{"result"},
		),
		FabricRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_fabric_requests_total",
				Help: "Requests sent to fabric services",
			},
			[]string{"service", "method", "code"},
		),
		FabricLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_fabric_request_duration_seconds",
				Help:    "Fabric request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method"},
		),
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_db_transactions_total",
				Help: "Database transactions by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		r.ReconcileOperations,
		r.ReconcileFailures,
		r.ReconcileDuration,
		r.VlanAllocations,
		r.VlanConflicts,
		r.VlanReleases,
		r.FabricRequests,
		r.FabricLatency,
		r.TransactionsTotal,
	)
	return r
}

// Nop returns a registry that is never exposed.
func Nop() *Registry {
	return NewRegistry(prometheus.NewRegistry())
}

// ObserveReconcile records the duration of one reconciliation of kind.
func (r *Registry) ObserveReconcile(kind string, start time.Time) {
	r.ReconcileDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveFabric records one fabric request. code is the HTTP status, or
// "error" when no response arrived.
func (r *Registry) ObserveFabric(service, method, code string, start time.Time) {
	r.FabricRequests.WithLabelValues(service, method, code).Inc()
	r.FabricLatency.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
