// Package metrics exposes the Prometheus gauges/counters named in the
// supplemented ambient stack (SPEC_FULL.md §C): outbound queue depth,
// dedup-cache hits, draft FCFS races, admission rejects, and delivery
// retries. Grounded on the teacher pack's own Prometheus usage
// (orbas1-Synnergy/synnergy-network/core/system_health_logging.go), which
// builds a private *prometheus.Registry and serves it via promhttp rather
// than using the global DefaultRegisterer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the metrics a single service process exposes.
type Registry struct {
	registry *prometheus.Registry

	// Coordinator
	EventCacheSize     *prometheus.GaugeVec
	DraftFCFSConflicts prometheus.Counter
	DraftsPending      prometheus.Gauge

	// Relay
	OutboundQueueDepth *prometheus.GaugeVec
	DedupCacheHits     prometheus.Counter
	DeliveryRetries    *prometheus.CounterVec
	DeliveriesSent     *prometheus.CounterVec

	// Solver
	AdmissionRejects *prometheus.CounterVec
	DraftsFulfilled  prometheus.Counter
}

// New builds a Registry with every gauge/counter registered and ready to
// record.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		EventCacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "settlement_event_cache_size",
			Help: "Number of records held in the coordinator's event cache, by stream.",
		}, []string{"stream"}),
		DraftFCFSConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_draft_fcfs_conflicts_total",
			Help: "Total SubmitSignature calls rejected because another solver already won the draft.",
		}),
		DraftsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "settlement_drafts_pending",
			Help: "Number of drafts currently in Pending status.",
		}),
		OutboundQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "settlement_relay_outbound_queue_depth",
			Help: "Number of outbox entries queued for delivery, by destination chain.",
		}, []string{"dst_chain"}),
		DedupCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_relay_dedup_cache_hits_total",
			Help: "Total deliveries skipped because their dedup_key was already seen.",
		}),
		DeliveryRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_relay_delivery_retries_total",
			Help: "Total retry attempts, by destination chain.",
		}, []string{"dst_chain"}),
		DeliveriesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_relay_deliveries_sent_total",
			Help: "Total successful deliveries, by destination chain.",
		}, []string{"dst_chain"}),
		AdmissionRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_solver_admission_rejects_total",
			Help: "Total drafts rejected by the solver's liquidity admission check, by asset.",
		}, []string{"asset"}),
		DraftsFulfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_solver_drafts_fulfilled_total",
			Help: "Total drafts the solver carried through to on-chain fulfillment.",
		}),
	}

	reg.MustRegister(
		r.EventCacheSize,
		r.DraftFCFSConflicts,
		r.DraftsPending,
		r.OutboundQueueDepth,
		r.DedupCacheHits,
		r.DeliveryRetries,
		r.DeliveriesSent,
		r.AdmissionRejects,
		r.DraftsFulfilled,
	)

	return r
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
