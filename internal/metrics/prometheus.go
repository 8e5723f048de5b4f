package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Ingestion metrics
	batchesTotal        *prometheus.CounterVec
	eventsEnqueuedTotal prometheus.Counter

	// Delivery metrics
	deliveryAttemptsTotal *prometheus.CounterVec
	deliveryOutcomesTotal *prometheus.CounterVec
	webhookDuration       prometheus.Histogram
	partnersSkippedTotal  prometheus.Counter

	// Queue runtime metrics
	jobsClaimedTotal prometheus.Counter
	jobOutcomesTotal *prometheus.CounterVec
	jobsInFlight     prometheus.Gauge

	// Maintenance metrics
	jobsRequeuedTotal prometheus.Counter
	jobsPurgedTotal   *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initIngestMetrics(reg)
	s.initDeliveryMetrics(reg)
	s.initQueueMetrics(reg)
	s.initMaintenanceMetrics(reg)
	return s
}

func (s *PrometheusSink) initIngestMetrics(reg prometheus.Registerer) {
	s.batchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookline_ingest_batches_total",
		Help: "Total number of event batches processed.",
	}, []string{"outcome"})
	s.eventsEnqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookline_ingest_events_enqueued_total",
		Help: "Total number of events durably enqueued.",
	})

	s.register(reg, s.batchesTotal, "hookline_ingest_batches_total")
	s.register(reg, s.eventsEnqueuedTotal, "hookline_ingest_events_enqueued_total")
}

func (s *PrometheusSink) initDeliveryMetrics(reg prometheus.Registerer) {
	s.deliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookline_delivery_attempts_total",
		Help: "Total number of webhook delivery attempts.",
	}, []string{"attempt", "status_class"})

	s.deliveryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookline_delivery_outcomes_total",
		Help: "Total number of final delivery outcomes per partner.",
	}, []string{"outcome"})

	s.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hookline_delivery_webhook_duration_seconds",
		Help:    "Webhook request latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.partnersSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookline_delivery_partners_skipped_total",
		Help: "Total number of partners skipped before dialing (inactive or missing webhook URL).",
	})

	s.register(reg, s.deliveryAttemptsTotal, "hookline_delivery_attempts_total")
	s.register(reg, s.deliveryOutcomesTotal, "hookline_delivery_outcomes_total")
	s.register(reg, s.webhookDuration, "hookline_delivery_webhook_duration_seconds")
	s.register(reg, s.partnersSkippedTotal, "hookline_delivery_partners_skipped_total")
}

func (s *PrometheusSink) initQueueMetrics(reg prometheus.Registerer) {
	s.jobsClaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookline_queue_jobs_claimed_total",
		Help: "Total number of jobs leased to worker slots.",
	})
	s.jobOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookline_queue_job_outcomes_total",
		Help: "Total number of job-level outcomes.",
	}, []string{"outcome"})
	s.jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hookline_queue_jobs_in_flight",
		Help: "Number of jobs currently being processed.",
	})

	s.register(reg, s.jobsClaimedTotal, "hookline_queue_jobs_claimed_total")
	s.register(reg, s.jobOutcomesTotal, "hookline_queue_job_outcomes_total")
	s.register(reg, s.jobsInFlight, "hookline_queue_jobs_in_flight")
}

func (s *PrometheusSink) initMaintenanceMetrics(reg prometheus.Registerer) {
	s.jobsRequeuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookline_reconciler_jobs_requeued_total",
		Help: "Total number of jobs recovered from expired leases.",
	})
	s.jobsPurgedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookline_janitor_jobs_purged_total",
		Help: "Total number of finished jobs deleted by retention.",
	}, []string{"status"})

	s.register(reg, s.jobsRequeuedTotal, "hookline_reconciler_jobs_requeued_total")
	s.register(reg, s.jobsPurgedTotal, "hookline_janitor_jobs_purged_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Ingestion metrics implementation

func (s *PrometheusSink) BatchProcessed(outcome string, size int) {
	s.batchesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) EventsEnqueued(n int) {
	s.eventsEnqueuedTotal.Add(float64(n))
}

// Delivery metrics implementation

func (s *PrometheusSink) DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration) {
	s.deliveryAttemptsTotal.WithLabelValues(strconv.Itoa(attempt), statusClass).Inc()
	s.webhookDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) DeliveryOutcome(outcome string) {
	s.deliveryOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) PartnersSkipped(n int) {
	s.partnersSkippedTotal.Add(float64(n))
}

// Queue runtime metrics implementation

func (s *PrometheusSink) JobsClaimed(count int) {
	s.jobsClaimedTotal.Add(float64(count))
}

func (s *PrometheusSink) JobOutcome(outcome string) {
	s.jobOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) JobsInFlightIncr() {
	s.jobsInFlight.Inc()
}

func (s *PrometheusSink) JobsInFlightDecr() {
	s.jobsInFlight.Dec()
}

// Maintenance metrics implementation

func (s *PrometheusSink) JobsRequeued(count int) {
	s.jobsRequeuedTotal.Add(float64(count))
}

func (s *PrometheusSink) JobsPurged(status string, count int) {
	s.jobsPurgedTotal.WithLabelValues(status).Add(float64(count))
}

var _ Sink = (*PrometheusSink)(nil)
