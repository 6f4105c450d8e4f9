package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	connections     prometheus.Gauge
	messagesSent    *prometheus.CounterVec
	alertsTriggered *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	cycleDuration   prometheus.Histogram
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		connections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracker_active_connections",
				Help: "Current number of registered WebSocket connections",
			},
		),
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_messages_sent_total",
				Help: "Total number of messages delivered to clients",
			},
			[]string{"kind"},
		),
		alertsTriggered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_alerts_triggered_total",
				Help: "Total number of alerts that transitioned to triggered",
			},
			[]string{"symbol"},
		),
		rateLimited: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_rate_limited_total",
				Help: "Total number of rejected requests per limiter scope",
			},
			[]string{"scope"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tracker_last_price",
				Help: "Last observed price for a symbol",
			},
			[]string{"symbol"},
		),
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracker_update_cycle_duration_seconds",
				Help:    "Duration of one full update cycle in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordConnections records the current connection count.
func (r *Recorder) RecordConnections(n int) {
	r.connections.Set(float64(n))
}

// RecordMessageSent records one delivered client message.
func (r *Recorder) RecordMessageSent(kind string) {
	r.messagesSent.WithLabelValues(kind).Inc()
}

// RecordAlertTriggered records a triggered alert.
func (r *Recorder) RecordAlertTriggered(symbol string) {
	r.alertsTriggered.WithLabelValues(symbol).Inc()
}

// RecordRateLimited records a rejected request.
func (r *Recorder) RecordRateLimited(scope string) {
	r.rateLimited.WithLabelValues(scope).Inc()
}

// RecordCycleDuration records an update cycle duration in seconds.
func (r *Recorder) RecordCycleDuration(seconds float64) {
	r.cycleDuration.Observe(seconds)
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
