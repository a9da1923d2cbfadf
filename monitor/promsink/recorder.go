// Package promsink adapts the proxy's metrics.Recorder interface onto
// github.com/prometheus/client_golang, registered against the default
// registry and exposed at GET /metrics alongside the OTel recorder.
package promsink

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements metrics.Recorder using client_golang collectors.
type PrometheusRecorder struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	costTotal       *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	failovers       *prometheus.CounterVec
	rectifierTotal  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
}

// New registers and returns the gateway's Prometheus collectors.
func New() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gateway_relay_request_duration_seconds",
			Help: "Duration of forwarded requests, end to end",
		}, []string{"app_family", "provider_id", "provider_type", "model", "success", "streaming"}),
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_relay_requests_total",
			Help: "Total number of forwarded requests",
		}, []string{"app_family", "provider_id", "provider_type", "model", "success", "streaming"}),
		costTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_relay_cost_usd_total",
			Help: "Total computed cost of forwarded requests, in USD",
		}, []string{"app_family", "provider_id", "model"}),
		breakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_breaker_state",
			Help: "Per-provider circuit breaker state: 0=closed 1=half_open 2=open",
		}, []string{"provider_id"}),
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		}, []string{"provider_id", "transition"}),
		failovers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_failovers_total",
			Help: "Total number of requests that required more than one provider attempt",
		}, []string{"app_family"}),
		rectifierTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rectifier_applied_total",
			Help: "Total number of thinking-rectifier applications",
		}, []string{"app_family"}),
		errorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "Total classified errors by component",
		}, []string{"component", "error_type"}),
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (r *PrometheusRecorder) RecordRelayRequest(startTime time.Time, appFamily, providerId, providerType, model string, success, isStreaming bool) {
	labels := prometheus.Labels{
		"app_family":    appFamily,
		"provider_id":   providerId,
		"provider_type": providerType,
		"model":         model,
		"success":       boolLabel(success),
		"streaming":     boolLabel(isStreaming),
	}
	r.requestDuration.With(labels).Observe(time.Since(startTime).Seconds())
	r.requestsTotal.With(labels).Inc()
}

func (r *PrometheusRecorder) RecordRelayCost(appFamily, providerId, model string, costUSD float64) {
	r.costTotal.With(prometheus.Labels{"app_family": appFamily, "provider_id": providerId, "model": model}).Add(costUSD)
}

func (r *PrometheusRecorder) RecordBreakerState(providerId string, state int) {
	r.breakerState.With(prometheus.Labels{"provider_id": providerId}).Set(float64(state))
}

func (r *PrometheusRecorder) RecordBreakerTransition(providerId, transition string) {
	r.transitions.With(prometheus.Labels{"provider_id": providerId, "transition": transition}).Inc()
}

func (r *PrometheusRecorder) RecordFailover(appFamily string) {
	r.failovers.With(prometheus.Labels{"app_family": appFamily}).Inc()
}

func (r *PrometheusRecorder) RecordRectifierApplied(appFamily string) {
	r.rectifierTotal.With(prometheus.Labels{"app_family": appFamily}).Inc()
}

func (r *PrometheusRecorder) RecordError(component, errorType string) {
	r.errorsTotal.With(prometheus.Labels{"component": component, "error_type": errorType}).Inc()
}
