// Package otel adapts the proxy's metrics.Recorder interface onto OpenTelemetry metrics.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OtelRecorder implements metrics.Recorder using OpenTelemetry instruments.
type OtelRecorder struct {
	meter metric.Meter

	relayRequestDuration metric.Float64Histogram
	relayRequestsTotal   metric.Int64Counter
	relayCostTotal       metric.Float64Counter

	breakerState      metric.Int64Gauge
	breakerTransition metric.Int64Counter

	failoverTotal  metric.Int64Counter
	rectifierTotal metric.Int64Counter
	errorsTotal    metric.Int64Counter
}

// NewOtelRecorder registers the gateway's meter instruments.
func NewOtelRecorder() (*OtelRecorder, error) {
	meter := otel.Meter("cliproxy-gateway")
	r := &OtelRecorder{meter: meter}

	var err error
	if r.relayRequestDuration, err = meter.Float64Histogram("gateway_relay_request_duration_seconds",
		metric.WithDescription("Duration of forwarded requests, end to end")); err != nil {
		return nil, err
	}
	if r.relayRequestsTotal, err = meter.Int64Counter("gateway_relay_requests_total",
		metric.WithDescription("Total number of forwarded requests")); err != nil {
		return nil, err
	}
	if r.relayCostTotal, err = meter.Float64Counter("gateway_relay_cost_usd_total",
		metric.WithDescription("Total computed cost of forwarded requests, in USD")); err != nil {
		return nil, err
	}
	if r.breakerState, err = meter.Int64Gauge("gateway_breaker_state",
		metric.WithDescription("Per-provider circuit breaker state: 0=closed 1=half_open 2=open")); err != nil {
		return nil, err
	}
	if r.breakerTransition, err = meter.Int64Counter("gateway_breaker_transitions_total",
		metric.WithDescription("Total circuit breaker state transitions")); err != nil {
		return nil, err
	}
	if r.failoverTotal, err = meter.Int64Counter("gateway_failovers_total",
		metric.WithDescription("Total number of requests that required more than one provider attempt")); err != nil {
		return nil, err
	}
	if r.rectifierTotal, err = meter.Int64Counter("gateway_rectifier_applied_total",
		metric.WithDescription("Total number of thinking-rectifier applications")); err != nil {
		return nil, err
	}
	if r.errorsTotal, err = meter.Int64Counter("gateway_errors_total",
		metric.WithDescription("Total classified errors by component")); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *OtelRecorder) RecordRelayRequest(startTime time.Time, appFamily, providerId, providerType, model string, success, isStreaming bool) {
	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("app_family", appFamily),
		attribute.String("provider_id", providerId),
		attribute.String("provider_type", providerType),
		attribute.String("model", model),
		attribute.Bool("success", success),
		attribute.Bool("streaming", isStreaming),
	}
	r.relayRequestDuration.Record(ctx, time.Since(startTime).Seconds(), metric.WithAttributes(attrs...))
	r.relayRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (r *OtelRecorder) RecordRelayCost(appFamily, providerId, model string, costUSD float64) {
	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("app_family", appFamily),
		attribute.String("provider_id", providerId),
		attribute.String("model", model),
	}
	r.relayCostTotal.Add(ctx, costUSD, metric.WithAttributes(attrs...))
}

func (r *OtelRecorder) RecordBreakerState(providerId string, state int) {
	ctx := context.Background()
	r.breakerState.Record(ctx, int64(state), metric.WithAttributes(attribute.String("provider_id", providerId)))
}

func (r *OtelRecorder) RecordBreakerTransition(providerId, transition string) {
	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("provider_id", providerId),
		attribute.String("transition", transition),
	}
	r.breakerTransition.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (r *OtelRecorder) RecordFailover(appFamily string) {
	ctx := context.Background()
	r.failoverTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("app_family", appFamily)))
}

func (r *OtelRecorder) RecordRectifierApplied(appFamily string) {
	ctx := context.Background()
	r.rectifierTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("app_family", appFamily)))
}

func (r *OtelRecorder) RecordError(component, errorType string) {
	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("component", component),
		attribute.String("error_type", errorType),
	}
	r.errorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
