// Package metrics defines the recorder interface shared by the OpenTelemetry
// and Prometheus sinks, following the teacher's no-op/multi-recorder fan-out
// idiom so either, both, or neither can be wired at startup.
package metrics

import "time"

// Recorder defines the metrics this proxy emits.
type Recorder interface {
	// RecordRelayRequest records one forwarded request's outcome.
	RecordRelayRequest(startTime time.Time, appFamily, providerId, providerType, model string, success bool, isStreaming bool)

	// RecordRelayCost records the computed cost of a completed request.
	RecordRelayCost(appFamily, providerId, model string, costUSD float64)

	// RecordBreakerState records a circuit breaker's current state as a gauge (0=Closed, 1=HalfOpen, 2=Open).
	RecordBreakerState(providerId string, state int)

	// RecordBreakerTransition counts a state transition, e.g. "closed->open".
	RecordBreakerTransition(providerId, transition string)

	// RecordFailover counts a request that needed more than one provider attempt.
	RecordFailover(appFamily string)

	// RecordRectifierApplied counts a thinking-rectifier application.
	RecordRectifierApplied(appFamily string)

	// RecordError records a classified error from any component.
	RecordError(component, errorType string)
}

// GlobalRecorder holds the active metrics recorder implementation.
var GlobalRecorder Recorder

func init() {
	GlobalRecorder = &NoOpRecorder{}
}

// NoOpRecorder is a no-operation implementation for when metrics are disabled.
type NoOpRecorder struct{}

func (n *NoOpRecorder) RecordRelayRequest(time.Time, string, string, string, string, bool, bool) {}
func (n *NoOpRecorder) RecordRelayCost(string, string, string, float64)                          {}
func (n *NoOpRecorder) RecordBreakerState(string, int)                                           {}
func (n *NoOpRecorder) RecordBreakerTransition(string, string)                                   {}
func (n *NoOpRecorder) RecordFailover(string)                                                    {}
func (n *NoOpRecorder) RecordRectifierApplied(string)                                            {}
func (n *NoOpRecorder) RecordError(string, string)                                               {}

// MultiRecorder wraps multiple Recorder implementations, fanning every call out to each.
type MultiRecorder struct {
	Recorders []Recorder
}

func (m *MultiRecorder) RecordRelayRequest(startTime time.Time, appFamily, providerId, providerType, model string, success, isStreaming bool) {
	for _, r := range m.Recorders {
		r.RecordRelayRequest(startTime, appFamily, providerId, providerType, model, success, isStreaming)
	}
}

func (m *MultiRecorder) RecordRelayCost(appFamily, providerId, model string, costUSD float64) {
	for _, r := range m.Recorders {
		r.RecordRelayCost(appFamily, providerId, model, costUSD)
	}
}

func (m *MultiRecorder) RecordBreakerState(providerId string, state int) {
	for _, r := range m.Recorders {
		r.RecordBreakerState(providerId, state)
	}
}

func (m *MultiRecorder) RecordBreakerTransition(providerId, transition string) {
	for _, r := range m.Recorders {
		r.RecordBreakerTransition(providerId, transition)
	}
}

func (m *MultiRecorder) RecordFailover(appFamily string) {
	for _, r := range m.Recorders {
		r.RecordFailover(appFamily)
	}
}

func (m *MultiRecorder) RecordRectifierApplied(appFamily string) {
	for _, r := range m.Recorders {
		r.RecordRectifierApplied(appFamily)
	}
}

func (m *MultiRecorder) RecordError(component, errorType string) {
	for _, r := range m.Recorders {
		r.RecordError(component, errorType)
	}
}
