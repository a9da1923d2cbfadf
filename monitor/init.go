// Package monitor wires the configured metrics sinks into metrics.GlobalRecorder.
package monitor

import (
	"github.com/cliproxy/gateway/common/config"
	"github.com/cliproxy/gateway/common/metrics"
	"github.com/cliproxy/gateway/monitor/otel"
	"github.com/cliproxy/gateway/monitor/promsink"
)

// InitMonitoring builds metrics.GlobalRecorder from whichever sinks are enabled in config.
func InitMonitoring() error {
	var recorders []metrics.Recorder

	if config.EnablePrometheusMetrics {
		recorders = append(recorders, promsink.New())
	}

	if config.OpenTelemetryEnabled {
		otelRecorder, err := otel.NewOtelRecorder()
		if err != nil {
			return err
		}
		recorders = append(recorders, otelRecorder)
	}

	switch len(recorders) {
	case 0:
		metrics.GlobalRecorder = &metrics.NoOpRecorder{}
	case 1:
		metrics.GlobalRecorder = recorders[0]
	default:
		metrics.GlobalRecorder = &metrics.MultiRecorder{Recorders: recorders}
	}

	return nil
}
