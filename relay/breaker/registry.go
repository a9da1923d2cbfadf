package breaker

import (
	"sync"

	"github.com/cliproxy/gateway/common/metrics"
	"github.com/cliproxy/gateway/relay/model"
)

// Registry owns one Breaker per provider id, created lazily on first
// admission and kept in process memory; it is recreated on restart
// (breaker state is not persisted). The forwarder holds a reference to the
// registry rather than breakers holding back-references to anything else.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults model.CircuitBreakerConfig
}

// NewRegistry constructs a registry that lazily creates breakers with defaultCfg.
func NewRegistry(defaultCfg model.CircuitBreakerConfig) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaultCfg,
	}
}

// Get returns the breaker for providerId, creating one with the registry's
// default configuration on first access.
func (r *Registry) Get(providerId string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[providerId]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[providerId]; ok {
		return b
	}
	b = New(r.defaults)
	r.breakers[providerId] = b
	return b
}

// Snapshot returns every known provider id's breaker snapshot, for the
// GET /debug/breakers endpoint.
func (r *Registry) Snapshot() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.breakers))
	for id, b := range r.breakers {
		out[id] = b.Snapshot()
	}
	return out
}

// RecordStateMetrics publishes every known breaker's current state as a gauge,
// intended to be called periodically or after each transition-relevant call.
func (r *Registry) RecordStateMetrics() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, b := range r.breakers {
		// The gauge encodes 0=Closed, 1=HalfOpen, 2=Open, which is not the
		// order of the State constants.
		gauge := 0
		switch b.Snapshot().State {
		case HalfOpen:
			gauge = 1
		case Open:
			gauge = 2
		}
		metrics.GlobalRecorder.RecordBreakerState(id, gauge)
	}
}
