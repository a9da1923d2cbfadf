package model

import (
	"sync"
)

// ProxyStatus is the process-wide, per-app-family counters exposed via
// GET /status, per SPEC_FULL §3's supplementary data model. Writers hold
// the lock for short, non-suspending windows only (§5).
type ProxyStatus struct {
	mu sync.RWMutex

	CurrentProviderId   string
	CurrentProviderName string
	AppFamily           AppFamily
	TotalRequests       int64
	SuccessRequests     int64
	FailedRequests      int64
	SuccessRate         float64
	FailoverCount       int64
	LastRequestAt       int64
	LastError           string
}

// StatusSnapshot is an immutable copy of ProxyStatus, safe to serialize.
type StatusSnapshot struct {
	CurrentProviderId   string    `json:"current_provider_id"`
	CurrentProviderName string    `json:"current_provider_name"`
	AppFamily           AppFamily `json:"app_family"`
	TotalRequests       int64     `json:"total_requests"`
	SuccessRequests     int64     `json:"success_requests"`
	FailedRequests      int64     `json:"failed_requests"`
	SuccessRate         float64   `json:"success_rate"`
	FailoverCount       int64     `json:"failover_count"`
	LastRequestAt       int64     `json:"last_request_at"`
	LastError           string    `json:"last_error"`
}

// BeginAttempt stamps the current provider and request counters at the
// start of one forwarder attempt, per §4.10 step 2.
func (s *ProxyStatus) BeginAttempt(appType AppFamily, providerId, providerName string, failoverHappened bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppFamily = appType
	s.CurrentProviderId = providerId
	s.CurrentProviderName = providerName
	s.TotalRequests++
	s.LastRequestAt = NowUnix()
	if failoverHappened {
		s.FailoverCount++
	}
}

// RecordSuccess updates the success counters and recomputes success_rate.
func (s *ProxyStatus) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SuccessRequests++
	s.recomputeSuccessRateLocked()
}

// RecordFailure updates the failure counters, records the error text, and
// recomputes success_rate.
func (s *ProxyStatus) RecordFailure(errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailedRequests++
	s.LastError = errMsg
	s.recomputeSuccessRateLocked()
}

func (s *ProxyStatus) recomputeSuccessRateLocked() {
	total := s.SuccessRequests + s.FailedRequests
	if total == 0 {
		s.SuccessRate = 0
		return
	}
	s.SuccessRate = float64(s.SuccessRequests) / float64(total) * 100
}

// Snapshot returns an immutable copy for serialization.
func (s *ProxyStatus) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatusSnapshot{
		CurrentProviderId:   s.CurrentProviderId,
		CurrentProviderName: s.CurrentProviderName,
		AppFamily:           s.AppFamily,
		TotalRequests:       s.TotalRequests,
		SuccessRequests:     s.SuccessRequests,
		FailedRequests:      s.FailedRequests,
		SuccessRate:         s.SuccessRate,
		FailoverCount:       s.FailoverCount,
		LastRequestAt:       s.LastRequestAt,
		LastError:           s.LastError,
	}
}

// StatusRegistry holds one ProxyStatus per app family.
type StatusRegistry struct {
	mu       sync.RWMutex
	statuses map[AppFamily]*ProxyStatus
}

// NewStatusRegistry constructs an empty registry.
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{statuses: make(map[AppFamily]*ProxyStatus)}
}

// Get lazily creates and returns the ProxyStatus for appType.
func (r *StatusRegistry) Get(appType AppFamily) *ProxyStatus {
	r.mu.RLock()
	s, ok := r.statuses[appType]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.statuses[appType]; ok {
		return s
	}
	s = &ProxyStatus{AppFamily: appType}
	r.statuses[appType] = s
	return s
}

// Snapshot returns every known app family's status snapshot.
func (r *StatusRegistry) Snapshot() map[AppFamily]StatusSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[AppFamily]StatusSnapshot, len(r.statuses))
	for k, v := range r.statuses {
		out[k] = v.Snapshot()
	}
	return out
}
