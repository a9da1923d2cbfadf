package controller

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cliproxy/gateway/common/ctxkey"
	"github.com/cliproxy/gateway/relay/adaptor"
	"github.com/cliproxy/gateway/relay/billing"
	"github.com/cliproxy/gateway/relay/breaker"
	"github.com/cliproxy/gateway/relay/forwarder"
	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/pricing"
	"github.com/cliproxy/gateway/relay/routing"
)

// fakeAdapter is a minimal adaptor.Adapter that always targets baseURL and
// whose NeedsTransform result is the needsTransform field.
type fakeAdapter struct {
	baseURL        string
	needsTransform bool
}

func (f *fakeAdapter) Name() string { return "fake" }
func (f *fakeAdapter) ExtractBaseURL(model.Provider) (string, error) { return f.baseURL, nil }
func (f *fakeAdapter) ExtractAuth(model.Provider) (model.AuthInfo, error) {
	return model.AuthInfo{Strategy: model.AuthStrategyBearer, APIKey: "test-key"}, nil
}
func (f *fakeAdapter) BuildURL(base, endpoint string) string { return base + endpoint }
func (f *fakeAdapter) AddAuthHeaders(req *http.Request, auth model.AuthInfo) {
	req.Header.Set("Authorization", "Bearer "+auth.APIKey)
}
func (f *fakeAdapter) NeedsTransform(model.Provider) bool { return f.needsTransform }

type fakeProviderStore struct {
	providers []model.Provider
}

func (s *fakeProviderStore) List(ctx context.Context, appType model.AppFamily) ([]model.Provider, error) {
	return s.providers, nil
}
func (s *fakeProviderStore) Current(ctx context.Context, appType model.AppFamily) (string, error) {
	if len(s.providers) == 0 {
		return "", nil
	}
	return s.providers[0].ID, nil
}
func (s *fakeProviderStore) FailoverQueue(ctx context.Context, appType model.AppFamily) ([]string, error) {
	ids := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		ids = append(ids, p.ID)
	}
	return ids, nil
}
func (s *fakeProviderStore) GetProvider(ctx context.Context, appType model.AppFamily, id string) (model.Provider, bool, error) {
	for _, p := range s.providers {
		if p.ID == id {
			return p, true, nil
		}
	}
	return model.Provider{}, false, nil
}
func (s *fakeProviderStore) UpdateHealth(ctx context.Context, appType model.AppFamily, id string, ok bool, errMsg string) {
}
func (s *fakeProviderStore) GetModelPricing(ctx context.Context, modelID string) (model.PricingRow, bool, error) {
	return model.PricingRow{}, false, nil
}
func (s *fakeProviderStore) ResolveCostMultiplier(ctx context.Context, providerId string, appType model.AppFamily) (decimal.Decimal, string, error) {
	return decimal.NewFromInt(1), "request", nil
}

type fakeLogStore struct {
	rows []model.RequestLog
}

func (s *fakeLogStore) Append(ctx context.Context, entry model.RequestLog) error {
	s.rows = append(s.rows, entry)
	return nil
}
func (s *fakeLogStore) List(ctx context.Context, filter model.RequestLogFilter) ([]model.RequestLog, error) {
	return s.rows, nil
}
func (s *fakeLogStore) Backfill(ctx context.Context, rows []model.RequestLog) ([]model.RequestLog, error) {
	return rows, nil
}

// newTestDeps wires a Deps instance against a single fake provider whose
// base URL points at upstream, for handler-level tests that don't need a
// real sqlite store or breaker tuning.
func newTestDeps(t *testing.T, appType model.AppFamily, upstream *httptest.Server, needsTransform bool) (*Deps, *fakeLogStore) {
	t.Helper()
	provider := model.Provider{ID: "p1", Name: "test-provider", InFailoverQueue: true}
	ps := &fakeProviderStore{providers: []model.Provider{provider}}
	breakers := breaker.NewRegistry(model.CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, TimeoutSeconds: 30, ErrorRateThreshold: 0.6, MinRequests: 10})
	router := routing.New(ps, breakers)
	status := model.NewStatusRegistry()
	adapters := map[model.AppFamily]adaptor.Adapter{
		appType: &fakeAdapter{baseURL: upstream.URL, needsTransform: needsTransform},
	}
	fw := forwarder.New(router, breakers, ps, status, adapters, upstream.Client())
	logStore := &fakeLogStore{}
	priceTable := pricing.NewTable()
	pricing.Seed(priceTable)
	billingLogger := billing.NewLogger(logStore, priceTable, decimal.NewFromInt(1), "response")

	deps := &Deps{
		Router:     router,
		Breakers:   breakers,
		Providers:  ps,
		Status:     status,
		Adapters:   adapters,
		Client:     upstream.Client(),
		Forwarder:  fw,
		Billing:    billingLogger,
		MaxRetries: 3,
	}
	return deps, logStore
}

func newTestContext(t *testing.T, method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	c.Request = req
	c.Set(ctxkey.RequestId, "test-request-id")
	return c, rec
}
