package forwarder

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliproxy/gateway/relay/adaptor"
	"github.com/cliproxy/gateway/relay/breaker"
	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/routing"
)

type fakeAdapter struct {
	baseURL string
}

func (f *fakeAdapter) Name() string { return "fake" }
func (f *fakeAdapter) ExtractBaseURL(provider model.Provider) (string, error) {
	return f.baseURL, nil
}
func (f *fakeAdapter) ExtractAuth(provider model.Provider) (model.AuthInfo, error) {
	return model.AuthInfo{Strategy: model.AuthStrategyBearer, APIKey: "test-key"}, nil
}
func (f *fakeAdapter) BuildURL(base, endpoint string) string { return base + endpoint }
func (f *fakeAdapter) AddAuthHeaders(req *http.Request, auth model.AuthInfo) {
	req.Header.Set("Authorization", "Bearer "+auth.APIKey)
}
func (f *fakeAdapter) NeedsTransform(provider model.Provider) bool { return false }

type fakeProviderStore struct {
	providers []model.Provider
	current   string
	updates   []string
}

func (s *fakeProviderStore) List(ctx context.Context, appType model.AppFamily) ([]model.Provider, error) {
	return s.providers, nil
}
func (s *fakeProviderStore) Current(ctx context.Context, appType model.AppFamily) (string, error) {
	return s.current, nil
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
	s.updates = append(s.updates, id)
}
func (s *fakeProviderStore) GetModelPricing(ctx context.Context, modelID string) (model.PricingRow, bool, error) {
	return model.PricingRow{}, false, nil
}
func (s *fakeProviderStore) ResolveCostMultiplier(ctx context.Context, providerId string, appType model.AppFamily) (decimal.Decimal, string, error) {
	return decimal.NewFromInt(1), "request", nil
}

func newHarness(t *testing.T, providers []model.Provider, adapterBaseURL string) (*Forwarder, *fakeProviderStore) {
	t.Helper()
	ps := &fakeProviderStore{providers: providers}
	breakers := breaker.NewRegistry(model.CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, TimeoutSeconds: 30, ErrorRateThreshold: 0.6, MinRequests: 10})
	r := routing.New(ps, breakers)
	statuses := model.NewStatusRegistry()
	adapters := map[model.AppFamily]adaptor.Adapter{
		model.AppFamilyClaude: &fakeAdapter{baseURL: adapterBaseURL},
	}
	fw := New(r, breakers, ps, statuses, adapters, http.DefaultClient)
	return fw, ps
}

func TestForwardWithRetrySucceedsOnFirstProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	providers := []model.Provider{{ID: "p1", Name: "Primary"}}
	fw, ps := newHarness(t, providers, srv.URL)

	resp, err := fw.ForwardWithRetry(context.Background(), model.AppFamilyClaude, "/v1/messages", []byte(`{}`), nil, http.Header{}, "2023-06-01")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "p1", resp.Provider.ID)
	assert.Contains(t, ps.updates, "p1")
}

func TestForwardWithRetryFailsOverOn5xx(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer good.Close()

	ps := &fakeProviderStore{providers: []model.Provider{{ID: "p1", Name: "Bad"}, {ID: "p2", Name: "Good"}}}
	breakers := breaker.NewRegistry(model.CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, TimeoutSeconds: 30, ErrorRateThreshold: 0.6, MinRequests: 10})
	r := routing.New(ps, breakers)
	statuses := model.NewStatusRegistry()

	adapters := map[model.AppFamily]adaptor.Adapter{
		model.AppFamilyClaude: &multiAdapter{urls: map[string]string{"p1": bad.URL, "p2": good.URL}},
	}
	fw := New(r, breakers, ps, statuses, adapters, http.DefaultClient)

	resp, err := fw.ForwardWithRetry(context.Background(), model.AppFamilyClaude, "/v1/messages", []byte(`{}`), nil, http.Header{}, "")
	require.NoError(t, err)
	assert.Equal(t, "p2", resp.Provider.ID)
}

func TestForwardWithRetryReturnsImmediatelyOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	providers := []model.Provider{{ID: "p1", Name: "Primary"}, {ID: "p2", Name: "Secondary"}}
	fw, _ := newHarness(t, providers, srv.URL)

	_, err := fw.ForwardWithRetry(context.Background(), model.AppFamilyClaude, "/v1/messages", []byte(`{}`), nil, http.Header{}, "")
	require.Error(t, err)
	wse, ok := err.(*model.ErrorWithStatusCode)
	require.True(t, ok)
	assert.Equal(t, 400, wse.StatusCode)
	assert.False(t, wse.Retryable())
}

func TestForwardWithRetryExhaustsToMaxRetriesExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}))
	defer srv.Close()

	providers := []model.Provider{{ID: "p1", Name: "Primary"}, {ID: "p2", Name: "Secondary"}, {ID: "p3", Name: "Tertiary"}}
	fw, _ := newHarness(t, providers, srv.URL)

	_, err := fw.ForwardWithRetry(context.Background(), model.AppFamilyClaude, "/v1/messages", []byte(`{}`), nil, http.Header{}, "")
	require.Error(t, err)
	wse, ok := err.(*model.ErrorWithStatusCode)
	require.True(t, ok)
	assert.Equal(t, model.ErrorKindMaxRetries, wse.Kind)
}

func TestForwardWithRetryAppliesRectifierOnSignatureError(t *testing.T) {
	var calls int32
	var gotOnRetry []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(400)
			w.Write([]byte(`{"error":"Invalid signature in thinking block"}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		gotOnRetry = body
		w.WriteHeader(200)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	providers := []model.Provider{{ID: "p1", Name: "Primary"}}
	fw, _ := newHarness(t, providers, srv.URL)

	reqBody := []byte(`{"messages":[{"role":"assistant","content":[{"type":"thinking","thinking":"x"},{"type":"text","text":"hi","signature":"abc"}]}]}`)
	resp, err := fw.ForwardWithRetry(context.Background(), model.AppFamilyClaude, "/v1/messages", reqBody, nil, http.Header{}, "")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.NotContains(t, string(gotOnRetry), "signature")
	assert.NotContains(t, string(gotOnRetry), `"thinking","thinking":"x"`)
}

func TestForwardWithRetryAppliesTransformOnlyWhenProviderNeedsIt(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ps := &fakeProviderStore{providers: []model.Provider{{ID: "p1", Name: "Transforming"}}}
	breakers := breaker.NewRegistry(model.CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, TimeoutSeconds: 30, ErrorRateThreshold: 0.6, MinRequests: 10})
	r := routing.New(ps, breakers)
	statuses := model.NewStatusRegistry()
	adapters := map[model.AppFamily]adaptor.Adapter{
		model.AppFamilyClaude: &transformingAdapter{baseURL: srv.URL},
	}
	fw := New(r, breakers, ps, statuses, adapters, http.DefaultClient)

	transformCalled := false
	transform := func(clientBody []byte, provider model.Provider) ([]byte, error) {
		transformCalled = true
		return []byte(`{"transformed":true}`), nil
	}

	resp, err := fw.ForwardWithRetry(context.Background(), model.AppFamilyClaude, "/v1/messages", []byte(`{"original":true}`), transform, http.Header{}, "")
	require.NoError(t, err)
	assert.True(t, transformCalled)
	assert.True(t, resp.Transformed)
	assert.JSONEq(t, `{"transformed":true}`, string(gotBody))
}

type transformingAdapter struct {
	baseURL string
}

func (a *transformingAdapter) Name() string { return "transforming" }
func (a *transformingAdapter) ExtractBaseURL(provider model.Provider) (string, error) {
	return a.baseURL, nil
}
func (a *transformingAdapter) ExtractAuth(provider model.Provider) (model.AuthInfo, error) {
	return model.AuthInfo{Strategy: model.AuthStrategyBearer, APIKey: "k"}, nil
}
func (a *transformingAdapter) BuildURL(base, endpoint string) string { return base + endpoint }
func (a *transformingAdapter) AddAuthHeaders(req *http.Request, auth model.AuthInfo) {
	req.Header.Set("Authorization", "Bearer "+auth.APIKey)
}
func (a *transformingAdapter) NeedsTransform(provider model.Provider) bool { return true }

type multiAdapter struct {
	urls map[string]string
}

func (m *multiAdapter) Name() string { return "multi" }
func (m *multiAdapter) ExtractBaseURL(provider model.Provider) (string, error) {
	return m.urls[provider.ID], nil
}
func (m *multiAdapter) ExtractAuth(provider model.Provider) (model.AuthInfo, error) {
	return model.AuthInfo{Strategy: model.AuthStrategyBearer, APIKey: "k"}, nil
}
func (m *multiAdapter) BuildURL(base, endpoint string) string { return base + endpoint }
func (m *multiAdapter) AddAuthHeaders(req *http.Request, auth model.AuthInfo) {
	req.Header.Set("Authorization", "Bearer "+auth.APIKey)
}
func (m *multiAdapter) NeedsTransform(provider model.Provider) bool { return false }
