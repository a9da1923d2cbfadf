// Package forwarder implements the retrying upstream dispatcher described
// in spec §4.10: it selects a provider, builds the outbound request via the
// family's adapter, sends it, classifies the outcome, and updates the
// breaker and ProxyStatus accordingly.
package forwarder

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/cliproxy/gateway/common/config"
	"github.com/cliproxy/gateway/relay/adaptor"
	"github.com/cliproxy/gateway/relay/breaker"
	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/rectifier"
	"github.com/cliproxy/gateway/relay/routing"
	"github.com/cliproxy/gateway/relay/store"
)

// forwardedHeaders is the whitelist of inbound headers passed upstream, per §4.10 step 3.
var forwardedHeaders = []string{"Accept", "User-Agent", "X-Request-Id"}

// IsForwardedHeader reports whether name is on the §4.10 step 3 whitelist
// of inbound headers passed upstream (exported so the streaming handler
// path, which cannot go through Forwarder.send, applies the same rule).
func IsForwardedHeader(name string) bool {
	for _, h := range forwardedHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return strings.HasPrefix(strings.ToLower(name), "x-stainless-")
}

// Forwarder ties together provider selection, adapter dispatch, and breaker
// state updates for the requests of every app family in its adapters map.
type Forwarder struct {
	router    *routing.Router
	breakers  *breaker.Registry
	providers store.ProviderStore
	status    *model.StatusRegistry
	adapters  map[model.AppFamily]adaptor.Adapter
	client    *http.Client
}

// New constructs a Forwarder. adapters maps each app family to its adapter.
func New(router *routing.Router, breakers *breaker.Registry, providers store.ProviderStore, status *model.StatusRegistry, adapters map[model.AppFamily]adaptor.Adapter, client *http.Client) *Forwarder {
	return &Forwarder{router: router, breakers: breakers, providers: providers, status: status, adapters: adapters, client: client}
}

// Response is the successful outcome of ForwardWithRetry.
type Response struct {
	StatusCode  int
	Header      http.Header
	Body        []byte
	Provider    model.Provider
	// Transformed reports whether this response's provider required request
	// (and therefore response) format translation, per §4.11's four-branch
	// Claude handler dispatch.
	Transformed bool
}

// TransformRequestFunc converts the client's original request body into the
// wire format a transforming provider expects. It is invoked at most once
// per attempt, only for providers where the adapter reports NeedsTransform;
// provider is the candidate selected for that attempt, since some
// translations (the DeepSeek max_tokens clamp) depend on its base URL.
type TransformRequestFunc func(clientBody []byte, provider model.Provider) ([]byte, error)

// ForwardWithRetry implements §4.10's retry algorithm. clientBody is always
// the client's original request representation; transformRequest (nilable)
// derives the upstream wire body per attempt, since different candidate
// providers in the failover queue may require different formats. The
// thinking rectifier (§4.9) operates on clientBody, not the transformed
// wire body, since the signature/thinking-block trigger is Anthropic-shaped.
func (f *Forwarder) ForwardWithRetry(ctx context.Context, appType model.AppFamily, endpoint string, clientBody []byte, transformRequest TransformRequestFunc, inboundHeaders http.Header, anthropicVersion string) (*Response, error) {
	adapter, ok := f.adapters[appType]
	if !ok {
		return nil, model.NewConfigError("no adapter registered for app family "+string(appType), nil)
	}

	status := f.status.Get(appType)
	failed := map[string]bool{}
	var lastErr *model.ErrorWithStatusCode
	workingBody := clientBody
	rectified := false

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		provider, err := f.router.SelectProvider(ctx, appType, failed)
		if err != nil {
			return nil, err
		}

		failoverHappened := attempt > 0
		status.BeginAttempt(appType, provider.ID, provider.Name, failoverHappened)

		wireBody := workingBody
		transformedThisAttempt := false
		if transformRequest != nil && adapter.NeedsTransform(provider) {
			wireBody, err = transformRequest(workingBody, provider)
			if err != nil {
				wse := model.NewTransformError("request transform failed", err)
				f.providers.UpdateHealth(ctx, appType, provider.ID, false, wse.Error())
				status.RecordFailure(wse.Error())
				return nil, wse
			}
			transformedThisAttempt = true
		}

		resp, sendErr := f.send(ctx, adapter, provider, endpoint, wireBody, inboundHeaders, anthropicVersion)
		if sendErr == nil {
			f.breakers.Get(provider.ID).RecordSuccess(false)
			f.providers.UpdateHealth(ctx, appType, provider.ID, true, "")
			status.RecordSuccess()
			resp.Transformed = transformedThisAttempt
			return resp, nil
		}

		wse, ok := sendErr.(*model.ErrorWithStatusCode)
		if !ok {
			wse = model.NewForwardError(sendErr)
		}

		// Thinking-rectifier: a 400 matching §4.9's trigger patterns is applied
		// at most once per request and retried, per §7's "counts as one retry
		// attempt" rule.
		if !rectified && wse.Kind == model.ErrorKindUpstream && wse.StatusCode == 400 && rectifier.Triggered(string(wse.Body)) {
			rectifiedBody, result, rectErr := rectifier.Rectify(workingBody)
			if rectErr == nil && result.Applied {
				workingBody = rectifiedBody
				rectified = true
				continue
			}
		}

		if !wse.Retryable() {
			f.providers.UpdateHealth(ctx, appType, provider.ID, false, wse.Error())
			status.RecordFailure(wse.Error())
			return nil, wse
		}

		f.breakers.Get(provider.ID).RecordFailure(false)
		f.providers.UpdateHealth(ctx, appType, provider.ID, false, wse.Error())
		failed[provider.ID] = true
		lastErr = wse
	}

	lastStatus := 0
	if lastErr != nil {
		lastStatus = lastErr.StatusCode
	}
	finalErr := model.NewMaxRetriesExceededError(lastStatus)
	status.RecordFailure(finalErr.Error())
	return nil, finalErr
}

func (f *Forwarder) send(ctx context.Context, adapter adaptor.Adapter, provider model.Provider, endpoint string, body []byte, inboundHeaders http.Header, anthropicVersion string) (*Response, error) {
	base, err := adapter.ExtractBaseURL(provider)
	if err != nil {
		return nil, err
	}
	auth, err := adapter.ExtractAuth(provider)
	if err != nil {
		return nil, err
	}
	url := adapter.BuildURL(base, endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, model.NewConnectError(err)
	}

	for name, values := range inboundHeaders {
		if !IsForwardedHeader(name) {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if anthropicVersion != "" {
		req.Header.Set("anthropic-version", anthropicVersion)
	}
	adapter.AddAuthHeaders(req, auth)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.NewTimeoutError(err)
		}
		return nil, model.NewConnectError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewForwardError(errors.Wrap(err, "read upstream response body"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewUpstreamError(resp.StatusCode, respBody)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody, Provider: provider}, nil
}
