package controller

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/cliproxy/gateway/relay/adaptor"
	"github.com/cliproxy/gateway/relay/forwarder"
	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/rectifier"
)

// dispatchUpstream performs §4.10's provider-selection/retry loop up through
// receiving upstream response headers, then returns the still-open response
// body for the caller to stream to the client. It cannot reuse
// forwarder.Forwarder.send directly because that helper reads the entire
// upstream body before returning, which would defeat first-token latency for
// a streaming response; the selection/classification logic is duplicated
// here at a smaller scope instead (mirrors the teacher's own
// Handler/StreamHandler split in relay/adaptor/gemini/main.go).
func (d *Deps) dispatchUpstream(ctx context.Context, appType model.AppFamily, endpoint string, clientBody []byte, transform forwarder.TransformRequestFunc, headers http.Header, anthropicVersion string) (*http.Response, model.Provider, error) {
	adapter, ok := d.Adapters[appType]
	if !ok {
		return nil, model.Provider{}, model.NewConfigError("no adapter registered for app family "+string(appType), nil)
	}

	status := d.Status.Get(appType)
	failed := map[string]bool{}
	workingBody := clientBody
	rectified := false

	for attempt := 0; attempt < d.MaxRetries; attempt++ {
		provider, err := d.Router.SelectProvider(ctx, appType, failed)
		if err != nil {
			return nil, model.Provider{}, err
		}
		status.BeginAttempt(appType, provider.ID, provider.Name, attempt > 0)

		wireBody := workingBody
		if transform != nil && adapter.NeedsTransform(provider) {
			wireBody, err = transform(workingBody, provider)
			if err != nil {
				wse := model.NewTransformError("request transform failed", err)
				d.Providers.UpdateHealth(ctx, appType, provider.ID, false, wse.Error())
				status.RecordFailure(wse.Error())
				return nil, model.Provider{}, wse
			}
		}

		req, err := d.buildRequest(ctx, adapter, provider, endpoint, wireBody, headers, anthropicVersion)
		if err != nil {
			return nil, model.Provider{}, err
		}

		resp, err := d.Client.Do(req)
		if err != nil {
			wse := model.NewConnectError(err)
			if ctx.Err() != nil {
				wse = model.NewTimeoutError(err)
			}
			d.Breakers.Get(provider.ID).RecordFailure(false)
			d.Providers.UpdateHealth(ctx, appType, provider.ID, false, wse.Error())
			status.RecordFailure(wse.Error())
			failed[provider.ID] = true
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			d.Breakers.Get(provider.ID).RecordSuccess(false)
			d.Providers.UpdateHealth(ctx, appType, provider.ID, true, "")
			status.RecordSuccess()
			return resp, provider, nil
		}

		errBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == 400 && !rectified && rectifier.Triggered(string(errBody)) {
			rectifiedBody, result, rectErr := rectifier.Rectify(workingBody)
			if rectErr == nil && result.Applied {
				workingBody = rectifiedBody
				rectified = true
				continue
			}
		}

		wse := model.NewUpstreamError(resp.StatusCode, errBody)
		d.Providers.UpdateHealth(ctx, appType, provider.ID, false, wse.Error())
		status.RecordFailure(wse.Error())
		if !wse.Retryable() {
			return nil, model.Provider{}, wse
		}
		d.Breakers.Get(provider.ID).RecordFailure(false)
		failed[provider.ID] = true
	}

	finalErr := model.NewMaxRetriesExceededError(0)
	status.RecordFailure(finalErr.Error())
	return nil, model.Provider{}, finalErr
}

func (d *Deps) buildRequest(ctx context.Context, adapter adaptor.Adapter, provider model.Provider, endpoint string, body []byte, headers http.Header, anthropicVersion string) (*http.Request, error) {
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
	for name, values := range headers {
		if !forwarder.IsForwardedHeader(name) {
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
	return req, nil
}
