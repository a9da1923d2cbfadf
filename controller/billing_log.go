package controller

import (
	"context"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"

	"github.com/cliproxy/gateway/relay/billing"
	"github.com/cliproxy/gateway/relay/forwarder"
	"github.com/cliproxy/gateway/relay/model"
)

// asString extracts a gin context value set by a prior handler (request id,
// session id) back into a plain string, tolerating the "not set" case.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// successParams bundles the fields common to every family's log_usage
// dispatch on a 2xx response, since only the provider/usage-extraction
// logic differs between Claude, Codex, and Gemini.
type successParams struct {
	appType      model.AppFamily
	providerId   string
	providerType model.ProviderType
	requestModel string
	tokenUsage   model.TokenUsage
	statusCode   int
	latencyMs    int64
	firstTokenMs *int64
	streaming    bool
	requestId    any
	sessionId    any
}

func (d *Deps) logSuccess(ctx context.Context, p successParams) {
	modelName := p.tokenUsage.Model
	if modelName == "" {
		modelName = p.requestModel
	}
	entry := billing.Entry{
		RequestId:    asString(p.requestId),
		ProviderId:   p.providerId,
		AppType:      p.appType,
		Model:        modelName,
		RequestModel: p.requestModel,
		Usage:        p.tokenUsage,
		LatencyMs:    p.latencyMs,
		FirstTokenMs: p.firstTokenMs,
		StatusCode:   p.statusCode,
		SessionId:    asString(p.sessionId),
		ProviderType: string(p.providerType),
		IsStreaming:  p.streaming,
	}
	if err := d.Billing.LogWithCalculation(ctx, entry); err != nil {
		logErr(ctx, err)
	}
}

// resolveProviderType re-extracts auth via the registered adapter to
// classify provider into spec §3's refined ProviderType discriminant,
// falling back to the plain app-family type if extraction fails (e.g. a
// provider whose settings were valid enough to forward a request but
// somehow fail re-resolution here).
func (d *Deps) resolveProviderType(appType model.AppFamily, provider model.Provider) model.ProviderType {
	adapter, ok := d.Adapters[appType]
	if !ok {
		return model.ProviderType(appType)
	}
	auth, err := adapter.ExtractAuth(provider)
	if err != nil {
		return model.ProviderType(appType)
	}
	return model.DetectProviderType(appType, provider, string(auth.Strategy), auth.APIKey)
}

type errorParams struct {
	appType      model.AppFamily
	providerId   string
	requestModel string
	latencyMs    int64
	streaming    bool
	requestId    any
	sessionId    any
}

func (d *Deps) logUpstreamError(ctx context.Context, err error, p errorParams) {
	entry := billing.ErrorEntry{
		RequestId:    asString(p.requestId),
		ProviderId:   p.providerId,
		AppType:      p.appType,
		RequestModel: p.requestModel,
		LatencyMs:    p.latencyMs,
		StatusCode:   statusCodeOf(err),
		SessionId:    asString(p.sessionId),
		IsStreaming:  p.streaming,
		ErrorMessage: err.Error(),
	}
	if logErr2 := d.Billing.LogError(ctx, entry); logErr2 != nil {
		logErr(ctx, logErr2)
	}
}

// logClaudeSuccess writes the usage row for a completed non-stream Claude
// response, synchronously on the handler goroutine. Logging failures never
// affect the request result, per §7's propagation policy.
func (d *Deps) logClaudeSuccess(ctx context.Context, resp *forwarder.Response, fields claudeRequestFields, tokenUsage model.TokenUsage, ok bool, requestId, sessionId any, latencyMs int64, streaming bool) {
	d.logSuccess(ctx, successParams{
		appType:      model.AppFamilyClaude,
		providerId:   resp.Provider.ID,
		providerType: d.resolveProviderType(model.AppFamilyClaude, resp.Provider),
		requestModel: fields.Model,
		tokenUsage:   tokenUsage,
		statusCode:   resp.StatusCode,
		latencyMs:    latencyMs,
		streaming:    streaming,
		requestId:    requestId,
		sessionId:    sessionId,
	})
}

// logClaudeStreamSuccess is logClaudeSuccess's streaming counterpart, where
// the provider is known directly (dispatchUpstream bypasses forwarder.Response).
func (d *Deps) logClaudeStreamSuccess(ctx context.Context, provider model.Provider, fields claudeRequestFields, tokenUsage model.TokenUsage, ok bool, requestId, sessionId any, latencyMs int64, streaming bool, firstTokenMs *int64) {
	d.logSuccess(ctx, successParams{
		appType:      model.AppFamilyClaude,
		providerId:   provider.ID,
		providerType: d.resolveProviderType(model.AppFamilyClaude, provider),
		requestModel: fields.Model,
		tokenUsage:   tokenUsage,
		statusCode:   200,
		latencyMs:    latencyMs,
		firstTokenMs: firstTokenMs,
		streaming:    streaming,
		requestId:    requestId,
		sessionId:    sessionId,
	})
}

// logClaudeError dispatches a best-effort error row for a request that never
// reached a 2xx response.
func (d *Deps) logClaudeError(ctx context.Context, err error, fields claudeRequestFields, requestId, sessionId any, latencyMs int64, streaming bool) {
	d.logUpstreamError(ctx, err, errorParams{
		appType:      model.AppFamilyClaude,
		requestModel: fields.Model,
		latencyMs:    latencyMs,
		streaming:    streaming,
		requestId:    requestId,
		sessionId:    sessionId,
	})
}

func (d *Deps) logCodexSuccess(ctx context.Context, resp *forwarder.Response, fields codexRequestFields, endpoint string, tokenUsage model.TokenUsage, ok bool, requestId, sessionId any, latencyMs int64, streaming bool) {
	d.logSuccess(ctx, successParams{
		appType:      model.AppFamilyCodex,
		providerId:   resp.Provider.ID,
		providerType: d.resolveProviderType(model.AppFamilyCodex, resp.Provider),
		requestModel: fields.Model,
		tokenUsage:   tokenUsage,
		statusCode:   resp.StatusCode,
		latencyMs:    latencyMs,
		streaming:    streaming,
		requestId:    requestId,
		sessionId:    sessionId,
	})
}

func (d *Deps) logCodexStreamSuccess(ctx context.Context, provider model.Provider, fields codexRequestFields, endpoint string, tokenUsage model.TokenUsage, ok bool, requestId, sessionId any, latencyMs int64) {
	d.logSuccess(ctx, successParams{
		appType:      model.AppFamilyCodex,
		providerId:   provider.ID,
		providerType: d.resolveProviderType(model.AppFamilyCodex, provider),
		requestModel: fields.Model,
		tokenUsage:   tokenUsage,
		statusCode:   200,
		latencyMs:    latencyMs,
		streaming:    true,
		requestId:    requestId,
		sessionId:    sessionId,
	})
}

func (d *Deps) logCodexError(ctx context.Context, err error, fields codexRequestFields, endpoint string, requestId, sessionId any, latencyMs int64, streaming bool) {
	d.logUpstreamError(ctx, err, errorParams{
		appType:      model.AppFamilyCodex,
		requestModel: fields.Model,
		latencyMs:    latencyMs,
		streaming:    streaming,
		requestId:    requestId,
		sessionId:    sessionId,
	})
}

func logErr(ctx context.Context, err error) {
	gmw.GetLogger(ctx).Warn("log usage failed", zap.Error(err))
}
