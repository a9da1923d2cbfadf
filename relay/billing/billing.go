// Package billing implements the Usage Logger described in spec §4.3: cost
// computation via the pricing table and persistence of RequestLog rows.
package billing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/pricing"
	"github.com/cliproxy/gateway/relay/store"
)

// Logger computes cost and persists RequestLog rows for completed (or
// failed) forwarded requests.
type Logger struct {
	logs    store.LogStore
	pricing *pricing.Table

	defaultMultiplier    decimal.Decimal
	defaultPricingSource string
}

// NewLogger constructs a Logger. defaultMultiplier is applied to every Entry
// whose CostMultiplier is zero. defaultPricingSource is stored but not read
// by LogWithCalculation, which prices against Entry.PricingModel, or
// Entry.Model when that is empty.
func NewLogger(logs store.LogStore, priceTable *pricing.Table, defaultMultiplier decimal.Decimal, defaultPricingSource string) *Logger {
	return &Logger{
		logs:                 logs,
		pricing:              priceTable,
		defaultMultiplier:    defaultMultiplier,
		defaultPricingSource: defaultPricingSource,
	}
}

// Entry carries everything log_with_calculation needs, per §4.3's signature.
type Entry struct {
	RequestId     string
	ProviderId    string
	AppType       model.AppFamily
	Model         string // response model
	RequestModel  string // client-sent model
	PricingModel  string // model id to price against; may be "" meaning "use Model"
	Usage         model.TokenUsage
	CostMultiplier decimal.Decimal // zero value means the Logger's defaultMultiplier; the provider's cost_multiplier is not looked up
	LatencyMs     int64
	FirstTokenMs  *int64
	StatusCode    int
	SessionId     string
	ProviderType  string
	IsStreaming   bool
}

// LogWithCalculation computes cost via §3's formula using the pricing row
// for e.PricingModel (falling back to e.Model if unset) and the supplied
// multiplier, then persists a RequestLog. Logging happens best-effort: a
// persistence error is returned to the caller, who should not block the
// response path on it (spec §6: LogStore writes must not block the request
// path).
func (l *Logger) LogWithCalculation(ctx context.Context, e Entry) error {
	pricingModel := e.PricingModel
	if pricingModel == "" {
		pricingModel = e.Model
	}

	row, _ := l.pricing.Lookup(e.RequestId, pricingModel)

	multiplier := e.CostMultiplier
	if multiplier.IsZero() {
		multiplier = l.defaultMultiplier
	}

	cost := model.ComputeCost(e.Usage, row, multiplier)

	entry := model.RequestLog{
		RequestId:           e.RequestId,
		ProviderId:          e.ProviderId,
		AppType:             string(e.AppType),
		Model:                e.Model,
		RequestModel:        e.RequestModel,
		InputTokens:         e.Usage.InputTokens,
		OutputTokens:        e.Usage.OutputTokens,
		CacheReadTokens:     e.Usage.CacheReadTokens,
		CacheCreationTokens: e.Usage.CacheCreationTokens,
		TotalCostUSD:        cost.TotalCost.String(),
		LatencyMs:           e.LatencyMs,
		FirstTokenMs:        e.FirstTokenMs,
		StatusCode:          e.StatusCode,
		IsStreaming:         e.IsStreaming,
		CostMultiplier:      multiplier.String(),
		SessionId:           e.SessionId,
		ProviderType:        e.ProviderType,
		CreatedAt:           model.NowUnix(),
	}

	return l.logs.Append(ctx, entry)
}

// ErrorEntry carries the fields needed for the error-path logging variant.
type ErrorEntry struct {
	RequestId    string
	ProviderId   string
	AppType      model.AppFamily
	RequestModel string
	LatencyMs    int64
	StatusCode   int
	SessionId    string
	ProviderType string
	IsStreaming  bool
	ErrorMessage string
}

// LogError persists a row with zero usage, zero cost, and an error_message,
// per §4.3's error-path variant.
func (l *Logger) LogError(ctx context.Context, e ErrorEntry) error {
	entry := model.RequestLog{
		RequestId:      e.RequestId,
		ProviderId:     e.ProviderId,
		AppType:        string(e.AppType),
		RequestModel:   e.RequestModel,
		TotalCostUSD:   decimal.Zero.String(),
		LatencyMs:      e.LatencyMs,
		StatusCode:     e.StatusCode,
		IsStreaming:    e.IsStreaming,
		CostMultiplier: l.defaultMultiplier.String(),
		SessionId:      e.SessionId,
		ProviderType:   e.ProviderType,
		ErrorMessage:   e.ErrorMessage,
		CreatedAt:      model.NowUnix(),
	}
	return l.logs.Append(ctx, entry)
}

// EffectiveMultiplier resolves the cost multiplier per §4.3: provider meta
// cost_multiplier if present and parseable, else the configured default for
// the app family.
func EffectiveMultiplier(providerMultiplier string, defaultMultiplier decimal.Decimal) decimal.Decimal {
	if providerMultiplier == "" {
		return defaultMultiplier
	}
	parsed, err := decimal.NewFromString(providerMultiplier)
	if err != nil {
		return defaultMultiplier
	}
	return parsed
}

// EffectivePricingSource resolves the pricing source per §4.3: provider meta
// pricing_model_source if it is "response" or "request", else the
// configured default.
func EffectivePricingSource(providerSource, defaultSource string) string {
	if providerSource == "response" || providerSource == "request" {
		return providerSource
	}
	return defaultSource
}

// ListWithBackfill reads historic logs and recomputes cost in place for rows
// whose total_cost_usd is zero despite nonzero token counts, per §4.3's
// backfill-on-read rule.
func (l *Logger) ListWithBackfill(ctx context.Context, filter model.RequestLogFilter) ([]model.RequestLog, error) {
	rows, err := l.logs.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return l.logs.Backfill(ctx, rows)
}
