// Package store declares the external ProviderStore and LogStore contracts
// described in spec §4.5 and §6, plus a default gorm-backed implementation of
// each. Core code depends only on the interfaces so either can be swapped.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/cliproxy/gateway/relay/model"
)

// ProviderStore is a transactional read source for provider configuration and
// routing state. Writes (update_health) are fire-and-forget from the core's
// point of view.
type ProviderStore interface {
	// List returns providers for appType ordered by sort_index, then creation.
	List(ctx context.Context, appType model.AppFamily) ([]model.Provider, error)

	// Current returns the active provider id for appType, or "" if none is set.
	Current(ctx context.Context, appType model.AppFamily) (string, error)

	// FailoverQueue returns the ranked candidate provider ids for appType; the
	// first element is the active routing target.
	FailoverQueue(ctx context.Context, appType model.AppFamily) ([]string, error)

	// GetProvider returns a single provider by id, or ok=false if not found.
	GetProvider(ctx context.Context, appType model.AppFamily, id string) (model.Provider, bool, error)

	// UpdateHealth is an opaque sink; implementations need not make it synchronous.
	UpdateHealth(ctx context.Context, appType model.AppFamily, id string, ok bool, errMsg string)

	// GetModelPricing returns the four per-million-token decimal prices for
	// modelID, or ok=false if the provider store has no override for it.
	GetModelPricing(ctx context.Context, modelID string) (row model.PricingRow, ok bool, err error)

	// ResolveCostMultiplier returns the effective multiplier and the
	// pricing-source tag ("response" or "request") for providerId/appType.
	ResolveCostMultiplier(ctx context.Context, providerId string, appType model.AppFamily) (multiplier decimal.Decimal, pricingSource string, err error)
}

// LogStore is the append-only request-log sink. The sqlite implementation
// serializes writes through a single connection lock, and Append is
// synchronous: the handlers call it inline through billing.Logger.
type LogStore interface {
	Append(ctx context.Context, entry model.RequestLog) error
	List(ctx context.Context, filter model.RequestLogFilter) ([]model.RequestLog, error)

	// Backfill recomputes and persists the cost for log rows whose
	// total_cost_usd is zero despite nonzero token counts. It is applied only
	// during historic reads, never during writes.
	Backfill(ctx context.Context, rows []model.RequestLog) ([]model.RequestLog, error)
}
