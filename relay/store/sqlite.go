package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cliproxy/gateway/common/logger"
	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/pricing"
)

// providerRow is the gorm row shape backing a Provider; SettingsConfig is
// stored as a JSON text blob per spec §3.
type providerRow struct {
	ID                 string `gorm:"primaryKey"`
	AppType            string `gorm:"index:idx_app_sort"`
	Name               string
	SettingsConfig     string
	CostMultiplier     string
	PricingModelSource string
	InFailoverQueue    bool
	SortIndex          int `gorm:"index:idx_app_sort"`
}

func (providerRow) TableName() string { return "providers" }

// SqliteProviderStore is the default ProviderStore reference implementation,
// backed by gorm+sqlite. Production deployments may swap in any other
// ProviderStore implementation since core code depends only on the interface.
type SqliteProviderStore struct {
	db      *gorm.DB
	pricing *pricing.Table

	defaultMultiplier     decimal.Decimal
	defaultPricingSource  string
}

// OpenProviderStore opens (creating if absent) a sqlite-backed provider
// store at path and auto-migrates its schema.
func OpenProviderStore(path string, priceTable *pricing.Table, defaultMultiplier decimal.Decimal, defaultPricingSource string) (*SqliteProviderStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite provider store")
	}
	if err := db.AutoMigrate(&providerRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate providers table")
	}
	return &SqliteProviderStore{
		db:                   db,
		pricing:              priceTable,
		defaultMultiplier:    defaultMultiplier,
		defaultPricingSource: defaultPricingSource,
	}, nil
}

func toProvider(r providerRow) model.Provider {
	return model.Provider{
		ID:                 r.ID,
		Name:               r.Name,
		SettingsConfig:     []byte(r.SettingsConfig),
		CostMultiplier:     r.CostMultiplier,
		PricingModelSource: r.PricingModelSource,
		InFailoverQueue:    r.InFailoverQueue,
		SortIndex:          r.SortIndex,
	}
}

// List orders providers by sort_index, then id. providerRow stores no
// creation time, so ties in sort_index are broken by id, not by creation
// order. Current and FailoverQueue use the same ordering.
func (s *SqliteProviderStore) List(ctx context.Context, appType model.AppFamily) ([]model.Provider, error) {
	var rows []providerRow
	if err := s.db.WithContext(ctx).Where("app_type = ?", string(appType)).Order("sort_index, id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list providers")
	}
	out := make([]model.Provider, 0, len(rows))
	for _, r := range rows {
		out = append(out, toProvider(r))
	}
	return out, nil
}

func (s *SqliteProviderStore) Current(ctx context.Context, appType model.AppFamily) (string, error) {
	var row providerRow
	err := s.db.WithContext(ctx).Where("app_type = ?", string(appType)).Order("sort_index, id").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "load current provider")
	}
	return row.ID, nil
}

func (s *SqliteProviderStore) FailoverQueue(ctx context.Context, appType model.AppFamily) ([]string, error) {
	var rows []providerRow
	err := s.db.WithContext(ctx).
		Where("app_type = ? AND in_failover_queue = ?", string(appType), true).
		Order("sort_index, id").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list failover queue")
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *SqliteProviderStore) GetProvider(ctx context.Context, appType model.AppFamily, id string) (model.Provider, bool, error) {
	var row providerRow
	err := s.db.WithContext(ctx).Where("app_type = ? AND id = ?", string(appType), id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Provider{}, false, nil
	}
	if err != nil {
		return model.Provider{}, false, errors.Wrap(err, "get provider")
	}
	return toProvider(row), true, nil
}

// UpdateHealth is an opaque sink per §4.5: provider health is tracked by the
// in-memory circuit breaker, not persisted, so this only logs the signal.
func (s *SqliteProviderStore) UpdateHealth(ctx context.Context, appType model.AppFamily, id string, ok bool, errMsg string) {
	go func() {
		logger.Logger.Debug("provider health signal",
			zap.String("app_type", string(appType)), zap.String("provider_id", id),
			zap.Bool("ok", ok), zap.String("error", errMsg))
	}()
}

func (s *SqliteProviderStore) GetModelPricing(ctx context.Context, modelID string) (model.PricingRow, bool, error) {
	row, ok := s.pricing.Lookup("store-lookup", modelID)
	if !ok {
		return model.PricingRow{}, false, nil
	}
	return *row, true, nil
}

func (s *SqliteProviderStore) ResolveCostMultiplier(ctx context.Context, providerId string, appType model.AppFamily) (decimal.Decimal, string, error) {
	var row providerRow
	err := s.db.WithContext(ctx).Where("app_type = ? AND id = ?", string(appType), providerId).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.defaultMultiplier, s.defaultPricingSource, nil
	}
	if err != nil {
		return s.defaultMultiplier, s.defaultPricingSource, errors.Wrap(err, "resolve cost multiplier")
	}

	multiplier := s.defaultMultiplier
	if row.CostMultiplier != "" {
		if parsed, parseErr := decimal.NewFromString(row.CostMultiplier); parseErr == nil {
			multiplier = parsed
		}
	}

	source := s.defaultPricingSource
	if row.PricingModelSource == "response" || row.PricingModelSource == "request" {
		source = row.PricingModelSource
	}

	return multiplier, source, nil
}

// SqliteLogStore is the default LogStore reference implementation.
type SqliteLogStore struct {
	mu sync.Mutex
	db *gorm.DB
}

// OpenLogStore opens (creating if absent) a sqlite-backed log store at path
// and auto-migrates its schema.
func OpenLogStore(path string) (*SqliteLogStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite log store")
	}
	if err := db.AutoMigrate(&model.RequestLog{}); err != nil {
		return nil, errors.Wrap(err, "migrate request_logs table")
	}
	return &SqliteLogStore{db: db}, nil
}

// Append serializes writes through a single connection lock. The write runs
// synchronously on the caller's goroutine; the handlers in package controller
// reach it through billing.Logger before they return.
func (s *SqliteLogStore) Append(ctx context.Context, entry model.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return errors.Wrap(err, "append request log")
	}
	return nil
}

func (s *SqliteLogStore) List(ctx context.Context, filter model.RequestLogFilter) ([]model.RequestLog, error) {
	q := s.db.WithContext(ctx).Model(&model.RequestLog{})
	if filter.ProviderId != "" {
		q = q.Where("provider_id = ?", filter.ProviderId)
	}
	if filter.AppType != "" {
		q = q.Where("app_type = ?", filter.AppType)
	}
	if filter.Model != "" {
		q = q.Where("model = ?", filter.Model)
	}
	if filter.SessionId != "" {
		q = q.Where("session_id = ?", filter.SessionId)
	}
	if filter.StatusCode != 0 {
		q = q.Where("status_code = ?", filter.StatusCode)
	}
	if filter.CreatedAtFrom != 0 {
		q = q.Where("created_at >= ?", filter.CreatedAtFrom)
	}
	if filter.CreatedAtTo != 0 {
		q = q.Where("created_at <= ?", filter.CreatedAtTo)
	}
	q = q.Order("created_at desc")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []model.RequestLog
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list request logs")
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt > rows[j].CreatedAt })
	return rows, nil
}

// Backfill is applied only on reads, never on writes: it recomputes cost in
// place for rows whose total_cost_usd is zero despite nonzero token counts.
// Recomputed rows are persisted back so subsequent reads skip the work.
func (s *SqliteLogStore) Backfill(ctx context.Context, rows []model.RequestLog) ([]model.RequestLog, error) {
	for i := range rows {
		r := &rows[i]
		if r.TotalCostUSD != "" && r.TotalCostUSD != "0" {
			continue
		}
		if r.InputTokens == 0 && r.OutputTokens == 0 && r.CacheReadTokens == 0 && r.CacheCreationTokens == 0 {
			continue
		}
		// No separate pricing-model-id is persisted on the row, so backfill
		// recomputes using the response model as the pricing key, reusing
		// the row's own persisted cost_multiplier rather than assuming 1x.
		row, ok := pricingLookupFallback(r.Model)
		if !ok {
			continue
		}
		multiplier := decimal.NewFromInt(1)
		if r.CostMultiplier != "" {
			if parsed, err := decimal.NewFromString(r.CostMultiplier); err == nil {
				multiplier = parsed
			}
		}
		usage := model.TokenUsage{
			InputTokens:         r.InputTokens,
			OutputTokens:        r.OutputTokens,
			CacheReadTokens:     r.CacheReadTokens,
			CacheCreationTokens: r.CacheCreationTokens,
		}
		cost := model.ComputeCost(usage, row, multiplier)
		r.TotalCostUSD = cost.TotalCost.String()

		s.mu.Lock()
		err := s.db.WithContext(ctx).Model(&model.RequestLog{}).Where("request_id = ?", r.RequestId).
			Update("total_cost_usd", r.TotalCostUSD).Error
		s.mu.Unlock()
		if err != nil {
			return rows, errors.Wrap(err, "persist backfilled cost")
		}
	}
	return rows, nil
}

// pricingLookupFallback is overridden in tests; production wiring sets this
// to close over the live pricing.Table at startup.
var pricingLookupFallback = func(modelID string) (*model.PricingRow, bool) {
	return nil, false
}

// SetBackfillPricingTable wires t as the pricing source backfill uses to
// recompute historic zero-cost rows.
func SetBackfillPricingTable(t *pricing.Table) {
	pricingLookupFallback = func(modelID string) (*model.PricingRow, bool) {
		return t.Lookup("backfill", modelID)
	}
}
