// Package pricing implements the read-mostly model-id → price-row table
// described in spec §4.1, with the canonical lookup rule from §3.
package pricing

import (
	"strings"
	"sync"

	"github.com/Laisky/zap"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/cliproxy/gateway/common/logger"
	"github.com/cliproxy/gateway/relay/model"
)

// Table is a read-mostly mapping from canonical model id to a pricing row.
// Writes only happen at seed time; reads take only the read lock, matching
// the teacher's read-mostly cache idiom.
type Table struct {
	mu   sync.RWMutex
	rows map[string]model.PricingRow

	// warnOnce dedups the "missing pricing row" warning to once per
	// (request_id, model), per §4.1.
	warnOnce *cache.Cache
}

// NewTable returns an empty table; callers should call Seed or Set to populate it.
func NewTable() *Table {
	return &Table{
		rows:     make(map[string]model.PricingRow),
		warnOnce: cache.New(cache.NoExpiration, cache.NoExpiration),
	}
}

// Set inserts or replaces a pricing row under its own model id (not canonicalized
// here; callers seeding the table should use the canonical id directly).
func (t *Table) Set(row model.PricingRow) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[row.ModelID] = row
}

// Canonicalize applies §3's canonical model-id rule: strip any leading
// "<vendor>/", strip any trailing ":<suffix>", replace "@" with "-", trim.
func Canonicalize(modelID string) string {
	m := strings.TrimSpace(modelID)
	if idx := strings.Index(m, "/"); idx >= 0 {
		m = m[idx+1:]
	}
	if idx := strings.Index(m, ":"); idx >= 0 {
		m = m[:idx]
	}
	m = strings.ReplaceAll(m, "@", "-")
	return strings.TrimSpace(m)
}

// Lookup resolves modelID to a pricing row using the canonical rule. A
// missing entry is not an error: it returns (nil, false) and callers price
// the request at zero cost. requestId is used only to dedup the missing-row
// warning to once per (request_id, model).
func (t *Table) Lookup(requestId, modelID string) (*model.PricingRow, bool) {
	canon := Canonicalize(modelID)

	t.mu.RLock()
	row, ok := t.rows[canon]
	t.mu.RUnlock()

	if !ok {
		t.warnMissingOnce(requestId, modelID)
		return nil, false
	}
	return &row, true
}

func (t *Table) warnMissingOnce(requestId, modelID string) {
	key := requestId + "|" + modelID
	if _, found := t.warnOnce.Get(key); found {
		return
	}
	t.warnOnce.SetDefault(key, true)
	logger.Logger.Warn("no pricing row for model, defaulting cost to zero",
		zap.String("model", modelID), zap.String("request_id", requestId))
}

// row constructs a PricingRow from decimal-string prices, matching the
// external storage representation in §3.
func row(modelID, input, output, cacheRead, cacheCreation string) model.PricingRow {
	return model.PricingRow{
		ModelID:            modelID,
		InputPrice:         decimal.RequireFromString(input),
		OutputPrice:        decimal.RequireFromString(output),
		CacheReadPrice:     decimal.RequireFromString(cacheRead),
		CacheCreationPrice: decimal.RequireFromString(cacheCreation),
	}
}
