package model

import "github.com/shopspring/decimal"

// TokenUsage is the family-agnostic token count extracted from a response.
// Zero-value fields mean "not present" is represented by the caller checking
// the parser's returned bool, not by this struct alone.
type TokenUsage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	// Model is the model name extracted from the response body, when present.
	Model string
}

// CostBreakdown holds the decimal cost of each token category plus their sum.
// All arithmetic is done in decimal.Decimal to satisfy the no-drift invariant.
type CostBreakdown struct {
	InputCost          decimal.Decimal
	OutputCost         decimal.Decimal
	CacheReadCost      decimal.Decimal
	CacheCreationCost  decimal.Decimal
	TotalCost          decimal.Decimal
}

// PricingRow is a single model's per-million-token prices, in USD.
type PricingRow struct {
	ModelID          string
	InputPrice       decimal.Decimal
	OutputPrice      decimal.Decimal
	CacheReadPrice   decimal.Decimal
	CacheCreationPrice decimal.Decimal
}

// perMillion divides tokens by one million token units before pricing.
var perMillion = decimal.NewFromInt(1_000_000)

// ComputeCost applies §3's formula: cost_x = tokens_x * price_x / 1_000_000 * multiplier.
func ComputeCost(usage TokenUsage, row *PricingRow, multiplier decimal.Decimal) CostBreakdown {
	if row == nil {
		zero := decimal.Zero
		return CostBreakdown{InputCost: zero, OutputCost: zero, CacheReadCost: zero, CacheCreationCost: zero, TotalCost: zero}
	}

	input := decimal.NewFromInt(usage.InputTokens).Mul(row.InputPrice).Div(perMillion).Mul(multiplier)
	output := decimal.NewFromInt(usage.OutputTokens).Mul(row.OutputPrice).Div(perMillion).Mul(multiplier)
	cacheRead := decimal.NewFromInt(usage.CacheReadTokens).Mul(row.CacheReadPrice).Div(perMillion).Mul(multiplier)
	cacheCreation := decimal.NewFromInt(usage.CacheCreationTokens).Mul(row.CacheCreationPrice).Div(perMillion).Mul(multiplier)

	return CostBreakdown{
		InputCost:         input,
		OutputCost:        output,
		CacheReadCost:     cacheRead,
		CacheCreationCost: cacheCreation,
		TotalCost:         input.Add(output).Add(cacheRead).Add(cacheCreation),
	}
}
