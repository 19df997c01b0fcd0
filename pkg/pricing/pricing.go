// Package pricing converts metered usage into USD and platform credits.
//
// All arithmetic is exact decimal: credits are charged with a ceiling, so a
// binary floating point error of 1e-16 would otherwise turn into a whole
// extra credit on the invoice.
package pricing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/zen-systems/nexus/pkg/registry"
)

// CreditConversionRate is the number of credits per US dollar.
const CreditConversionRate = 100

// USDPlaces is the number of decimal places cost_usd is rounded to.
const USDPlaces = 6

var (
	thousand   = decimal.NewFromInt(1000)
	conversion = decimal.NewFromInt(CreditConversionRate)
)

// UsageRecord is the metered usage of a single request.
type UsageRecord struct {
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	CostUSD          decimal.Decimal `json:"cost_usd"`
	CostCredits      int64           `json:"cost_credits"`
	Estimated        bool            `json:"estimated,omitempty"`
}

type usageJSON struct {
	PromptTokens     int         `json:"prompt_tokens"`
	CompletionTokens int         `json:"completion_tokens"`
	TotalTokens      int         `json:"total_tokens"`
	CostUSD          json.Number `json:"cost_usd"`
	CostCredits      int64       `json:"cost_credits"`
	Estimated        bool        `json:"estimated,omitempty"`
}

// MarshalJSON emits cost_usd as a JSON number rather than a quoted string.
func (u UsageRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(usageJSON{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		CostUSD:          json.Number(u.CostUSD.StringFixed(USDPlaces)),
		CostCredits:      u.CostCredits,
		Estimated:        u.Estimated,
	})
}

// UnmarshalJSON accepts cost_usd as a number or a string.
func (u *UsageRecord) UnmarshalJSON(data []byte) error {
	var raw usageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cost := decimal.Zero
	if raw.CostUSD != "" {
		d, err := decimal.NewFromString(raw.CostUSD.String())
		if err != nil {
			return fmt.Errorf("cost_usd: %w", err)
		}
		cost = d
	}
	*u = UsageRecord{
		PromptTokens:     raw.PromptTokens,
		CompletionTokens: raw.CompletionTokens,
		TotalTokens:      raw.TotalTokens,
		CostUSD:          cost,
		CostCredits:      raw.CostCredits,
		Estimated:        raw.Estimated,
	}
	return nil
}

// Compute prices the token counts in usage against the model's rates.
// Only the token counts and the estimate flag of usage are read.
func Compute(usage UsageRecord, model registry.ModelDescriptor) UsageRecord {
	prompt := clamp(usage.PromptTokens)
	completion := clamp(usage.CompletionTokens)

	// rates are credits per 1K tokens; dividing by the conversion rate gives USD
	inputUSD := decimal.NewFromInt(int64(prompt)).Div(thousand).Mul(model.InputRate).Div(conversion)
	outputUSD := decimal.NewFromInt(int64(completion)).Div(thousand).Mul(model.OutputRate).Div(conversion)
	costUSD := inputUSD.Add(outputUSD).Round(USDPlaces)

	return UsageRecord{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		CostUSD:          costUSD,
		CostCredits:      Credits(costUSD),
		Estimated:        usage.Estimated,
	}
}

// Credits converts a USD amount to credits, rounding up.
func Credits(usd decimal.Decimal) int64 {
	if !usd.IsPositive() {
		return 0
	}
	return usd.Mul(conversion).Ceil().IntPart()
}

// ComputeFlat returns the credit cost of one non-token unit.
func ComputeFlat(reg *registry.Registry, unit registry.UnitKind, tier string) (int64, error) {
	return reg.FlatCost(unit, tier)
}

// FlatUsage builds the usage record for a flat-priced unit.
func FlatUsage(credits int64) UsageRecord {
	return UsageRecord{
		CostUSD:     decimal.NewFromInt(credits).Div(conversion).Round(USDPlaces),
		CostCredits: credits,
	}
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
