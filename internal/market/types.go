// Package market fetches financial tips, market trends and savings rates from
// the remote advice API, and provides simulated and offline stand-ins.
package market

import (
	"bytes"
	"encoding/json"
	"fmt"

	"risparmi/internal/core"
)

const (
	DefaultInterestRateTrend = "stable"
	DefaultStockMarketTrend  = "stable"
	DefaultInflationRate     = 2.0
	DefaultHighYieldRate     = 0.5
	DefaultCDRate            = 1.0
	DefaultTreasuryBondRate  = 1.5
)

// Trends is the market-trends dataset. Absent fields take the Default* values.
type Trends struct {
	InterestRateTrend string  `json:"interestRateTrend"`
	StockMarketTrend  string  `json:"stockMarketTrend"`
	InflationRate     float64 `json:"inflationRate"`
}

// Rates is the savings-rates dataset. Absent fields take the Default* values.
type Rates struct {
	HighYieldSavingsRate float64 `json:"highYieldSavingsRate"`
	CDRate               float64 `json:"cdRate"`
	TreasuryBondRate     float64 `json:"treasuryBondRate"`
}

func DefaultTrends() Trends {
	return Trends{
		InterestRateTrend: DefaultInterestRateTrend,
		StockMarketTrend:  DefaultStockMarketTrend,
		InflationRate:     DefaultInflationRate,
	}
}

func DefaultRates() Rates {
	return Rates{
		HighYieldSavingsRate: DefaultHighYieldRate,
		CDRate:               DefaultCDRate,
		TreasuryBondRate:     DefaultTreasuryBondRate,
	}
}

// expectTopLevel rejects payloads whose top-level JSON value is not the
// expected object ('{') or array ('['). Unmarshal accepts null for both.
func expectTopLevel(body []byte, open byte, what string) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != open {
		return fmt.Errorf("decode %s: unexpected top-level value", what)
	}
	return nil
}

// DecodeTrends parses a trends payload, filling in defaults for missing fields.
func DecodeTrends(body []byte) (Trends, error) {
	var raw struct {
		InterestRateTrend *string  `json:"interestRateTrend"`
		StockMarketTrend  *string  `json:"stockMarketTrend"`
		InflationRate     *float64 `json:"inflationRate"`
	}
	if err := expectTopLevel(body, '{', "market trends"); err != nil {
		return Trends{}, err
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Trends{}, fmt.Errorf("decode market trends: %w", err)
	}
	t := DefaultTrends()
	if raw.InterestRateTrend != nil {
		t.InterestRateTrend = *raw.InterestRateTrend
	}
	if raw.StockMarketTrend != nil {
		t.StockMarketTrend = *raw.StockMarketTrend
	}
	if raw.InflationRate != nil {
		t.InflationRate = *raw.InflationRate
	}
	return t, nil
}

// DecodeRates parses a savings-rates payload, filling in defaults for missing fields.
func DecodeRates(body []byte) (Rates, error) {
	var raw struct {
		HighYieldSavingsRate *float64 `json:"highYieldSavingsRate"`
		CDRate               *float64 `json:"cdRate"`
		TreasuryBondRate     *float64 `json:"treasuryBondRate"`
	}
	if err := expectTopLevel(body, '{', "savings rates"); err != nil {
		return Rates{}, err
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Rates{}, fmt.Errorf("decode savings rates: %w", err)
	}
	r := DefaultRates()
	if raw.HighYieldSavingsRate != nil {
		r.HighYieldSavingsRate = *raw.HighYieldSavingsRate
	}
	if raw.CDRate != nil {
		r.CDRate = *raw.CDRate
	}
	if raw.TreasuryBondRate != nil {
		r.TreasuryBondRate = *raw.TreasuryBondRate
	}
	return r, nil
}

// DecodeTips parses the tips array. Every element needs a title, a
// description, an impact and an actionable flag; unknown impact labels
// become Low. The Source of each returned tip is left empty.
func DecodeTips(body []byte) ([]core.SavingsTip, error) {
	var raw []struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Impact      *string `json:"impact"`
		Actionable  *bool   `json:"actionable"`
	}
	if err := expectTopLevel(body, '[', "financial tips"); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode financial tips: %w", err)
	}
	tips := make([]core.SavingsTip, 0, len(raw))
	for i, r := range raw {
		if r.Title == nil || r.Description == nil || r.Impact == nil || r.Actionable == nil {
			return nil, fmt.Errorf("decode financial tips: element %d is missing a required field", i)
		}
		tips = append(tips, core.SavingsTip{
			Title:       *r.Title,
			Description: *r.Description,
			Impact:      core.ParseImpact(*r.Impact),
			Actionable:  *r.Actionable,
		})
	}
	return tips, nil
}
