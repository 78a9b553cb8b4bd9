package market

import (
	"context"
	"fmt"

	"risparmi/internal/core"
)

// Simulated serves canned expert tips and default market data without any
// network access.
type Simulated struct{}

func (Simulated) FinancialTips(context.Context) ([]core.SavingsTip, error) {
	return SimulatedTips(), nil
}

func (Simulated) MarketTrends(context.Context) (Trends, error) {
	return DefaultTrends(), nil
}

func (Simulated) SavingsRates(context.Context) (Rates, error) {
	return DefaultRates(), nil
}

// SimulatedTips returns a fresh copy of the canned tips.
func SimulatedTips() []core.SavingsTip {
	return []core.SavingsTip{
		{
			Title:       "Emergency Fund First",
			Description: "Financial experts recommend building an emergency fund covering 3-6 months of expenses before focusing on other financial goals.",
			Impact:      core.ImpactHigh,
			Actionable:  true,
			Source:      "Financial Experts",
		},
		{
			Title:       "Debt Snowball Method",
			Description: "Pay off your smallest debts first to build momentum, then tackle larger debts. This psychological win can help maintain motivation.",
			Impact:      core.ImpactMedium,
			Actionable:  true,
			Source:      "Financial Experts",
		},
		{
			Title:       "Current Market Trend: Inflation Concerns",
			Description: "With current inflation trends, consider allocating some savings to inflation-protected securities or assets that typically perform well during inflation.",
			Impact:      core.ImpactMedium,
			Actionable:  true,
			Source:      "Market Analysis",
		},
		{
			Title:       "High-Yield Savings Accounts",
			Description: "Current high-yield savings accounts are offering competitive rates around 4-5% APY, significantly higher than traditional savings accounts.",
			Impact:      core.ImpactMedium,
			Actionable:  true,
			Source:      "Market Analysis",
		},
	}
}

// Offline fails every request, forcing callers onto their fallback content.
type Offline struct{}

var errOffline = fmt.Errorf("%w: advice mode is offline", core.ErrNetworkUnavailable)

func (Offline) FinancialTips(context.Context) ([]core.SavingsTip, error) {
	return nil, errOffline
}

func (Offline) MarketTrends(context.Context) (Trends, error) {
	return Trends{}, errOffline
}

func (Offline) SavingsRates(context.Context) (Rates, error) {
	return Rates{}, errOffline
}
