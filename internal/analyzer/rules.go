package analyzer

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"risparmi/internal/core"
	"risparmi/internal/market"
)

const (
	SourceLocal         = "Local"
	SourceRemote        = "Financial API"
	SourceLocalAnalysis = "Local Analysis"
	SourceMarket        = "Market Analysis"
	SourceCombined      = "Combined Analysis"

	lowRatio          = 1.1
	highRatio         = 2.0
	categoryThreshold = 30.0
	topCategories     = 3
)

var hundred = decimal.NewFromInt(100)

// NetworkErrorTip is appended in place of remote tips when they cannot be fetched.
func NetworkErrorTip() core.SavingsTip {
	return core.SavingsTip{
		Title:       "Network Error",
		Description: "Unable to fetch online financial tips. Check your internet connection for more personalized advice.",
		Impact:      core.ImpactLow,
		Actionable:  false,
		Source:      SourceLocal,
	}
}

// LocalTips applies the income/expense ratio and category share rules.
// Category shares are taken against the expense argument, not the sum of
// the transactions.
func LocalTips(txs []core.Transaction, income, expense decimal.Decimal) []core.SavingsTip {
	var tips []core.SavingsTip

	if expense.IsPositive() {
		ratio := income.Div(expense).InexactFloat64()
		switch {
		case ratio < lowRatio:
			tips = append(tips, core.SavingsTip{
				Title:       "Low Income-Expense Ratio",
				Description: "Your income is only slightly higher than your expenses. Consider controlling spending or increasing income sources.",
				Impact:      core.ImpactHigh,
				Actionable:  true,
				Source:      SourceLocal,
			})
		case ratio > highRatio:
			tips = append(tips, core.SavingsTip{
				Title:       "High Savings Potential",
				Description: "Your income is much higher than your expenses, indicating high savings potential. Consider putting excess funds into savings or investments.",
				Impact:      core.ImpactHigh,
				Actionable:  true,
				Source:      SourceLocal,
			})
		}
	}

	for _, c := range topCategoryShares(txs, expense) {
		if c.percent <= categoryThreshold {
			continue
		}
		tips = append(tips, core.SavingsTip{
			Title: fmt.Sprintf("Reduce %s Spending", c.name),
			Description: fmt.Sprintf("%s accounts for %.1f%% of your total expenses, which is relatively high. Consider reducing spending in this area.",
				c.name, c.percent),
			Impact:     core.ImpactMedium,
			Actionable: true,
			Source:     SourceLocal,
		})
	}
	return tips
}

type categoryShare struct {
	name    string
	percent float64
}

// topCategoryShares returns up to three categories by share of expense,
// largest first. Ties keep first-seen order.
func topCategoryShares(txs []core.Transaction, expense decimal.Decimal) []categoryShare {
	cats := core.ExpenseByDescription(txs)
	shares := make([]categoryShare, 0, len(cats))
	for _, c := range cats {
		var pct float64
		if expense.IsPositive() {
			pct = c.Amount.Div(expense).Mul(hundred).InexactFloat64()
		}
		shares = append(shares, categoryShare{name: c.Name, percent: pct})
	}
	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].percent > shares[j].percent
	})
	if len(shares) > topCategories {
		shares = shares[:topCategories]
	}
	return shares
}

// SavingsPotential is (income-expense)/income, or 0 without income.
func SavingsPotential(income, expense decimal.Decimal) float64 {
	if !income.IsPositive() {
		return 0
	}
	return income.Sub(expense).Div(income).InexactFloat64()
}

// Volatility is the coefficient of variation (population standard deviation
// over mean) of monthly expense totals. With fewer than two months of data
// it is 1.0, and a zero mean counts as maximally unstable (1.0) too.
func Volatility(txs []core.Transaction) float64 {
	index := map[string]int{}
	var sums []decimal.Decimal
	for _, tx := range txs {
		if tx.Kind != core.Expense {
			continue
		}
		key := tx.Date.MonthKey()
		i, ok := index[key]
		if !ok {
			i = len(sums)
			index[key] = i
			sums = append(sums, decimal.Zero)
		}
		sums[i] = sums[i].Add(tx.Amount)
	}
	if len(sums) < 2 {
		return 1.0
	}
	totals := make([]float64, len(sums))
	for i, s := range sums {
		totals[i] = s.InexactFloat64()
	}
	mean, std := stat.PopMeanStdDev(totals, nil)
	if mean == 0 {
		return 1.0
	}
	return std / mean
}

// BaselineMethod picks the local recommendation from savings potential and
// expense volatility.
func BaselineMethod(potential, volatility float64) core.RecommendedMethod {
	pct := int(potential * 100)
	switch {
	case potential > 0.3 && volatility < 0.2:
		return core.RecommendedMethod{
			Title:            "Regular Savings Plan",
			Description:      fmt.Sprintf("Your income is stable with high savings potential. Consider setting up automatic transfers to save %d%% of your income regularly.", pct),
			SuitabilityScore: 9,
			Source:           SourceLocalAnalysis,
		}
	case potential > 0.1 && volatility < 0.5:
		return core.RecommendedMethod{
			Title:            "Flexible Savings Plan",
			Description:      fmt.Sprintf("Your spending pattern has some fluctuations. Consider saving a small portion (about %d%%) immediately after receiving income, and adjust the rest based on monthly circumstances.", pct),
			SuitabilityScore: 8,
			Source:           SourceLocalAnalysis,
		}
	default:
		return core.RecommendedMethod{
			Title:            "Small Change Savings Method",
			Description:      "Your spending pattern is highly variable or your savings space is limited. Consider using the small change savings method, saving spare change or a fixed small amount (like $5) after each purchase.",
			SuitabilityScore: 7,
			Source:           SourceLocalAnalysis,
		}
	}
}

// EnhanceWithMarket overrides the baseline using live market data. The first
// matching rule wins: high inflation, then rising rates, then a calm stock
// market; otherwise the baseline is kept with the current savings rate noted.
func EnhanceWithMarket(base core.RecommendedMethod, trends market.Trends, rates market.Rates, potential float64) core.RecommendedMethod {
	switch {
	case trends.InflationRate > 4.0:
		return core.RecommendedMethod{
			Title: "Inflation-Protected Investment Strategy",
			Description: fmt.Sprintf("Current inflation rate is high at %.1f%%. "+
				"Consider allocating some savings to inflation-protected securities (TIPS) or "+
				"other assets that typically perform well during inflation.", trends.InflationRate),
			SuitabilityScore: 9,
			Source:           SourceMarket,
		}
	case trends.InterestRateTrend == "rising" && potential > 0.2:
		return core.RecommendedMethod{
			Title: "High-Yield Savings Strategy",
			Description: fmt.Sprintf("Interest rates are rising. Current high-yield savings accounts offer "+
				"around %.2f%% APY. Consider allocating funds to high-yield savings accounts or CDs with "+
				"%.2f%% rates for safe returns.", rates.HighYieldSavingsRate, rates.CDRate),
			SuitabilityScore: 8,
			Source:           SourceMarket,
		}
	case (trends.StockMarketTrend == "stable" || trends.StockMarketTrend == "bullish") && potential > 0.15:
		return core.RecommendedMethod{
			Title: "Balanced Investment Strategy",
			Description: fmt.Sprintf("The stock market is currently %s. "+
				"Consider a balanced approach: keep emergency funds in high-yield savings "+
				"(%.2f%% APY) and invest remaining savings in a diversified portfolio for long-term growth.",
				trends.StockMarketTrend, rates.HighYieldSavingsRate),
			SuitabilityScore: 9,
			Source:           SourceMarket,
		}
	default:
		return core.RecommendedMethod{
			Title:            base.Title,
			Description:      fmt.Sprintf("%s Current high-yield savings accounts offer around %.2f%% APY.", base.Description, rates.HighYieldSavingsRate),
			SuitabilityScore: base.SuitabilityScore,
			Source:           SourceCombined,
		}
	}
}
