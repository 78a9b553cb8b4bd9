package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Descriptions of system-generated transfers. They are excluded from the
// category breakdown shown to the user.
const (
	SavedToPrefix        = "Saved to"
	AllRemainingPrefix   = "All remaining saved to"
	MonthlySavingsPrefix = "Monthly savings"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Totals is the income/expense summary of a set of transactions.
type Totals struct {
	Income    decimal.Decimal `json:"income"`
	Expense   decimal.Decimal `json:"expense"`
	Remaining decimal.Decimal `json:"remaining"`
}

// Statistics summarises the goal pool.
type Statistics struct {
	TotalTarget            decimal.Decimal `json:"total_target"`
	TotalCurrent           decimal.Decimal `json:"total_current"`
	AverageProgressPercent float64         `json:"average_progress_percent"`
	GoalCount              int             `json:"goal_count"`
}

// ComputeTotals folds a transaction set into income, expense and remaining.
func ComputeTotals(txs []Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		switch tx.Kind {
		case Income:
			t.Income = t.Income.Add(tx.Amount)
		case Expense:
			t.Expense = t.Expense.Add(tx.Amount)
		}
	}
	t.Remaining = t.Income.Sub(t.Expense)
	return t
}

// ExpenseByDescription sums EXPENSE transactions per description, in first-seen order.
func ExpenseByDescription(txs []Transaction) []CategoryAmount {
	index := map[string]int{}
	var out []CategoryAmount
	for _, tx := range txs {
		if tx.Kind != Expense {
			continue
		}
		i, ok := index[tx.Description]
		if !ok {
			i = len(out)
			index[tx.Description] = i
			out = append(out, CategoryAmount{Name: tx.Description})
		}
		out[i].Amount = out[i].Amount.Add(tx.Amount)
	}
	return out
}

// SpendingCategories is the user-facing breakdown: EXPENSE rows grouped by
// description, transfers into savings excluded, largest first.
func SpendingCategories(txs []Transaction) []CategoryAmount {
	filtered := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if IsSavingsTransfer(tx.Description) {
			continue
		}
		filtered = append(filtered, tx)
	}
	cats := ExpenseByDescription(filtered)
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Amount.GreaterThan(cats[j].Amount)
	})
	return cats
}

// IsSavingsTransfer reports whether a description was generated by a move into a goal.
func IsSavingsTransfer(description string) bool {
	return strings.HasPrefix(description, MonthlySavingsPrefix) ||
		strings.HasPrefix(description, SavedToPrefix) ||
		strings.HasPrefix(description, AllRemainingPrefix)
}
