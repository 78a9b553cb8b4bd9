package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"risparmi/internal/core"
	"risparmi/internal/ledger"
)

// GoalFunder is the part of the goal pool the rollover needs.
type GoalFunder interface {
	List() []core.SavingsGoal
	Contribute(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, error)
}

// RolloverResult describes what StartNewPeriod did.
type RolloverResult struct {
	// ClosedPeriod is the YYYY-MM label of the month being closed.
	ClosedPeriod string          `json:"closed_period"`
	Remaining    decimal.Decimal `json:"remaining"`
	Saved        bool            `json:"saved"`
	GoalID       string          `json:"goal_id,omitempty"`
	GoalName     string          `json:"goal_name,omitempty"`
	Cleared      int             `json:"cleared"`
}

// RolloverService closes an accounting period: any positive remaining
// balance moves into the first goal, then the ledger is emptied.
type RolloverService struct {
	ledger ledger.Store
	goals  GoalFunder
	now    func() time.Time
	newID  func() string
}

func NewRolloverService(store ledger.Store, goals GoalFunder, now func() time.Time) *RolloverService {
	if now == nil {
		now = time.Now
	}
	return &RolloverService{ledger: store, goals: goals, now: now, newID: uuid.NewString}
}

func (s *RolloverService) StartNewPeriod(ctx context.Context) (RolloverResult, error) {
	now := s.now()
	txs, err := s.ledger.All(ctx)
	if err != nil {
		return RolloverResult{}, fmt.Errorf("read ledger: %w", err)
	}

	totals := core.ComputeTotals(txs)
	res := RolloverResult{
		ClosedPeriod: now.AddDate(0, 0, -now.Day()).Format("2006-01"),
		Remaining:    totals.Remaining,
		Cleared:      len(txs),
	}

	if goals := s.goals.List(); totals.Remaining.IsPositive() && len(goals) > 0 {
		goal := goals[0]
		// row first: a failed append must not leave the goal credited
		rowID := s.newID()
		err := s.ledger.Append(ctx, core.Transaction{
			ID:          rowID,
			Amount:      totals.Remaining,
			Description: fmt.Sprintf("%s (%s)", core.MonthlySavingsPrefix, res.ClosedPeriod),
			Date:        core.DateOf(now),
			Kind:        core.Expense,
		})
		if err != nil {
			return RolloverResult{}, fmt.Errorf("record monthly savings: %w", err)
		}
		if _, err := s.goals.Contribute(ctx, goal.ID, totals.Remaining); err != nil {
			if rmErr := s.ledger.Remove(ctx, rowID); rmErr != nil {
				slog.ErrorContext(ctx, "Failed to undo monthly savings row", "id", rowID, "error", rmErr)
			}
			return RolloverResult{}, fmt.Errorf("save remaining to %s: %w", goal.Name, err)
		}
		res.Saved, res.GoalID, res.GoalName = true, goal.ID, goal.Name
		res.Cleared++
	}

	if err := s.ledger.RemoveAll(ctx); err != nil {
		return RolloverResult{}, fmt.Errorf("clear ledger: %w", err)
	}

	slog.InfoContext(ctx, "Accounting period closed",
		"component", "rollover",
		"period", res.ClosedPeriod,
		"remaining", res.Remaining.String(),
		"saved", res.Saved,
		"goal_id", res.GoalID,
		"cleared", res.Cleared)
	return res, nil
}
