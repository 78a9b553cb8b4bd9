// Package goals holds the in-memory pool of savings goals and the operations
// that move money between them.
package goals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"risparmi/internal/broadcast"
	"risparmi/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Pool owns every SavingsGoal. Mutations are serialised by mu so that
// Redistribute always works from one consistent snapshot of the pool.
type Pool struct {
	mu    sync.Mutex
	goals []core.SavingsGoal
	index map[string]int

	newID func() string
	hub   broadcast.Broadcaster[[]core.SavingsGoal]
}

// Option configures a Pool.
type Option func(*Pool)

// WithIDGenerator overrides the uuid generator, mainly for tests.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pool) { p.newID = gen }
}

// NewPool returns an empty pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		index: make(map[string]int),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.hub.Publish(nil)
	return p
}

// CreateGoal appends a goal with a zero balance.
func (p *Pool) CreateGoal(ctx context.Context, name string, target decimal.Decimal) (core.SavingsGoal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.SavingsGoal{}, fmt.Errorf("%w: goal name is empty", core.ErrInvalidArgument)
	}
	if !target.IsPositive() {
		return core.SavingsGoal{}, fmt.Errorf("%w: target amount must be positive, got %s", core.ErrInvalidArgument, target)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	g := core.SavingsGoal{
		ID:            p.newID(),
		Name:          name,
		TargetAmount:  target,
		CurrentAmount: decimal.Zero,
	}
	p.index[g.ID] = len(p.goals)
	p.goals = append(p.goals, g)
	p.publishLocked()

	slog.InfoContext(ctx, "Savings goal created", "goal_id", g.ID, "name", g.Name, "target", g.TargetAmount.String())
	return g, nil
}

// Contribute adds amount to a single goal; no other goal changes.
func (p *Pool) Contribute(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, error) {
	if !amount.IsPositive() {
		return core.SavingsGoal{}, fmt.Errorf("%w: contribution must be positive, got %s", core.ErrInvalidArgument, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.index[id]
	if !ok {
		return core.SavingsGoal{}, fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	next := make([]core.SavingsGoal, len(p.goals))
	copy(next, p.goals)
	next[i].CurrentAmount = next[i].CurrentAmount.Add(amount)
	p.goals = next
	p.publishLocked()

	slog.InfoContext(ctx, "Savings goal contribution", "goal_id", id, "amount", amount.String(), "current", next[i].CurrentAmount.String())
	return next[i], nil
}

// Redistribute credits amount to the target goal and debits every other goal
// g by g.current*amount/T, where T is the pool total before the call. The
// target's own share is not debited, so the pool total grows by
// target.current*amount/T.
func (p *Pool) Redistribute(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, error) {
	if amount.IsNegative() {
		return core.SavingsGoal{}, fmt.Errorf("%w: amount must not be negative, got %s", core.ErrInvalidArgument, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.index[id]
	if !ok {
		return core.SavingsGoal{}, fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}

	total := sumCurrent(p.goals)
	if amount.GreaterThan(total) {
		return core.SavingsGoal{}, fmt.Errorf("redistribute %s from pool total %s: %w", amount, total, core.ErrInsufficientFunds)
	}
	if total.IsZero() {
		// amount is zero here, anything else failed the check above
		return p.goals[i], nil
	}

	next := make([]core.SavingsGoal, len(p.goals))
	for j, g := range p.goals {
		if j == i {
			g.CurrentAmount = g.CurrentAmount.Add(amount)
		} else {
			debit := g.CurrentAmount.Mul(amount).Div(total)
			g.CurrentAmount = g.CurrentAmount.Sub(debit)
			if g.CurrentAmount.IsNegative() {
				g.CurrentAmount = decimal.Zero
			}
		}
		next[j] = g
	}
	p.goals = next
	p.publishLocked()

	slog.InfoContext(ctx, "Savings redistributed",
		"goal_id", id,
		"amount", amount.String(),
		"pool_total_before", total.String(),
		"pool_total_after", sumCurrent(next).String())
	return next[i], nil
}

// DeleteGoal removes a goal. Its balance is forfeited, not redistributed.
func (p *Pool) DeleteGoal(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.index[id]
	if !ok {
		return fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	next := make([]core.SavingsGoal, 0, len(p.goals)-1)
	next = append(next, p.goals[:i]...)
	next = append(next, p.goals[i+1:]...)
	p.goals = next
	p.reindexLocked()
	p.publishLocked()

	slog.InfoContext(ctx, "Savings goal deleted", "goal_id", id)
	return nil
}

// Reset removes every goal.
func (p *Pool) Reset(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.goals = nil
	p.index = make(map[string]int)
	p.publishLocked()
	slog.InfoContext(ctx, "Savings goals cleared")
}

// Get returns a copy of one goal.
func (p *Pool) Get(id string) (core.SavingsGoal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.index[id]
	if !ok {
		return core.SavingsGoal{}, fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	return p.goals[i], nil
}

// List returns the goals in creation order.
func (p *Pool) List() []core.SavingsGoal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.SavingsGoal, len(p.goals))
	copy(out, p.goals)
	return out
}

// Statistics summarises the pool.
func (p *Pool) Statistics() core.Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return statisticsOf(p.goals)
}

// Subscribe streams a fresh snapshot after every mutation. The current
// snapshot is delivered immediately.
func (p *Pool) Subscribe() (<-chan []core.SavingsGoal, func()) {
	return p.hub.Subscribe()
}

// StatisticsOf computes pool statistics for an arbitrary snapshot.
func StatisticsOf(goals []core.SavingsGoal) core.Statistics {
	return statisticsOf(goals)
}

func statisticsOf(goals []core.SavingsGoal) core.Statistics {
	var st core.Statistics
	for _, g := range goals {
		st.TotalTarget = st.TotalTarget.Add(g.TargetAmount)
		st.TotalCurrent = st.TotalCurrent.Add(g.CurrentAmount)
	}
	st.GoalCount = len(goals)
	if st.TotalTarget.IsPositive() {
		st.AverageProgressPercent = st.TotalCurrent.Mul(hundred).Div(st.TotalTarget).InexactFloat64()
	}
	return st
}

func sumCurrent(goals []core.SavingsGoal) decimal.Decimal {
	total := decimal.Zero
	for _, g := range goals {
		total = total.Add(g.CurrentAmount)
	}
	return total
}

func (p *Pool) reindexLocked() {
	p.index = make(map[string]int, len(p.goals))
	for i, g := range p.goals {
		p.index[g.ID] = i
	}
}

// publishLocked hands out p.goals directly. Published elements are never
// written again; mutations copy into a new backing array and CreateGoal only
// appends past the published length.
func (p *Pool) publishLocked() {
	p.hub.Publish(p.goals)
}
