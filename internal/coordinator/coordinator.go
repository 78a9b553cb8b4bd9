// Package coordinator derives the view state of the app from the ledger and
// the goal pool, keeps savings advice current and publishes one consolidated
// snapshot to every client.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"risparmi/internal/analyzer"
	"risparmi/internal/broadcast"
	"risparmi/internal/core"
	"risparmi/internal/goals"
	"risparmi/internal/ledger"
	"risparmi/internal/services"
)

// GoalPool is the goal surface the coordinator drives.
type GoalPool interface {
	CreateGoal(ctx context.Context, name string, target decimal.Decimal) (core.SavingsGoal, error)
	Contribute(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, error)
	Redistribute(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, error)
	DeleteGoal(ctx context.Context, id string) error
	Get(id string) (core.SavingsGoal, error)
	List() []core.SavingsGoal
	Reset(ctx context.Context)
	Subscribe() (<-chan []core.SavingsGoal, func())
}

// Advisor produces savings advice. Analyze must not block past ctx.
type Advisor interface {
	Analyze(ctx context.Context, txs []core.Transaction, income, expense decimal.Decimal) analyzer.Advice
}

// PeriodCloser starts a new accounting period.
type PeriodCloser interface {
	StartNewPeriod(ctx context.Context) (services.RolloverResult, error)
}

// Display holds preformatted amounts for clients that do not format money.
type Display struct {
	Income      string `json:"income"`
	Expense     string `json:"expense"`
	Remaining   string `json:"remaining"`
	TotalSaved  string `json:"total_saved"`
	TotalTarget string `json:"total_target"`
}

// Snapshot is an immutable view of the whole app state. Receivers must not
// modify its slices.
type Snapshot struct {
	Version       uint64                  `json:"version"`
	Transactions  []core.Transaction      `json:"transactions"`
	Goals         []core.SavingsGoal      `json:"goals"`
	Totals        core.Totals             `json:"totals"`
	Categories    []core.CategoryAmount   `json:"categories"`
	Statistics    core.Statistics         `json:"statistics"`
	Tips          []core.SavingsTip       `json:"tips"`
	Method        *core.RecommendedMethod `json:"method,omitempty"`
	LoadingAdvice bool                    `json:"loading_advice"`
	AdviceError   string                  `json:"advice_error,omitempty"`
	Currency      string                  `json:"currency"`
	Display       Display                 `json:"display"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now for the dates of new transactions.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) { c.newID = gen }
}

// WithAdviceTimeout bounds a whole advice run. Zero leaves it unbounded.
func WithAdviceTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.adviceTimeout = d }
}

type Coordinator struct {
	ledger   ledger.Store
	goals    GoalPool
	advisor  Advisor
	rollover PeriodCloser
	format   *core.Formatter

	now           func() time.Time
	newID         func() string
	adviceTimeout time.Duration

	mu   sync.Mutex
	snap Snapshot
	hub  broadcast.Broadcaster[Snapshot]

	// advice request state, guarded by mu
	adviceSeq      uint64
	adviceKey      string
	adviceInFlight bool
	adviceCancel   context.CancelFunc

	ctx     context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

func New(store ledger.Store, pool GoalPool, advisor Advisor, rollover PeriodCloser, format *core.Formatter, opts ...Option) *Coordinator {
	c := &Coordinator{
		ledger:   store,
		goals:    pool,
		advisor:  advisor,
		rollover: rollover,
		format:   format,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.stop = context.WithCancel(context.Background())
	c.snap = Snapshot{Currency: format.Currency()}
	c.snap.Display = c.display(c.snap.Totals, c.snap.Statistics)
	c.hub.Publish(c.snap)
	return c
}

// Start follows the ledger and the goal pool until Close. Calling it twice is
// a no-op.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	txCh, cancelTx := c.ledger.Subscribe()
	goalCh, cancelGoals := c.goals.Subscribe()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancelTx()
		defer cancelGoals()
		c.follow(txCh, goalCh)
	}()
}

func (c *Coordinator) follow(txCh <-chan []core.Transaction, goalCh <-chan []core.SavingsGoal) {
	for txCh != nil || goalCh != nil {
		select {
		case <-c.ctx.Done():
			return
		case txs, ok := <-txCh:
			if !ok {
				txCh = nil
				continue
			}
			c.onTransactions(txs)
		case gs, ok := <-goalCh:
			if !ok {
				goalCh = nil
				continue
			}
			c.onGoals(gs)
		}
	}
}

func (c *Coordinator) onTransactions(txs []core.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Transactions = txs
	c.snap.Totals = core.ComputeTotals(txs)
	c.snap.Categories = core.SpendingCategories(txs)
	c.requestAdviceLocked(false)
}

func (c *Coordinator) onGoals(gs []core.SavingsGoal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Goals = gs
	c.snap.Statistics = goals.StatisticsOf(gs)
	c.publishLocked()
}

// Snapshot returns the latest published state.
func (c *Coordinator) Snapshot() Snapshot {
	s, _ := c.hub.Latest()
	return s
}

// Subscribe delivers every new snapshot, starting with the current one.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	return c.hub.Subscribe()
}

// RefreshAdvice reruns the analyzer on the current transactions, replacing
// any run in flight.
func (c *Coordinator) RefreshAdvice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestAdviceLocked(true)
}

// requestAdviceLocked starts an advice run for the current transactions and
// publishes the loading state. Unless forced, a request whose input matches
// the run already in flight is dropped.
func (c *Coordinator) requestAdviceLocked(force bool) {
	if c.closed {
		return
	}
	txs, totals := c.snap.Transactions, c.snap.Totals
	key := adviceKey(txs)
	if !force && c.adviceInFlight && key == c.adviceKey {
		slog.Debug("Advice request coalesced", "component", "coordinator", "transactions", len(txs))
		c.publishLocked()
		return
	}
	if c.adviceCancel != nil {
		c.adviceCancel()
	}

	c.adviceSeq++
	seq := c.adviceSeq
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.adviceTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.adviceTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.adviceKey, c.adviceInFlight, c.adviceCancel = key, true, cancel
	c.snap.LoadingAdvice = true
	c.snap.AdviceError = ""
	c.publishLocked()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		advice, err := c.analyze(ctx, txs, totals)

		c.mu.Lock()
		defer c.mu.Unlock()
		if seq != c.adviceSeq {
			return // superseded
		}
		c.adviceInFlight, c.adviceCancel = false, nil
		c.snap.LoadingAdvice = false
		if err != nil {
			slog.Error("Advice run failed", "component", "coordinator", "error", err)
			c.snap.AdviceError = "Failed to fetch financial advice: " + err.Error()
		} else {
			method := advice.Method
			c.snap.Tips = advice.Tips
			c.snap.Method = &method
		}
		c.publishLocked()
	}()
}

func (c *Coordinator) analyze(ctx context.Context, txs []core.Transaction, totals core.Totals) (advice analyzer.Advice, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return c.advisor.Analyze(ctx, txs, totals.Income, totals.Expense), nil
}

// AddTransaction records a user transaction dated today.
func (c *Coordinator) AddTransaction(ctx context.Context, kind core.Kind, amount decimal.Decimal, description string) (core.Transaction, error) {
	if !amount.IsPositive() {
		return core.Transaction{}, core.ErrInvalidAmount
	}
	tx := core.Transaction{
		ID:          c.newID(),
		Amount:      amount,
		Description: strings.TrimSpace(description),
		Date:        core.DateOf(c.now()),
		Kind:        kind,
	}
	if err := c.ledger.Append(ctx, tx); err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction added",
		"component", "coordinator",
		"id", tx.ID,
		"kind", tx.Kind,
		"amount", tx.Amount.String())
	return tx, nil
}

func (c *Coordinator) DeleteTransaction(ctx context.Context, id string) error {
	return c.ledger.Remove(ctx, id)
}

// ClearTransactions empties the ledger without touching the goals.
func (c *Coordinator) ClearTransactions(ctx context.Context) error {
	return c.ledger.RemoveAll(ctx)
}

// ClearAllData empties the ledger and removes every goal.
func (c *Coordinator) ClearAllData(ctx context.Context) error {
	if err := c.ledger.RemoveAll(ctx); err != nil {
		return err
	}
	c.goals.Reset(ctx)
	return nil
}

// AddToSavings moves amount into a goal and records the transfer as an
// expense.
func (c *Coordinator) AddToSavings(ctx context.Context, goalID string, amount decimal.Decimal) (core.SavingsGoal, error) {
	return c.transfer(ctx, goalID, amount, core.SavedToPrefix)
}

// AddAllRemainingToSavings moves the whole remaining balance into a goal.
// It fails with core.ErrInvalidArgument when nothing remains.
func (c *Coordinator) AddAllRemainingToSavings(ctx context.Context, goalID string) (core.SavingsGoal, error) {
	txs, err := c.ledger.All(ctx)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("read ledger: %w", err)
	}
	remaining := core.ComputeTotals(txs).Remaining
	if !remaining.IsPositive() {
		return core.SavingsGoal{}, fmt.Errorf("%w: no remaining balance to save", core.ErrInvalidArgument)
	}
	return c.transfer(ctx, goalID, remaining, core.AllRemainingPrefix)
}

func (c *Coordinator) transfer(ctx context.Context, goalID string, amount decimal.Decimal, prefix string) (core.SavingsGoal, error) {
	goal, err := c.goals.Contribute(ctx, goalID, amount)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if _, err := c.AddTransaction(ctx, core.Expense, amount, prefix+" "+goal.Name); err != nil {
		// the goal keeps the contribution; the ledger just lacks the matching row
		slog.ErrorContext(ctx, "Failed to record savings transfer",
			"component", "coordinator",
			"goal_id", goal.ID,
			"amount", amount.String(),
			"error", err)
		return goal, fmt.Errorf("record transfer to %s: %w", goal.Name, err)
	}
	return goal, nil
}

// StartNewPeriod closes the current accounting period.
func (c *Coordinator) StartNewPeriod(ctx context.Context) (services.RolloverResult, error) {
	if c.rollover == nil {
		return services.RolloverResult{}, errors.New("period rollover not configured")
	}
	return c.rollover.StartNewPeriod(ctx)
}

func (c *Coordinator) CreateGoal(ctx context.Context, name string, target decimal.Decimal) (core.SavingsGoal, error) {
	return c.goals.CreateGoal(ctx, name, target)
}

func (c *Coordinator) DeleteGoal(ctx context.Context, id string) error {
	return c.goals.DeleteGoal(ctx, id)
}

func (c *Coordinator) Contribute(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, error) {
	return c.goals.Contribute(ctx, id, amount)
}

func (c *Coordinator) Redistribute(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, error) {
	return c.goals.Redistribute(ctx, id, amount)
}

// Goals reads the pool directly, so it reflects writes that the snapshot
// has not caught up with yet.
func (c *Coordinator) Goals() []core.SavingsGoal {
	return c.goals.List()
}

func (c *Coordinator) GoalStatistics() core.Statistics {
	return goals.StatisticsOf(c.goals.List())
}

// Transactions reads the ledger directly.
func (c *Coordinator) Transactions(ctx context.Context) ([]core.Transaction, error) {
	return c.ledger.All(ctx)
}

// Close stops following the stores and cancels any advice run. Advice
// requests after Close are ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
	c.hub.Close()
}

func (c *Coordinator) publishLocked() {
	c.snap.Version++
	c.snap.Display = c.display(c.snap.Totals, c.snap.Statistics)
	c.hub.Publish(c.snap)
}

func (c *Coordinator) display(t core.Totals, st core.Statistics) Display {
	return Display{
		Income:      c.format.FormatMoney(t.Income),
		Expense:     c.format.FormatMoney(t.Expense),
		Remaining:   c.format.FormatMoney(t.Remaining),
		TotalSaved:  c.format.FormatMoney(st.TotalCurrent),
		TotalTarget: c.format.FormatMoney(st.TotalTarget),
	}
}

// adviceKey identifies the analyzer input. Totals are derived from the rows,
// so the rows alone are enough.
func adviceKey(txs []core.Transaction) string {
	var b strings.Builder
	for _, tx := range txs {
		fmt.Fprintf(&b, "%s|%s|%s|%s|%s;", tx.ID, tx.Kind, tx.Amount.String(), tx.Date.String(), tx.Description)
	}
	return b.String()
}
