package goals

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risparmi/internal/core"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("g%d", n)
	})
}

// seed creates one goal per balance, target 1000, and contributes the balance.
func seed(t *testing.T, p *Pool, balances ...string) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, len(balances))
	for i, b := range balances {
		g, err := p.CreateGoal(ctx, fmt.Sprintf("goal-%d", i), dec("1000"))
		require.NoError(t, err)
		if amt := dec(b); amt.IsPositive() {
			_, err = p.Contribute(ctx, g.ID, amt)
			require.NoError(t, err)
		}
		ids = append(ids, g.ID)
	}
	return ids
}

func currents(p *Pool) []string {
	var out []string
	for _, g := range p.List() {
		out = append(out, g.CurrentAmount.String())
	}
	return out
}

func TestCreateGoal(t *testing.T) {
	p := NewPool(sequentialIDs())
	ctx := context.Background()

	g, err := p.CreateGoal(ctx, "  Holiday ", dec("500"))
	require.NoError(t, err)
	assert.Equal(t, "g1", g.ID)
	assert.Equal(t, "Holiday", g.Name)
	assert.True(t, g.CurrentAmount.IsZero())

	tests := []struct {
		name   string
		goal   string
		target string
	}{
		{"empty name", "", "100"},
		{"blank name", "   ", "100"},
		{"zero target", "Car", "0"},
		{"negative target", "Car", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.CreateGoal(ctx, tt.goal, dec(tt.target))
			assert.ErrorIs(t, err, core.ErrInvalidArgument)
		})
	}
	assert.Len(t, p.List(), 1)
}

func TestContribute(t *testing.T) {
	p := NewPool(sequentialIDs())
	ids := seed(t, p, "0", "50")
	ctx := context.Background()

	g, err := p.Contribute(ctx, ids[0], dec("25.50"))
	require.NoError(t, err)
	assert.Equal(t, "25.5", g.CurrentAmount.String())
	assert.Equal(t, []string{"25.5", "50"}, currents(p))

	_, err = p.Contribute(ctx, ids[0], dec("0"))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = p.Contribute(ctx, ids[0], dec("-1"))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = p.Contribute(ctx, "missing", dec("1"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRedistribute_DebitsOthersProportionally(t *testing.T) {
	p := NewPool(sequentialIDs())
	ids := seed(t, p, "100", "300")

	g, err := p.Redistribute(context.Background(), ids[0], dec("100"))
	require.NoError(t, err)

	assert.Equal(t, "200", g.CurrentAmount.String())
	// B loses 300*100/400 = 75; A's own share is not debited.
	assert.Equal(t, []string{"200", "225"}, currents(p))
	assert.Equal(t, "425", p.Statistics().TotalCurrent.String())
}

func TestRedistribute_ConservesTotalWhenTargetEmpty(t *testing.T) {
	p := NewPool(sequentialIDs())
	ids := seed(t, p, "0", "100", "300")

	_, err := p.Redistribute(context.Background(), ids[0], dec("200"))
	require.NoError(t, err)

	assert.Equal(t, []string{"200", "50", "150"}, currents(p))
	assert.Equal(t, "400", p.Statistics().TotalCurrent.String())
}

func TestRedistribute_InsufficientFundsLeavesPoolUnchanged(t *testing.T) {
	p := NewPool(sequentialIDs())
	ids := seed(t, p, "10", "20")
	before := p.List()

	_, err := p.Redistribute(context.Background(), ids[1], dec("30.01"))
	require.ErrorIs(t, err, core.ErrInsufficientFunds)
	assert.Equal(t, before, p.List())
}

func TestRedistribute_EmptyPool(t *testing.T) {
	p := NewPool(sequentialIDs())
	ids := seed(t, p, "0", "0")
	ctx := context.Background()

	g, err := p.Redistribute(ctx, ids[0], decimal.Zero)
	require.NoError(t, err)
	assert.True(t, g.CurrentAmount.IsZero())

	_, err = p.Redistribute(ctx, ids[0], dec("1"))
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
}

func TestRedistribute_Guards(t *testing.T) {
	p := NewPool(sequentialIDs())
	ids := seed(t, p, "100")
	ctx := context.Background()

	_, err := p.Redistribute(ctx, ids[0], dec("-1"))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = p.Redistribute(ctx, "nope", dec("1"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRedistribute_WholePoolDrainsOthers(t *testing.T) {
	p := NewPool(sequentialIDs())
	ids := seed(t, p, "0", "40", "60")

	_, err := p.Redistribute(context.Background(), ids[0], dec("100"))
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "0", "0"}, currents(p))
}

func TestDeleteGoalAndStatistics(t *testing.T) {
	p := NewPool(sequentialIDs())
	ctx := context.Background()
	a, err := p.CreateGoal(ctx, "A", dec("200"))
	require.NoError(t, err)
	b, err := p.CreateGoal(ctx, "B", dec("800"))
	require.NoError(t, err)
	_, err = p.Contribute(ctx, a.ID, dec("100"))
	require.NoError(t, err)
	_, err = p.Contribute(ctx, b.ID, dec("150"))
	require.NoError(t, err)

	st := p.Statistics()
	assert.Equal(t, 2, st.GoalCount)
	assert.Equal(t, "1000", st.TotalTarget.String())
	assert.Equal(t, "250", st.TotalCurrent.String())
	assert.InDelta(t, 25.0, st.AverageProgressPercent, 1e-9)

	require.NoError(t, p.DeleteGoal(ctx, a.ID))
	assert.ErrorIs(t, p.DeleteGoal(ctx, a.ID), core.ErrNotFound)
	_, err = p.Get(a.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	got, err := p.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "150", got.CurrentAmount.String())

	// index must follow the shifted slice
	_, err = p.Contribute(ctx, b.ID, dec("50"))
	require.NoError(t, err)
	assert.Equal(t, []string{"200"}, currents(p))

	p.Reset(ctx)
	assert.Empty(t, p.List())
	assert.Equal(t, core.Statistics{}, p.Statistics())
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	p := NewPool(sequentialIDs())
	ch, cancel := p.Subscribe()
	defer cancel()

	initial := <-ch
	assert.Empty(t, initial)

	g, err := p.CreateGoal(context.Background(), "Car", dec("100"))
	require.NoError(t, err)
	snap := <-ch
	require.Len(t, snap, 1)
	assert.Equal(t, g.ID, snap[0].ID)

	_, err = p.Contribute(context.Background(), g.ID, dec("5"))
	require.NoError(t, err)
	snap2 := <-ch
	assert.Equal(t, "5", snap2[0].CurrentAmount.String())
	// earlier snapshot must not be mutated
	assert.True(t, snap[0].CurrentAmount.IsZero())
}

func TestConcurrentContributions(t *testing.T) {
	p := NewPool()
	ids := seed(t, p, "0", "0")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = p.Contribute(ctx, ids[0], dec("1"))
		}()
		go func() {
			defer wg.Done()
			_, _ = p.Redistribute(ctx, ids[1], decimal.Zero)
		}()
	}
	wg.Wait()

	g, err := p.Get(ids[0])
	require.NoError(t, err)
	assert.Equal(t, "100", g.CurrentAmount.String())
}
