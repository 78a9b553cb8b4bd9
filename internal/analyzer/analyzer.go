// Package analyzer turns a transaction history into savings tips and a
// recommended savings method. Local rules always apply; remote data only
// enriches the result and its failure is absorbed into fallback content.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"risparmi/internal/core"
	"risparmi/internal/market"
)

// TipsSource provides remote savings tips.
type TipsSource interface {
	FinancialTips(ctx context.Context) ([]core.SavingsTip, error)
}

// MarketSource provides the market datasets used to refine a recommendation.
type MarketSource interface {
	MarketTrends(ctx context.Context) (market.Trends, error)
	SavingsRates(ctx context.Context) (market.Rates, error)
}

// Advice bundles both analyzer outputs.
type Advice struct {
	Tips   []core.SavingsTip      `json:"tips"`
	Method core.RecommendedMethod `json:"method"`
}

// Analyzer has no mutable state and is safe for concurrent use.
type Analyzer struct {
	tips    TipsSource
	market  MarketSource
	timeout time.Duration
}

// New builds an analyzer. A non-positive timeout leaves remote calls bounded
// only by the caller's context.
func New(tips TipsSource, mkt MarketSource, timeout time.Duration) *Analyzer {
	if tips == nil {
		tips = market.Offline{}
	}
	if mkt == nil {
		mkt = market.Offline{}
	}
	return &Analyzer{tips: tips, market: mkt, timeout: timeout}
}

// GenerateTips returns the local tips followed by either the remote tips or a
// single network error tip. The remote source is asked exactly once.
func (a *Analyzer) GenerateTips(ctx context.Context, txs []core.Transaction, income, expense decimal.Decimal) []core.SavingsTip {
	tips := LocalTips(txs, income, expense)

	remote, err := a.fetchTips(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Remote savings tips unavailable, using fallback",
			"component", "analyzer", "error", err)
		return append(tips, NetworkErrorTip())
	}
	for _, t := range remote {
		if t.Source == "" {
			t.Source = SourceRemote
		}
		tips = append(tips, t)
	}
	return tips
}

// RecommendMethod picks a baseline from local data and refines it with market
// trends and savings rates when both can be fetched.
func (a *Analyzer) RecommendMethod(ctx context.Context, txs []core.Transaction, income, expense decimal.Decimal) core.RecommendedMethod {
	potential := SavingsPotential(income, expense)
	volatility := Volatility(txs)
	base := BaselineMethod(potential, volatility)

	trends, rates, err := a.fetchMarket(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Market data unavailable, keeping local recommendation",
			"component", "analyzer", "error", err, "method", base.Title)
		return base
	}
	return EnhanceWithMarket(base, trends, rates, potential)
}

// Analyze runs both entry points concurrently.
func (a *Analyzer) Analyze(ctx context.Context, txs []core.Transaction, income, expense decimal.Decimal) Advice {
	var adv Advice
	var g errgroup.Group
	g.Go(func() error {
		adv.Tips = a.GenerateTips(ctx, txs, income, expense)
		return nil
	})
	g.Go(func() error {
		adv.Method = a.RecommendMethod(ctx, txs, income, expense)
		return nil
	})
	_ = g.Wait()
	return adv
}

func (a *Analyzer) fetchTips(ctx context.Context) (tips []core.SavingsTip, err error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	defer recoverAsNetworkError(&err)
	return a.tips.FinancialTips(ctx)
}

func (a *Analyzer) fetchMarket(ctx context.Context) (trends market.Trends, rates market.Rates, err error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer recoverAsNetworkError(&err)
		trends, err = a.market.MarketTrends(gctx)
		return err
	})
	g.Go(func() (err error) {
		defer recoverAsNetworkError(&err)
		rates, err = a.market.SavingsRates(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return market.Trends{}, market.Rates{}, err
	}
	return trends, rates, nil
}

func (a *Analyzer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return context.WithCancel(ctx)
}

// recoverAsNetworkError keeps a misbehaving source from crashing the caller.
func recoverAsNetworkError(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: advice source panicked: %v", core.ErrNetworkUnavailable, r)
	}
}
