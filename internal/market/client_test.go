package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risparmi/internal/core"
)

func newTestClient(t *testing.T, h http.Handler, ttl time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		TipsURL:   srv.URL + "/financial-tips",
		TrendsURL: srv.URL + "/market-trends",
		RatesURL:  srv.URL + "/savings-rates",
		APIKey:    "secret",
		Timeout:   2 * time.Second,
		CacheTTL:  ttl,
	})
}

func TestClient_FinancialTips(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/financial-tips", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"title":"Cook at home","description":"Meal prep","impact":"High","actionable":true},
			{"title":"Review subscriptions","description":"Cancel unused","impact":"whatever","actionable":false}
		]`))
	}), 0)

	tips, err := c.FinancialTips(context.Background())
	require.NoError(t, err)
	require.Len(t, tips, 2)
	assert.Equal(t, "Cook at home", tips[0].Title)
	assert.Equal(t, core.ImpactHigh, tips[0].Impact)
	assert.True(t, tips[0].Actionable)
	assert.Equal(t, core.ImpactLow, tips[1].Impact)
	assert.Empty(t, tips[1].Source)
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"not found", func(w http.ResponseWriter, _ *http.Request) {
			http.NotFound(w, nil)
		}},
		{"malformed json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"title":`))
		}},
		{"missing field", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`[{"title":"x","impact":"Low","actionable":true}]`))
		}},
		{"null body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`null`))
		}},
		{"object instead of list", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"title":"x"}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler, 0)
			_, err := c.FinancialTips(context.Background())
			assert.ErrorIs(t, err, core.ErrNetworkUnavailable)
		})
	}
}

func TestClient_MarketRejectsNonObject(t *testing.T) {
	for _, body := range []string{`null`, `[]`, `"stable"`, ``} {
		t.Run("body "+body, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}), 0)
			_, err := c.MarketTrends(context.Background())
			assert.ErrorIs(t, err, core.ErrNetworkUnavailable)
			_, err = c.SavingsRates(context.Background())
			assert.ErrorIs(t, err, core.ErrNetworkUnavailable)
		})
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{TrendsURL: url + "/market-trends", Timeout: time.Second})
	_, err := c.MarketTrends(context.Background())
	assert.ErrorIs(t, err, core.ErrNetworkUnavailable)
}

func TestClient_MarketDefaults(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/market-trends":
			_, _ = w.Write([]byte(`{"interestRateTrend":"rising"}`))
		case "/savings-rates":
			_, _ = w.Write([]byte(`{"cdRate":4.25}`))
		}
	}), 0)

	trends, err := c.MarketTrends(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Trends{InterestRateTrend: "rising", StockMarketTrend: "stable", InflationRate: 2.0}, trends)

	rates, err := c.SavingsRates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Rates{HighYieldSavingsRate: 0.5, CDRate: 4.25, TreasuryBondRate: 1.5}, rates)
}

func TestClient_CachesMarketData(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"inflationRate":5.5}`))
	}), time.Minute)

	for i := 0; i < 3; i++ {
		trends, err := c.MarketTrends(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 5.5, trends.InflationRate, 1e-9)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_DoesNotCacheFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"highYieldSavingsRate":4.1}`))
	}), time.Minute)

	_, err := c.SavingsRates(context.Background())
	require.ErrorIs(t, err, core.ErrNetworkUnavailable)

	rates, err := c.SavingsRates(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 4.1, rates.HighYieldSavingsRate, 1e-9)
}

func TestClient_CollapsesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`[]`))
	}), 0)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.FinancialTips(context.Background())
			assert.NoError(t, err)
		}()
	}
	// let the callers pile up on the in-flight request
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, hits.Load(), int32(2))
}

func TestClient_CallerCancellation(t *testing.T) {
	block := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}), 0)
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.MarketTrends(ctx)
	assert.ErrorIs(t, err, core.ErrNetworkUnavailable)
}

func TestSimulatedAndOffline(t *testing.T) {
	ctx := context.Background()

	tips, err := Simulated{}.FinancialTips(ctx)
	require.NoError(t, err)
	require.Len(t, tips, 4)
	assert.Equal(t, "Emergency Fund First", tips[0].Title)
	assert.Equal(t, "Financial Experts", tips[0].Source)

	trends, err := Simulated{}.MarketTrends(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultTrends(), trends)

	_, err = Offline{}.FinancialTips(ctx)
	assert.ErrorIs(t, err, core.ErrNetworkUnavailable)
	_, err = Offline{}.SavingsRates(ctx)
	assert.ErrorIs(t, err, core.ErrNetworkUnavailable)
}
