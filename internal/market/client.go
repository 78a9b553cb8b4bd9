package market

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"risparmi/internal/cache"
	"risparmi/internal/core"
)

const (
	DefaultTipsURL   = "https://api.financialmodelingprep.com/api/v3/financial-tips"
	DefaultTrendsURL = "https://api.financialmodelingprep.com/api/v3/market-trends"
	DefaultRatesURL  = "https://api.financialmodelingprep.com/api/v3/savings-rates"
	DefaultAPIKey    = "demo"

	maxBodyBytes = 1 << 20
	trendsKey    = "market-trends"
	ratesKey     = "savings-rates"
)

// Config configures the remote client.
type Config struct {
	TipsURL   string
	TrendsURL string
	RatesURL  string
	APIKey    string
	// Timeout bounds each request. Zero means no client-side bound beyond ctx.
	Timeout time.Duration
	// CacheTTL keeps successful trends/rates responses. Zero disables caching.
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// Client talks to the remote advice API. It is safe for concurrent use;
// concurrent requests for the same endpoint share one round trip.
type Client struct {
	cfg    Config
	http   *http.Client
	flight singleflight.Group
	trends *cache.LRUCache[Trends]
	rates  *cache.LRUCache[Rates]
}

func NewClient(cfg Config) *Client {
	if cfg.TipsURL == "" {
		cfg.TipsURL = DefaultTipsURL
	}
	if cfg.TrendsURL == "" {
		cfg.TrendsURL = DefaultTrendsURL
	}
	if cfg.RatesURL == "" {
		cfg.RatesURL = DefaultRatesURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = DefaultAPIKey
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{cfg: cfg, http: hc}
	if cfg.CacheTTL > 0 {
		c.trends = cache.NewLRUCache[Trends](1, cfg.CacheTTL)
		c.rates = cache.NewLRUCache[Rates](1, cfg.CacheTTL)
	}
	return c
}

// RegisterCaches hands the client's caches to a cleanup manager.
func (c *Client) RegisterCaches(m *cache.Manager) {
	if c.trends != nil {
		m.Register(trendsKey, c.trends)
	}
	if c.rates != nil {
		m.Register(ratesKey, c.rates)
	}
}

// FinancialTips fetches the tips list. Tips are never cached.
func (c *Client) FinancialTips(ctx context.Context) ([]core.SavingsTip, error) {
	body, err := c.fetch(ctx, c.cfg.TipsURL)
	if err != nil {
		return nil, err
	}
	tips, err := DecodeTips(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNetworkUnavailable, err)
	}
	return tips, nil
}

func (c *Client) MarketTrends(ctx context.Context) (Trends, error) {
	if c.trends != nil {
		if t, ok := c.trends.Get(trendsKey); ok {
			return t, nil
		}
	}
	body, err := c.fetch(ctx, c.cfg.TrendsURL)
	if err != nil {
		return Trends{}, err
	}
	t, err := DecodeTrends(body)
	if err != nil {
		return Trends{}, fmt.Errorf("%w: %v", core.ErrNetworkUnavailable, err)
	}
	if c.trends != nil {
		c.trends.Set(trendsKey, t)
	}
	return t, nil
}

func (c *Client) SavingsRates(ctx context.Context) (Rates, error) {
	if c.rates != nil {
		if r, ok := c.rates.Get(ratesKey); ok {
			return r, nil
		}
	}
	body, err := c.fetch(ctx, c.cfg.RatesURL)
	if err != nil {
		return Rates{}, err
	}
	r, err := DecodeRates(body)
	if err != nil {
		return Rates{}, fmt.Errorf("%w: %v", core.ErrNetworkUnavailable, err)
	}
	if c.rates != nil {
		c.rates.Set(ratesKey, r)
	}
	return r, nil
}

// fetch performs one GET. Every failure wraps core.ErrNetworkUnavailable.
func (c *Client) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	ch := c.flight.DoChan(endpoint, func() (any, error) {
		// Detached from any single caller so one cancelled waiter does not
		// fail the others; the client timeout still bounds the request.
		reqCtx := context.WithoutCancel(ctx)
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(reqCtx, c.cfg.Timeout)
			defer cancel()
		}
		return c.get(reqCtx, endpoint)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", core.ErrNetworkUnavailable, ctx.Err())
	}
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %v", core.ErrNetworkUnavailable, err)
	}
	q := u.Query()
	q.Set("apikey", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", core.ErrNetworkUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", core.ErrNetworkUnavailable, u.Path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", core.ErrNetworkUnavailable, err)
	}

	slog.DebugContext(ctx, "Advice API request completed",
		"component", "market",
		"path", u.Path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	return body, nil
}
