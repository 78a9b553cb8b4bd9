package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"risparmi/internal/analyzer"
	"risparmi/internal/backend"
	"risparmi/internal/cache"
	"risparmi/internal/cli"
	"risparmi/internal/config"
	"risparmi/internal/coordinator"
	"risparmi/internal/core"
	"risparmi/internal/goals"
	apphttp "risparmi/internal/http"
	applog "risparmi/internal/log"
	"risparmi/internal/market"
	"risparmi/internal/scheduler"
	"risparmi/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting risparmi",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"advice_mode", cfg.AdviceMode)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	beCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	factory := backend.NewFactory(logger.Logger.With(applog.FieldComponent, applog.ComponentBackend))
	be, err := factory.CreateBackend(startCtx, beCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err, "backend", cfg.DataBackend)
	}

	format, err := core.NewFormatter(cfg.Currency, cfg.Locale, "")
	if err != nil {
		cli.Fatal(logger, "Invalid currency or locale", err)
	}

	caches := cache.NewManager()
	tips, mkt := adviceSources(cfg, caches, logger)
	pool := goals.NewPool()
	rollover := services.NewRolloverService(be.Store, pool, nil)

	coord := coordinator.New(be.Store, pool, analyzer.New(tips, mkt, cfg.AdviceTimeout), rollover, format,
		coordinator.WithAdviceTimeout(3*cfg.AdviceTimeout))
	coord.Start()

	sched := scheduler.New(time.Minute)
	if cfg.RolloverSchedule != "" {
		job := scheduler.NewJob("period-rollover", func(ctx context.Context) error {
			_, err := coord.StartNewPeriod(ctx)
			return err
		})
		if err := sched.AddJob(cfg.RolloverSchedule, job); err != nil {
			cli.Fatal(logger, "Invalid rollover schedule", err, "schedule", cfg.RolloverSchedule)
		}
	}
	sched.Start()

	srv := apphttp.NewServer(cli.Addr(cfg.Port), coord, apphttp.Options{
		Ready:              be.Ping,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	ctx, done := cli.GracefulShutdown(context.Background(), logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		sched.Stop()
		coord.Close()
		caches.Stop()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})
	caches.StartCleanup(ctx, 10*time.Minute)

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cli.Fatal(logger, "Server error", err, "port", cfg.Port)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// adviceSources picks where tips and market data come from.
func adviceSources(cfg *config.Config, caches *cache.Manager, logger *applog.Logger) (analyzer.TipsSource, analyzer.MarketSource) {
	switch cfg.AdviceMode {
	case config.AdviceSimulated:
		logger.Info("Using simulated advice data")
		return market.Simulated{}, market.Simulated{}
	case config.AdviceOffline:
		logger.Info("Remote advice disabled")
		return market.Offline{}, market.Offline{}
	default:
		client := market.NewClient(market.Config{
			TipsURL:   cfg.FinancialTipsURL,
			TrendsURL: cfg.MarketTrendsURL,
			RatesURL:  cfg.SavingsRatesURL,
			APIKey:    cfg.AdviceAPIKey,
			Timeout:   cfg.AdviceTimeout,
			CacheTTL:  cfg.MarketCacheTTL,
		})
		client.RegisterCaches(caches)
		return client, client
	}
}
