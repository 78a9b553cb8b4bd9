package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"

	"risparmi/internal/coordinator"
	"risparmi/internal/core"
	applog "risparmi/internal/log"
	"risparmi/internal/middleware/ratelimit"
	"risparmi/internal/services"
)

// App is the application surface served over HTTP. *coordinator.Coordinator
// implements it.
type App interface {
	Snapshot() coordinator.Snapshot
	Subscribe() (<-chan coordinator.Snapshot, func())
	RefreshAdvice()

	Transactions(ctx context.Context) ([]core.Transaction, error)
	Goals() []core.SavingsGoal
	GoalStatistics() core.Statistics

	AddTransaction(ctx context.Context, kind core.Kind, amount decimal.Decimal, description string) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	ClearTransactions(ctx context.Context) error
	ClearAllData(ctx context.Context) error

	CreateGoal(ctx context.Context, name string, target decimal.Decimal) (core.SavingsGoal, error)
	DeleteGoal(ctx context.Context, id string) error
	Contribute(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, error)
	Redistribute(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, error)
	AddToSavings(ctx context.Context, goalID string, amount decimal.Decimal) (core.SavingsGoal, error)
	AddAllRemainingToSavings(ctx context.Context, goalID string) (core.SavingsGoal, error)

	StartNewPeriod(ctx context.Context) (services.RolloverResult, error)
}

// Options configures NewServer.
type Options struct {
	// Ready backs /readyz. Nil means always ready.
	Ready              func(ctx context.Context) error
	RateLimitPerMinute int
	AllowedOrigins     []string
	Logger             *applog.Logger
	RequestTimeout     time.Duration
}

type Server struct {
	http.Server
	app         App
	ready       func(ctx context.Context) error
	access      *applog.StructuredLogger
	rateLimiter *ratelimit.Limiter
	origins     []string

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, app App, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		app:         app,
		ready:       opts.Ready,
		access:      applog.NewStructuredLogger(logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		origins:     opts.AllowedOrigins,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(applog.Middleware(logger.WithComponent(applog.ComponentHTTP)))
	r.Use(s.access.AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		// the stream is long-lived; keep it outside the request timeout
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(opts.RequestTimeout))
			r.Use(s.rateLimiter.Middleware(false))

			r.Get("/snapshot", s.handleSnapshot)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", s.handleListTransactions)
				r.Post("/", s.handleCreateTransaction)
				r.Delete("/", s.handleClearTransactions)
				r.Delete("/{id}", s.handleDeleteTransaction)
			})

			r.Route("/goals", func(r chi.Router) {
				r.Get("/", s.handleListGoals)
				r.Post("/", s.handleCreateGoal)
				r.Get("/statistics", s.handleGoalStatistics)
				r.Delete("/{id}", s.handleDeleteGoal)
				r.Post("/{id}/contribute", s.handleContribute)
				r.Post("/{id}/redistribute", s.handleRedistribute)
				r.Post("/{id}/save", s.handleSave)
				r.Post("/{id}/save-remaining", s.handleSaveRemaining)
			})

			r.Get("/advice", s.handleAdvice)
			r.Post("/advice/refresh", s.handleRefreshAdvice)
			r.Post("/period/rollover", s.handleRollover)
			r.Delete("/data", s.handleClearAllData)
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
