package backend

import (
	"context"
	"fmt"
	"log/slog"

	"risparmi/internal/adapters"
	"risparmi/internal/amqp"
	"risparmi/internal/ledger/memory"
	"risparmi/internal/services"
	"risparmi/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional: without a broker rows stay pending until the worker sweeps them.
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without sync", "error", err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	ledgerService := services.NewLedgerService(repo, amqpClient)
	adapter, err := adapters.NewSQLiteAdapter(ctx, ledgerService)
	if err != nil {
		_ = ledgerService.Close()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Store:   adapter,
		Ping:    repo.Ping,
		Cleanup: adapter.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	store, err := memory.New()
	if err != nil {
		return nil, err
	}

	f.logger.Info("Initialized memory backend")

	return &BackendResult{
		Store:   store,
		Ping:    func(context.Context) error { return nil },
		Cleanup: store.Close,
	}, nil
}
