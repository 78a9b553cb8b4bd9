package adapters

import (
	"context"
	"fmt"
	"sync"

	"risparmi/internal/broadcast"
	"risparmi/internal/core"
	"risparmi/internal/services"
)

// SQLiteAdapter exposes the persist-then-publish LedgerService as a
// ledger.Store, broadcasting the full row set after every change.
type SQLiteAdapter struct {
	// mu orders write+reload pairs so snapshots are published in write order.
	mu      sync.Mutex
	service *services.LedgerService
	hub     broadcast.Broadcaster[[]core.Transaction]
}

// NewSQLiteAdapter loads the current rows so subscribers start with them.
func NewSQLiteAdapter(ctx context.Context, service *services.LedgerService) (*SQLiteAdapter, error) {
	a := &SQLiteAdapter{service: service}
	if err := a.refresh(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *SQLiteAdapter) Append(ctx context.Context, tx core.Transaction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.service.RecordTransaction(ctx, tx); err != nil {
		return err
	}
	return a.refresh(ctx)
}

func (a *SQLiteAdapter) Remove(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.service.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	return a.refresh(ctx)
}

func (a *SQLiteAdapter) RemoveAll(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.service.ClearLedger(ctx); err != nil {
		return err
	}
	return a.refresh(ctx)
}

func (a *SQLiteAdapter) All(ctx context.Context) ([]core.Transaction, error) {
	return a.service.Transactions(ctx)
}

func (a *SQLiteAdapter) Subscribe() (<-chan []core.Transaction, func()) {
	return a.hub.Subscribe()
}

// Close ends subscriptions and closes the underlying service.
func (a *SQLiteAdapter) Close() error {
	a.hub.Close()
	return a.service.Close()
}

func (a *SQLiteAdapter) refresh(ctx context.Context) error {
	txs, err := a.service.Transactions(ctx)
	if err != nil {
		return fmt.Errorf("reload ledger: %w", err)
	}
	a.hub.Publish(txs)
	return nil
}
