package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"risparmi/internal/amqp"
	"risparmi/internal/core"
)

// Repository is the durable side of the ledger.
type Repository interface {
	Append(ctx context.Context, tx core.Transaction) error
	Remove(ctx context.Context, id string) error
	RemoveAll(ctx context.Context) error
	All(ctx context.Context) ([]core.Transaction, error)
	Close() error
}

// SyncPublisher announces ledger changes to the export worker.
type SyncPublisher interface {
	PublishLedgerSync(ctx context.Context, msg *amqp.LedgerSyncMessage) error
	Close() error
}

// LedgerService saves transactions locally first and then publishes a sync
// message. A failed publish never fails the write.
type LedgerService struct {
	repo      Repository
	publisher SyncPublisher
}

// NewLedgerService accepts a nil publisher, in which case sync messages are
// skipped.
func NewLedgerService(repo Repository, publisher SyncPublisher) *LedgerService {
	if c, ok := publisher.(*amqp.Client); ok && c == nil {
		publisher = nil
	}
	return &LedgerService{repo: repo, publisher: publisher}
}

func (s *LedgerService) RecordTransaction(ctx context.Context, tx core.Transaction) error {
	if err := s.repo.Append(ctx, tx); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	if err := s.publish(ctx, tx.ID, amqp.OpSync); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", tx.ID, "error", err)
	}
	return nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	if err := s.repo.Remove(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := s.publish(ctx, id, amqp.OpDelete); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete message", "id", id, "error", err)
	}
	return nil
}

// ClearLedger empties the local ledger. Exported rows stay in the archive,
// so nothing is published.
func (s *LedgerService) ClearLedger(ctx context.Context) error {
	if err := s.repo.RemoveAll(ctx); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	return nil
}

func (s *LedgerService) Transactions(ctx context.Context) ([]core.Transaction, error) {
	return s.repo.All(ctx)
}

func (s *LedgerService) publish(ctx context.Context, id, op string) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping ledger message", "id", id, "operation", op)
		return nil
	}
	return s.publisher.PublishLedgerSync(ctx, amqp.NewLedgerSyncMessage(id, op))
}

// Close closes both storage and AMQP connections.
func (s *LedgerService) Close() error {
	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}
