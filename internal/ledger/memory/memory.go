// Package memory is an in-process ledger.Store, used when no database is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"risparmi/internal/broadcast"
	"risparmi/internal/core"
)

type Store struct {
	mu    sync.Mutex
	items []core.Transaction
	hub   broadcast.Broadcaster[[]core.Transaction]
}

// New returns a store holding seed, in order. Seed rows are validated.
func New(seed ...core.Transaction) (*Store, error) {
	s := &Store{}
	for _, tx := range seed {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("seed transaction %q: %w", tx.ID, err)
		}
	}
	s.items = append([]core.Transaction(nil), seed...)
	s.hub.Publish(s.snapshotLocked())
	return s, nil
}

func (s *Store) Append(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.ID == tx.ID {
			return fmt.Errorf("%w: duplicate transaction id %s", core.ErrInvalidArgument, tx.ID)
		}
	}
	s.items = append(s.items, tx)
	s.hub.Publish(s.snapshotLocked())
	return nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tx := range s.items {
		if tx.ID != id {
			continue
		}
		next := make([]core.Transaction, 0, len(s.items)-1)
		next = append(next, s.items[:i]...)
		s.items = append(next, s.items[i+1:]...)
		s.hub.Publish(s.snapshotLocked())
		return nil
	}
	return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) RemoveAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.hub.Publish(s.snapshotLocked())
	return nil
}

func (s *Store) All(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

func (s *Store) Subscribe() (<-chan []core.Transaction, func()) {
	return s.hub.Subscribe()
}

// Close ends every subscription.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) snapshotLocked() []core.Transaction {
	return append([]core.Transaction(nil), s.items...)
}
