// Package ledger defines the transaction store consumed by the coordinator
// and the services that write to it.
package ledger

import (
	"context"

	"risparmi/internal/core"
)

// Store is a durable, observable list of transactions. All returns rows in
// insertion order.
type Store interface {
	Append(ctx context.Context, tx core.Transaction) error
	// Remove deletes one transaction, core.ErrNotFound if the id is unknown.
	Remove(ctx context.Context, id string) error
	RemoveAll(ctx context.Context) error
	All(ctx context.Context) ([]core.Transaction, error)
	// Subscribe delivers the full row set after every change, starting with
	// the current one. Call the returned func to unsubscribe.
	Subscribe() (<-chan []core.Transaction, func())
}
