package sheets

import (
	"context"

	"risparmi/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerExporter mirrors ledger rows into the external archive.
	// Writing the same transaction twice must leave a single row.
	LedgerExporter interface {
		AppendTransaction(ctx context.Context, tx core.Transaction) error
		// DeleteTransaction removes the archived row. A missing row is not an error.
		DeleteTransaction(ctx context.Context, id string) error
	}

	// ArchiveReader lists what has been exported so far.
	ArchiveReader interface {
		ListArchived(ctx context.Context) ([]core.Transaction, error)
	}
)
