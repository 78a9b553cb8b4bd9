package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"risparmi/internal/amqp"
	"risparmi/internal/core"
	"risparmi/internal/sheets"
)

// Source is the local ledger the worker exports from.
type Source interface {
	Get(ctx context.Context, id string) (core.Transaction, error)
	PendingSync(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
}

// ExportWorker mirrors ledger rows from SQLite into the archive spreadsheet.
type ExportWorker struct {
	source    Source
	exporter  sheets.LedgerExporter
	batchSize int
}

func NewExportWorker(source Source, exporter sheets.LedgerExporter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ExportWorker{source: source, exporter: exporter, batchSize: batchSize}
}

// HandleMessage dispatches on the message operation. It is the AMQP consumer
// callback.
func (w *ExportWorker) HandleMessage(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	switch msg.Operation {
	case amqp.OpSync:
		return w.HandleSyncMessage(ctx, msg)
	case amqp.OpDelete:
		return w.HandleDeleteMessage(ctx, msg)
	default:
		return fmt.Errorf("unknown operation %q", msg.Operation)
	}
}

// HandleSyncMessage exports the row named by msg. A row deleted before the
// message arrived is skipped.
func (w *ExportWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "id", msg.ID, "timestamp", msg.Timestamp)

	tx, err := w.source.Get(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		slog.InfoContext(ctx, "Transaction no longer in ledger, skipping", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	return w.export(ctx, tx)
}

func (w *ExportWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	slog.InfoContext(ctx, "Processing delete message", "id", msg.ID)

	if err := w.exporter.DeleteTransaction(ctx, msg.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to delete archived transaction",
			"id", msg.ID,
			"error", err,
			"timestamp", msg.Timestamp)
		return fmt.Errorf("delete archived transaction: %w", err)
	}
	slog.InfoContext(ctx, "Archived transaction deleted", "id", msg.ID)
	return nil
}

// ProcessPending exports rows that were never synced. It backs up the AMQP
// path when messages are lost.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.sweep(ctx, w.batchSize)
	return err
}

// StartupSyncCheck runs a larger sweep when the worker starts.
func (w *ExportWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.sweep(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
	} else {
		slog.InfoContext(ctx, "Startup sync completed", "synced", synced, "errors", failed)
	}

	n, ok, err := w.ArchivedCount(ctx)
	switch {
	case err != nil:
		// the archive may be unreachable at boot; pending rows stay pending
		slog.WarnContext(ctx, "Could not read archive", "error", err)
	case ok:
		slog.InfoContext(ctx, "Archive reachable", "rows", n)
	}
	return nil
}

// ArchivedCount reports how many rows the exporter holds, when it can tell.
func (w *ExportWorker) ArchivedCount(ctx context.Context) (int, bool, error) {
	reader, ok := w.exporter.(sheets.ArchiveReader)
	if !ok {
		return 0, false, nil
	}
	rows, err := reader.ListArchived(ctx)
	if err != nil {
		return 0, true, err
	}
	return len(rows), true, nil
}

func (w *ExportWorker) sweep(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.source.PendingSync(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) > 0 {
		slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))
	}
	for _, tx := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.export(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction", "id", tx.ID, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *ExportWorker) export(ctx context.Context, tx core.Transaction) error {
	if err := w.exporter.AppendTransaction(ctx, tx); err != nil {
		if markErr := w.source.MarkSyncError(ctx, tx.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", tx.ID, "error", markErr)
		}
		return fmt.Errorf("append to archive: %w", err)
	}

	// the export itself succeeded, a failed mark only causes a harmless re-export
	if err := w.source.MarkSynced(ctx, tx.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", tx.ID, "error", err)
	}

	slog.InfoContext(ctx, "Transaction exported",
		"id", tx.ID,
		"kind", tx.Kind,
		"amount", tx.Amount.String(),
		"description", tx.Description)
	return nil
}
