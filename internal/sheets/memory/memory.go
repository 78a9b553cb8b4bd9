package memory

import (
	"context"
	"sync"

	"risparmi/internal/core"
	"risparmi/internal/sheets"
)

var (
	_ sheets.LedgerExporter = (*Archive)(nil)
	_ sheets.ArchiveReader  = (*Archive)(nil)
)

// Archive keeps exported rows in process. The ledger worker uses it when no
// spreadsheet is configured.
type Archive struct {
	mu    sync.Mutex
	order []string
	rows  map[string]core.Transaction
}

func New() *Archive {
	return &Archive{rows: make(map[string]core.Transaction)}
}

func (a *Archive) AppendTransaction(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.rows[tx.ID]; !ok {
		a.order = append(a.order, tx.ID)
	}
	a.rows[tx.ID] = tx
	return nil
}

func (a *Archive) DeleteTransaction(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.rows[id]; !ok {
		return nil
	}
	delete(a.rows, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i:i], a.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListArchived returns rows in export order.
func (a *Archive) ListArchived(_ context.Context) ([]core.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.Transaction, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.rows[id])
	}
	return out, nil
}
