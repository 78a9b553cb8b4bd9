package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// TransactionRow mirrors one row of the transactions table.
type TransactionRow struct {
	Seq         int64
	ID          string
	Amount      string
	Description string
	Date        string
	Kind        string
	SyncStatus  string
}

type InsertTransactionParams struct {
	ID          string
	Amount      string
	Description string
	Date        string
	Kind        string
}

const insertTransaction = `
INSERT INTO transactions (id, amount, description, date, kind)
VALUES (?, ?, ?, ?, ?)
RETURNING seq, id, amount, description, date, kind, sync_status
`

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, insertTransaction, arg.ID, arg.Amount, arg.Description, arg.Date, arg.Kind)
	var r TransactionRow
	err := row.Scan(&r.Seq, &r.ID, &r.Amount, &r.Description, &r.Date, &r.Kind, &r.SyncStatus)
	return r, err
}

const getTransaction = `
SELECT seq, id, amount, description, date, kind, sync_status
FROM transactions
WHERE id = ?
`

func (q *Queries) GetTransaction(ctx context.Context, id string) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, id)
	var r TransactionRow
	err := row.Scan(&r.Seq, &r.ID, &r.Amount, &r.Description, &r.Date, &r.Kind, &r.SyncStatus)
	return r, err
}

const listTransactions = `
SELECT seq, id, amount, description, date, kind, sync_status
FROM transactions
ORDER BY seq
`

func (q *Queries) ListTransactions(ctx context.Context) ([]TransactionRow, error) {
	return q.list(ctx, listTransactions)
}

const listPendingSync = `
SELECT seq, id, amount, description, date, kind, sync_status
FROM transactions
WHERE sync_status != 'synced'
ORDER BY seq
LIMIT ?
`

func (q *Queries) ListPendingSync(ctx context.Context, limit int64) ([]TransactionRow, error) {
	return q.list(ctx, listPendingSync, limit)
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteAllTransactions = `DELETE FROM transactions`

func (q *Queries) DeleteAllTransactions(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteAllTransactions)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setSyncStatus = `UPDATE transactions SET sync_status = ? WHERE id = ?`

func (q *Queries) SetSyncStatus(ctx context.Context, id, status string) (int64, error) {
	res, err := q.db.ExecContext(ctx, setSyncStatus, status, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) list(ctx context.Context, query string, args ...any) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TransactionRow
	for rows.Next() {
		var r TransactionRow
		if err := rows.Scan(&r.Seq, &r.ID, &r.Amount, &r.Description, &r.Date, &r.Kind, &r.SyncStatus); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
