package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"risparmi/internal/core"
)

type transactionsResponse struct {
	Transactions []core.Transaction    `json:"transactions"`
	Totals       core.Totals           `json:"totals"`
	Categories   []core.CategoryAmount `json:"categories"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Snapshot())
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.app.Transactions(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, "list_transactions", err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	cats := core.SpendingCategories(txs)
	if cats == nil {
		cats = []core.CategoryAmount{}
	}
	writeJSON(w, http.StatusOK, transactionsResponse{Transactions: txs, Totals: core.ComputeTotals(txs), Categories: cats})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(r.Context(), w, "create_transaction", err)
		return
	}
	kind, err := core.ParseKind(req.Kind)
	if err != nil {
		writeDomainError(r.Context(), w, "create_transaction", err)
		return
	}

	tx, err := s.app.AddTransaction(r.Context(), kind, req.Amount.Decimal, sanitizeInput(req.Description))
	if err != nil {
		writeDomainError(r.Context(), w, "create_transaction", err)
		return
	}
	s.access.LogTransactionCreated(r.Context(), tx.ID, string(tx.Kind), tx.Amount.String(), tx.Description)
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(r.Context(), w, "delete_transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearTransactions(w http.ResponseWriter, r *http.Request) {
	if err := s.app.ClearTransactions(r.Context()); err != nil {
		writeDomainError(r.Context(), w, "clear_transactions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAllData(w http.ResponseWriter, r *http.Request) {
	if err := s.app.ClearAllData(r.Context()); err != nil {
		writeDomainError(r.Context(), w, "clear_all_data", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.StartNewPeriod(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, "rollover", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
