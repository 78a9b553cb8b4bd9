package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"risparmi/internal/core"
	"risparmi/internal/goals"
)

type goalsResponse struct {
	Goals      []core.SavingsGoal `json:"goals"`
	Statistics core.Statistics    `json:"statistics"`
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	list := s.app.Goals()
	if list == nil {
		list = []core.SavingsGoal{}
	}
	writeJSON(w, http.StatusOK, goalsResponse{Goals: list, Statistics: goals.StatisticsOf(list)})
}

func (s *Server) handleGoalStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.GoalStatistics())
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(r.Context(), w, "create_goal", err)
		return
	}
	g, err := s.app.CreateGoal(r.Context(), sanitizeInput(req.Name), req.Target.Decimal)
	if err != nil {
		writeDomainError(r.Context(), w, "create_goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteGoal(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(r.Context(), w, "delete_goal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	s.goalAmountAction(w, r, "contribute", s.app.Contribute)
}

func (s *Server) handleRedistribute(w http.ResponseWriter, r *http.Request) {
	s.goalAmountAction(w, r, "redistribute", s.app.Redistribute)
}

// handleSave moves money into a goal and records the matching expense.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.goalAmountAction(w, r, "save", s.app.AddToSavings)
}

func (s *Server) handleSaveRemaining(w http.ResponseWriter, r *http.Request) {
	g, err := s.app.AddAllRemainingToSavings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, "save_remaining", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type goalAmountFunc func(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, error)

func (s *Server) goalAmountAction(w http.ResponseWriter, r *http.Request, op string, fn goalAmountFunc) {
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(r.Context(), w, op, err)
		return
	}
	g, err := fn(r.Context(), chi.URLParam(r, "id"), req.Amount.Decimal)
	if err != nil {
		writeDomainError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
