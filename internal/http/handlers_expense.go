package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
)

// isFormPost reports whether the request came from an HTML form, in which
// case successful writes redirect back to the dashboard.
func isFormPost(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := errorFor(err)
	if resp.statusCode >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).LogFields(r.Context(), slog.LevelError, "Request failed",
			applog.NewFields().WithOperation(op).WithError(err))
	}
	resp.Write(w)
}

// writeExpense completes resp with the JSON view of e.
func (s *Server) writeExpense(w http.ResponseWriter, r *http.Request, op string, resp *ResponseBuilder, e core.RecurringExpense) {
	view, err := newExpenseView(e, time.Now())
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	resp.JSON(view).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.expenses.List(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}

	now := time.Now()
	views := make([]expenseView, 0, len(expenses))
	for _, e := range expenses {
		v, err := newExpenseView(e, now)
		if err != nil {
			s.writeError(w, r, applog.OpList, err)
			return
		}
		views = append(views, v)
	}
	total, err := core.MonthlyCost(expenses)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	NewResponse().JSON(map[string]any{
		"expenses":     views,
		"monthly_cost": total.StringFixed(2),
	}).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	in, err := parseExpenseInput(p)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}

	e, err := s.expenses.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	if isFormPost(r) {
		redirectHome(w, r)
		return
	}
	s.writeExpense(w, r, applog.OpCreate, NewResponse().Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+e.ID), e)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.expenses.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	s.writeExpense(w, r, applog.OpRead, NewResponse(), e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	in, err := parseExpenseInput(p)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}

	e, err := s.expenses.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.writeExpense(w, r, applog.OpUpdate, NewResponse(), e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.expenses.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	if isFormPost(r) {
		redirectHome(w, r)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	e, err := s.expenses.Pause(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, applog.OpPause, err)
		return
	}
	if isFormPost(r) {
		redirectHome(w, r)
		return
	}
	s.writeExpense(w, r, applog.OpPause, NewResponse(), e)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	e, err := s.expenses.Activate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, applog.OpActivate, err)
		return
	}
	if isFormPost(r) {
		redirectHome(w, r)
		return
	}
	s.writeExpense(w, r, applog.OpActivate, NewResponse(), e)
}

// handleRecordEvent ingests an externally produced event into the log
// without touching the current-state table.
func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, applog.OpIngest, err)
		return
	}
	ev, err := parseEvent(p)
	if err != nil {
		s.writeError(w, r, applog.OpIngest, err)
		return
	}

	id, err := s.expenses.RecordEvent(r.Context(), ev)
	if err != nil {
		s.writeError(w, r, applog.OpIngest, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(map[string]any{
		"event_id":   id,
		"expense_id": ev.ExpenseID,
		"event_type": ev.Type,
	}).Write(w)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	points, version, err := s.timeline.Timeline(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(newTimelineView(points, version, s.formatOptions(r))).Write(w)
}
