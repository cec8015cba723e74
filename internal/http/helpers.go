package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"ricorrenti/internal/core"
)

// sanitizeInput trims whitespace and drops control characters except tab,
// newline and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// formatOptions applies a per-request ?hidden= override to the server default.
func (s *Server) formatOptions(r *http.Request) core.FormatOptions {
	opts := s.format
	if v := strings.TrimSpace(r.URL.Query().Get("hidden")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.Hidden = b
		}
	}
	return opts
}

type expenseView struct {
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	Category      string    `json:"category,omitempty"`
	Amount        string    `json:"amount"`
	Frequency     string    `json:"frequency"`
	IsActive      bool      `json:"is_active"`
	MonthlyAmount string    `json:"monthly_amount"`
	NextCharge    string    `json:"next_charge,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const dateLayout = "2006-01-02"

// newExpenseView renders e for the API. Paused expenses have no next charge.
func newExpenseView(e core.RecurringExpense, now time.Time) (expenseView, error) {
	monthly, err := e.MonthlyAmount()
	if err != nil {
		return expenseView{}, err
	}
	v := expenseView{
		ID:            e.ID,
		Description:   e.Description,
		Category:      e.Category,
		Amount:        e.Amount.StringFixed(2),
		Frequency:     string(e.Frequency),
		IsActive:      e.IsActive,
		MonthlyAmount: monthly.StringFixed(2),
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if e.IsActive {
		next, err := core.NextCharge(e.CreatedAt, now, e.Frequency)
		if err != nil {
			return expenseView{}, err
		}
		v.NextCharge = next.Format(dateLayout)
	}
	return v, nil
}

type timelinePointView struct {
	Month     string  `json:"month"`
	Label     string  `json:"label"`
	Total     float64 `json:"total"`
	Formatted string  `json:"formatted"`
}

type timelineView struct {
	Version int64               `json:"version"`
	Months  []timelinePointView `json:"months"`
}

func newTimelineView(points []core.TimelinePoint, version int64, opts core.FormatOptions) timelineView {
	v := timelineView{Version: version, Months: make([]timelinePointView, 0, len(points))}
	for _, p := range points {
		pv := timelinePointView{Month: p.Month, Label: p.Label, Formatted: core.FormatMoney(p.Total, opts)}
		if !opts.Hidden {
			pv.Total = p.Total.InexactFloat64()
		}
		v.Months = append(v.Months, pv)
	}
	return v
}
