package http

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
)

var templateFuncs = template.FuncMap{
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
}

type dashboardRow struct {
	ID        string
	Desc      string
	Category  string
	Amount    string
	Monthly   string
	Next      string
	Frequency string
	IsActive  bool
}

type dashboardBar struct {
	Label     string
	Month     string
	Formatted string
	Percent   int
}

type dashboardData struct {
	Hidden      bool
	MonthlyCost string
	Expenses    []dashboardRow
	Timeline    []dashboardBar
	Version     int64
	Frequencies []core.Frequency
}

// timelineBars scales each month against the largest total. Bars are empty
// when every total is zero.
func timelineBars(points []core.TimelinePoint, opts core.FormatOptions) []dashboardBar {
	peak := decimal.Zero
	for _, p := range points {
		if p.Total.GreaterThan(peak) {
			peak = p.Total
		}
	}

	bars := make([]dashboardBar, 0, len(points))
	for _, p := range points {
		bar := dashboardBar{Label: p.Label, Month: p.Month, Formatted: core.FormatMoney(p.Total, opts)}
		if peak.IsPositive() {
			bar.Percent = int(p.Total.Mul(decimal.NewFromInt(100)).Div(peak).Round(0).IntPart())
		}
		bars = append(bars, bar)
	}
	return bars
}

func newDashboardRow(e core.RecurringExpense, now time.Time, opts core.FormatOptions) (dashboardRow, error) {
	monthly, err := e.MonthlyAmount()
	if err != nil {
		return dashboardRow{}, err
	}
	row := dashboardRow{
		ID:        e.ID,
		Desc:      e.Description,
		Category:  e.Category,
		Amount:    core.FormatMoney(e.Amount, opts),
		Monthly:   core.FormatMoney(monthly, opts),
		Frequency: string(e.Frequency),
		IsActive:  e.IsActive,
	}
	if e.IsActive {
		next, err := core.NextCharge(e.CreatedAt, now, e.Frequency)
		if err != nil {
			return dashboardRow{}, err
		}
		row.Next = next.Format(dateLayout)
	}
	return row, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	if s.templates == nil {
		logger.Error("Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	fail := func(err error) {
		logger.LogFields(ctx, slog.LevelError, "Dashboard load failed",
			applog.NewFields().WithOperation(applog.OpRender).WithError(err))
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
	}

	var (
		expenses []core.RecurringExpense
		points   []core.TimelinePoint
		version  int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = s.expenses.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		points, version, err = s.timeline.Timeline(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		fail(err)
		return
	}

	total, err := core.MonthlyCost(expenses)
	if err != nil {
		fail(err)
		return
	}

	opts := s.formatOptions(r)
	data := dashboardData{
		Hidden:      opts.Hidden,
		MonthlyCost: core.FormatMoney(total, opts),
		Expenses:    make([]dashboardRow, 0, len(expenses)),
		Timeline:    timelineBars(points, opts),
		Version:     version,
		Frequencies: core.Frequencies(),
	}
	now := time.Now()
	for _, e := range expenses {
		row, err := newDashboardRow(e, now, opts)
		if err != nil {
			fail(err)
			return
		}
		data.Expenses = append(data.Expenses, row)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		logger.Error("Dashboard template execution failed", applog.FieldError, err, "template", "dashboard.html")
	}
}
