package core

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultTimelineMonths = 12

	monthKeyLayout   = "2006-01"
	monthLabelLayout = "Jan 06"
)

// TimelinePoint is the total monthly-normalized cost of the active recurring
// expenses as it stood after the last event of Month.
type TimelinePoint struct {
	Month string // YYYY-MM
	Label string // e.g. "Mar 24"
	Total decimal.Decimal
}

// TimelineOptions tunes the reconstruction. The zero value keeps the last
// DefaultTimelineMonths months and buckets events by their UTC month.
type TimelineOptions struct {
	Months   int
	Location *time.Location
}

type expenseState struct {
	amount    decimal.Decimal
	frequency Frequency
	isActive  bool
}

// Reconstruct replays events in chronological order and returns the monthly
// cost series with the default options.
func Reconstruct(events []ExpenseEvent) ([]TimelinePoint, error) {
	return ReconstructWith(events, TimelineOptions{})
}

// ReconstructWith replays events in chronological order and returns, for each
// month that saw at least one event, the total active cost after that month's
// last event. The input slice is not modified.
//
// Events that fail validation abort the replay: a partial series would render
// misleading figures.
func ReconstructWith(events []ExpenseEvent, opts TimelineOptions) ([]TimelinePoint, error) {
	if len(events) == 0 {
		return []TimelinePoint{}, nil
	}
	months := opts.Months
	if months <= 0 {
		months = DefaultTimelineMonths
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	for i, e := range events {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("event %d (expense %q): %w", i, e.ExpenseID, err)
		}
	}

	sorted := slices.Clone(events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ChangedAt.Before(sorted[j].ChangedAt)
	})

	states := make(map[string]*expenseState)
	totals := make(map[string]decimal.Decimal)
	var keys []string

	for _, e := range sorted {
		apply(states, e)

		total := decimal.Zero
		for _, st := range states {
			if !st.isActive {
				continue
			}
			y, err := AnnualAmount(st.amount, st.frequency)
			if err != nil {
				return nil, err
			}
			total = total.Add(y)
		}

		key := MonthKey(e.ChangedAt, loc)
		if _, seen := totals[key]; !seen {
			keys = append(keys, key)
		}
		totals[key] = MonthlyTotal(total)
	}

	slices.Sort(keys)
	if len(keys) > months {
		keys = keys[len(keys)-months:]
	}

	out := make([]TimelinePoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, TimelinePoint{
			Month: k,
			Label: MonthLabel(k),
			Total: totals[k],
		})
	}
	return out, nil
}

func apply(states map[string]*expenseState, e ExpenseEvent) {
	st, ok := states[e.ExpenseID]
	switch e.Type {
	case EventCreated, EventUpdated:
		states[e.ExpenseID] = &expenseState{amount: e.Amount, frequency: e.Frequency, isActive: e.IsActive}
	case EventPaused, EventActivated:
		active := e.Type == EventActivated
		if ok {
			st.isActive = active
			return
		}
		states[e.ExpenseID] = &expenseState{amount: e.Amount, frequency: e.Frequency, isActive: active}
	case EventDeleted:
		if ok {
			st.isActive = false
		}
	}
}

// MonthKey returns the YYYY-MM bucket of t in loc.
func MonthKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(monthKeyLayout)
}

// MonthLabel turns a YYYY-MM key into a short label such as "Mar 24".
// Keys that do not parse are returned unchanged.
func MonthLabel(key string) string {
	t, err := time.Parse(monthKeyLayout, key)
	if err != nil {
		return key
	}
	return t.Format(monthLabelLayout)
}
