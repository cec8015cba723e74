package http

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ricorrenti/internal/core"
)

func TestNewExpenseView(t *testing.T) {
	created := time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC)
	now := time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC)
	e := core.RecurringExpense{
		ID:          "e1",
		Description: "Gym",
		Amount:      decimal.RequireFromString("0.01"),
		Frequency:   core.Quarterly,
		IsActive:    true,
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	v, err := newExpenseView(e, now)
	if err != nil {
		t.Fatalf("newExpenseView: %v", err)
	}
	if v.MonthlyAmount != "0.00" {
		t.Errorf("monthly amount = %s, want 0.00", v.MonthlyAmount)
	}
	if v.NextCharge != "2024-04-30" {
		t.Errorf("next charge = %s, want 2024-04-30", v.NextCharge)
	}

	e.IsActive = false
	v, err = newExpenseView(e, now)
	if err != nil {
		t.Fatalf("newExpenseView paused: %v", err)
	}
	if v.NextCharge != "" {
		t.Errorf("paused next charge = %q, want empty", v.NextCharge)
	}

	e.Frequency = "daily"
	if _, err := newExpenseView(e, now); !errors.Is(err, core.ErrUnknownFrequency) {
		t.Errorf("err = %v, want ErrUnknownFrequency", err)
	}
	if _, err := newDashboardRow(e, now, core.FormatOptions{}); !errors.Is(err, core.ErrUnknownFrequency) {
		t.Errorf("dashboard row err = %v, want ErrUnknownFrequency", err)
	}
}
