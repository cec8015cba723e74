package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Annual    Frequency = "annual"
)

const (
	EventCreated   EventType = "created"
	EventUpdated   EventType = "updated"
	EventPaused    EventType = "paused"
	EventActivated EventType = "activated"
	EventDeleted   EventType = "deleted"
)

type (
	// Frequency is the native billing cadence of a recurring expense.
	Frequency string

	// EventType names a step in a recurring expense's lifecycle.
	EventType string

	// ExpenseEvent is one immutable entry of the expense history log.
	ExpenseEvent struct {
		ExpenseID string
		Type      EventType
		Amount    decimal.Decimal // in the native frequency
		Frequency Frequency
		IsActive  bool
		ChangedAt time.Time
	}

	RecurringExpense struct {
		ID          string
		Description string
		Category    string
		Amount      decimal.Decimal
		Frequency   Frequency
		IsActive    bool
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrUnknownFrequency   = errors.New("unknown frequency")
	ErrUnknownEventType   = errors.New("unknown event type")
	ErrMissingExpenseID   = errors.New("missing expense id")
	ErrMissingTimestamp   = errors.New("missing changed_at timestamp")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

// Frequencies returns every supported billing cadence.
func Frequencies() []Frequency {
	return []Frequency{Weekly, Monthly, Quarterly, Annual}
}

func (f Frequency) Validate() error {
	switch f {
	case Weekly, Monthly, Quarterly, Annual:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFrequency, string(f))
}

// ParseFrequency normalizes user input ("Monthly ", "ANNUAL") into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}

func (t EventType) Validate() error {
	switch t {
	case EventCreated, EventUpdated, EventPaused, EventActivated, EventDeleted:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownEventType, string(t))
}

// Validate reports the first missing or malformed field of the event.
func (e ExpenseEvent) Validate() error {
	if strings.TrimSpace(e.ExpenseID) == "" {
		return ErrMissingExpenseID
	}
	if err := e.Type.Validate(); err != nil {
		return err
	}
	if err := e.Frequency.Validate(); err != nil {
		return err
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if e.ChangedAt.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

func (re RecurringExpense) Validate() error {
	if len(strings.TrimSpace(re.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(re.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if !re.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return re.Frequency.Validate()
}

// Event builds the log entry describing re at time at.
func (re RecurringExpense) Event(t EventType, at time.Time) ExpenseEvent {
	return ExpenseEvent{
		ExpenseID: re.ID,
		Type:      t,
		Amount:    re.Amount,
		Frequency: re.Frequency,
		IsActive:  re.IsActive,
		ChangedAt: at,
	}
}

// MonthlyAmount is the expense cost expressed per month, rounded to cents.
func (re RecurringExpense) MonthlyAmount() (decimal.Decimal, error) {
	annual, err := AnnualAmount(re.Amount, re.Frequency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("expense %q: %w", re.ID, err)
	}
	return MonthlyTotal(annual), nil
}

// MonthlyCost sums the monthly-equivalent cost of the active expenses. An
// expense with an unknown frequency fails the whole sum.
func MonthlyCost(expenses []RecurringExpense) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range expenses {
		if !e.IsActive {
			continue
		}
		annual, err := AnnualAmount(e.Amount, e.Frequency)
		if err != nil {
			return decimal.Zero, fmt.Errorf("expense %q: %w", e.ID, err)
		}
		total = total.Add(annual)
	}
	return MonthlyTotal(total), nil
}
