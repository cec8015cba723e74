package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/core"
	"ricorrenti/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseStore is the persistence the service writes through. Every mutation
// records its event in the same transaction.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.RecurringExpense) (storage.StoredEvent, error)
	UpdateExpense(ctx context.Context, e core.RecurringExpense) (core.RecurringExpense, storage.StoredEvent, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) (core.RecurringExpense, storage.StoredEvent, error)
	DeleteExpense(ctx context.Context, id string, at time.Time) (storage.StoredEvent, error)
	GetExpense(ctx context.Context, id string) (core.RecurringExpense, error)
	ListExpenses(ctx context.Context) ([]core.RecurringExpense, error)
	AppendEvent(ctx context.Context, ev core.ExpenseEvent) (storage.StoredEvent, error)
}

// EventPublisher notifies the timeline worker about new events.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error
}

// ExpenseInput carries the user-editable fields of a recurring expense.
type ExpenseInput struct {
	Description string
	Category    string
	Amount      decimal.Decimal
	Frequency   core.Frequency
}

// ExpenseService orchestrates recurring expense changes across SQLite and AMQP.
type ExpenseService struct {
	store     ExpenseStore
	publisher EventPublisher
	now       func() time.Time
}

// NewExpenseService builds the service. publisher may be nil, in which case
// events are only stored.
func NewExpenseService(store ExpenseStore, publisher EventPublisher) *ExpenseService {
	return &ExpenseService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *ExpenseService) Create(ctx context.Context, in ExpenseInput) (core.RecurringExpense, error) {
	now := s.now().UTC()
	e := core.RecurringExpense{
		ID:          uuid.NewString(),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Amount:      in.Amount,
		Frequency:   in.Frequency,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("create expense: %w", err)
	}
	s.publish(ctx, stored)
	return e, nil
}

func (s *ExpenseService) Update(ctx context.Context, id string, in ExpenseInput) (core.RecurringExpense, error) {
	e := core.RecurringExpense{
		ID:          id,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Amount:      in.Amount,
		Frequency:   in.Frequency,
		UpdatedAt:   s.now().UTC(),
	}
	cur, stored, err := s.store.UpdateExpense(ctx, e)
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	s.publish(ctx, stored)
	return cur, nil
}

func (s *ExpenseService) Pause(ctx context.Context, id string) (core.RecurringExpense, error) {
	return s.setActive(ctx, id, false)
}

func (s *ExpenseService) Activate(ctx context.Context, id string) (core.RecurringExpense, error) {
	return s.setActive(ctx, id, true)
}

func (s *ExpenseService) setActive(ctx context.Context, id string, active bool) (core.RecurringExpense, error) {
	cur, stored, err := s.store.SetActive(ctx, id, active, s.now().UTC())
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("set active=%t on %s: %w", active, id, err)
	}
	s.publish(ctx, stored)
	return cur, nil
}

func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	stored, err := s.store.DeleteExpense(ctx, id, s.now().UTC())
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	s.publish(ctx, stored)
	return nil
}

func (s *ExpenseService) Get(ctx context.Context, id string) (core.RecurringExpense, error) {
	return s.store.GetExpense(ctx, id)
}

func (s *ExpenseService) List(ctx context.Context) ([]core.RecurringExpense, error) {
	return s.store.ListExpenses(ctx)
}

// RecordEvent ingests an event produced elsewhere, e.g. an import.
func (s *ExpenseService) RecordEvent(ctx context.Context, ev core.ExpenseEvent) (int64, error) {
	stored, err := s.store.AppendEvent(ctx, ev)
	if err != nil {
		return 0, fmt.Errorf("record event: %w", err)
	}
	s.publish(ctx, stored)
	return stored.ID, nil
}

// publish is best effort: the event is already durable, and the worker also
// refreshes on a timer.
func (s *ExpenseService) publish(ctx context.Context, stored storage.StoredEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping event message", "event_id", stored.ID)
		return
	}
	msg := amqp.NewExpenseEventMessage(stored.ID, stored.ExpenseID, string(stored.Type), stored.ChangedAt)
	if err := s.publisher.PublishExpenseEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"event_id", stored.ID,
			"expense_id", stored.ExpenseID,
			"error", err)
	}
}
