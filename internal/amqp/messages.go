package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExpenseEventMessage notifies consumers that the event log grew.
// The worker re-reads the log from the database, so the message only carries
// what is needed for logging and deduplication.
type ExpenseEventMessage struct {
	EventID   int64     `json:"event_id"`
	ExpenseID string    `json:"expense_id"`
	EventType string    `json:"event_type"`
	ChangedAt time.Time `json:"changed_at"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEventMessage(eventID int64, expenseID, eventType string, changedAt time.Time) *ExpenseEventMessage {
	return &ExpenseEventMessage{
		EventID:   eventID,
		ExpenseID: expenseID,
		EventType: eventType,
		ChangedAt: changedAt,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventMessageFromJSON decodes a message and rejects ones without an event id.
func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.EventID <= 0 {
		return nil, fmt.Errorf("invalid event id %d", msg.EventID)
	}
	return &msg, nil
}
