package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/taskwire/taskwire/internal/messaging"
)

// Closed set of event types carried over the pipeline.
const (
	TaskCreated   = "task.created"
	TaskUpdated   = "task.updated"
	TaskCompleted = "task.completed"
	TaskDeleted   = "task.deleted"
	ReminderDue   = "reminder.due"
)

const SchemaVersion = "1.0"

var ErrUnknownEventType = errors.New("unknown event type")

// Envelope is the wire shape of one domain event. It is constructed once
// by the emitter and never mutated afterwards; both transport bindings
// ship the same marshaled bytes.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	UserID        string          `json:"user_id"`
	SubjectID     string          `json:"subject_id"`
	Payload       json.RawMessage `json:"payload"`
}

// TopicFor resolves the logical channel an event type is published on.
// Many event types map onto one topic; no type maps onto two.
func TopicFor(eventType string) (string, error) {
	switch eventType {
	case TaskCreated, TaskUpdated, TaskCompleted, TaskDeleted:
		return messaging.TopicTaskEvents, nil
	case ReminderDue:
		return messaging.TopicReminders, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}

// Recurrence describes how a task repeats. Frequency is one of
// daily/weekly/monthly/custom; Expression is set only for custom
// ("every N days|weeks|months").
type Recurrence struct {
	Frequency  string `json:"frequency"`
	Expression string `json:"expression,omitempty"`
}

// TaskPayload is the minimal projection carried by task events. It never
// contains the full persisted record; mutations include only the fields
// a consumer needs.
type TaskPayload struct {
	TaskID      string      `json:"task_id"`
	Title       string      `json:"title,omitempty"`
	Status      string      `json:"status,omitempty"`
	Priority    string      `json:"priority,omitempty"`
	DueAt       *time.Time  `json:"due_at,omitempty"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
	ChainID     string      `json:"chain_id,omitempty"`
	Depth       int         `json:"depth,omitempty"`
	LeadMinutes int         `json:"lead_minutes,omitempty"`
}

// ReminderPayload is the minimal projection carried by reminder.due
// events. RemindAt is precomputed as due_at minus the lead time.
type ReminderPayload struct {
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title,omitempty"`
	DueAt       time.Time `json:"due_at"`
	LeadMinutes int       `json:"lead_minutes"`
	RemindAt    time.Time `json:"remind_at"`
}
