package tasks

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	"github.com/taskwire/taskwire/internal/events"
)

const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
)

var ErrTitleRequired = errors.New("title is required")
var ErrTaskNotFound = errors.New("task not found")
var ErrInvalidPriority = errors.New("invalid priority")
var ErrInvalidRecurrence = errors.New("invalid recurrence")

// Task is the persisted write-model record. The event payloads carry
// projections of it, never the whole thing.
type Task struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Title       string             `json:"title"`
	Notes       string             `json:"notes,omitempty"`
	Status      string             `json:"status"`
	Priority    string             `json:"priority"`
	Tags        []string           `json:"tags,omitempty"`
	DueAt       *time.Time         `json:"due_at,omitempty"`
	Recurrence  *events.Recurrence `json:"recurrence,omitempty"`
	ChainID     string             `json:"chain_id,omitempty"`
	Depth       int                `json:"depth,omitempty"`
	LeadMinutes int                `json:"reminder_lead_minutes,omitempty"`
	Sent        bool               `json:"reminder_sent"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type Repository interface {
	Create(ctx context.Context, task Task) error
	Get(ctx context.Context, userID, taskID string) (Task, error)
	List(ctx context.Context, userID string) ([]Task, error)
	Update(ctx context.Context, task Task) error
	Complete(ctx context.Context, userID, taskID string, at time.Time) (Task, error)
	Delete(ctx context.Context, userID, taskID string, at time.Time) (Task, error)
}

// Emitter is the post-commit event hook. Implementations never return
// errors; emission failure must not fail the mutation.
type Emitter interface {
	Emit(ctx context.Context, eventType, userID, subjectID string, payload any)
	EmitReminderIfNeeded(ctx context.Context, userID, taskID, title string, dueAt *time.Time, leadMinutes int)
}

type Service struct {
	Repo    Repository
	Emitter Emitter
	Now     func() time.Time
	NewID   func() string
}

func NewService(repo Repository, emitter Emitter) *Service {
	return &Service{
		Repo:    repo,
		Emitter: emitter,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   nuid.Next,
	}
}

type CreateRequest struct {
	Title       string             `json:"title"`
	Notes       string             `json:"notes"`
	Priority    string             `json:"priority"`
	Tags        []string           `json:"tags"`
	DueAt       *time.Time         `json:"due_at"`
	Recurrence  *events.Recurrence `json:"recurrence"`
	LeadMinutes int                `json:"reminder_lead_minutes"`
}

type UpdateRequest struct {
	Title       *string            `json:"title"`
	Notes       *string            `json:"notes"`
	Priority    *string            `json:"priority"`
	Tags        *[]string          `json:"tags"`
	DueAt       *time.Time         `json:"due_at"`
	Recurrence  *events.Recurrence `json:"recurrence"`
	LeadMinutes *int               `json:"reminder_lead_minutes"`
}

func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Task{}, ErrTitleRequired
	}
	priority, err := normalizePriority(req.Priority)
	if err != nil {
		return Task{}, err
	}
	if err := validateRecurrence(req.Recurrence); err != nil {
		return Task{}, err
	}

	now := s.Now()
	task := Task{
		ID:          s.NewID(),
		UserID:      userID,
		Title:       title,
		Notes:       strings.TrimSpace(req.Notes),
		Status:      StatusOpen,
		Priority:    priority,
		Tags:        req.Tags,
		DueAt:       req.DueAt,
		Recurrence:  req.Recurrence,
		LeadMinutes: req.LeadMinutes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Recurrence != nil {
		// The first task of a recurring definition roots its own chain.
		task.ChainID = task.ID
	}

	if err := s.Repo.Create(ctx, task); err != nil {
		return Task{}, err
	}

	s.Emitter.Emit(ctx, events.TaskCreated, userID, task.ID, events.TaskPayload{
		TaskID:      task.ID,
		Title:       task.Title,
		Status:      task.Status,
		Priority:    task.Priority,
		DueAt:       task.DueAt,
		Recurrence:  task.Recurrence,
		ChainID:     task.ChainID,
		Depth:       task.Depth,
		LeadMinutes: task.LeadMinutes,
	})
	s.Emitter.EmitReminderIfNeeded(ctx, userID, task.ID, task.Title, task.DueAt, task.LeadMinutes)
	return task, nil
}

// Update applies the requested changes and emits a task.updated event
// whose payload contains only the fields that actually changed.
func (s *Service) Update(ctx context.Context, userID, taskID string, req UpdateRequest) (Task, error) {
	task, err := s.Repo.Get(ctx, userID, taskID)
	if err != nil {
		return Task{}, err
	}

	payload := events.TaskPayload{TaskID: task.ID}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return Task{}, ErrTitleRequired
		}
		task.Title = title
		payload.Title = title
	}
	if req.Notes != nil {
		task.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Priority != nil {
		priority, err := normalizePriority(*req.Priority)
		if err != nil {
			return Task{}, err
		}
		task.Priority = priority
		payload.Priority = priority
	}
	if req.Tags != nil {
		task.Tags = *req.Tags
	}
	if req.DueAt != nil {
		task.DueAt = req.DueAt
		payload.DueAt = req.DueAt
		// A moved deadline re-arms the reminder.
		task.Sent = false
	}
	if req.Recurrence != nil {
		if err := validateRecurrence(req.Recurrence); err != nil {
			return Task{}, err
		}
		task.Recurrence = req.Recurrence
		payload.Recurrence = req.Recurrence
		if task.ChainID == "" {
			task.ChainID = task.ID
		}
	}
	if req.LeadMinutes != nil {
		task.LeadMinutes = *req.LeadMinutes
		payload.LeadMinutes = *req.LeadMinutes
	}

	task.UpdatedAt = s.Now()
	if err := s.Repo.Update(ctx, task); err != nil {
		return Task{}, err
	}

	s.Emitter.Emit(ctx, events.TaskUpdated, userID, task.ID, payload)
	if !task.Sent {
		s.Emitter.EmitReminderIfNeeded(ctx, userID, task.ID, task.Title, task.DueAt, task.LeadMinutes)
	}
	return task, nil
}

func (s *Service) Complete(ctx context.Context, userID, taskID string) (Task, error) {
	task, err := s.Repo.Complete(ctx, userID, taskID, s.Now())
	if err != nil {
		return Task{}, err
	}

	s.Emitter.Emit(ctx, events.TaskCompleted, userID, task.ID, events.TaskPayload{
		TaskID:      task.ID,
		Status:      task.Status,
		DueAt:       task.DueAt,
		Recurrence:  task.Recurrence,
		ChainID:     task.ChainID,
		Depth:       task.Depth,
		LeadMinutes: task.LeadMinutes,
	})
	return task, nil
}

func (s *Service) Delete(ctx context.Context, userID, taskID string) error {
	task, err := s.Repo.Delete(ctx, userID, taskID, s.Now())
	if err != nil {
		return err
	}

	s.Emitter.Emit(ctx, events.TaskDeleted, userID, task.ID, events.TaskPayload{
		TaskID: task.ID,
		Title:  task.Title,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, userID, taskID string) (Task, error) {
	return s.Repo.Get(ctx, userID, taskID)
}

func (s *Service) List(ctx context.Context, userID string) ([]Task, error) {
	return s.Repo.List(ctx, userID)
}

func normalizePriority(raw string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "":
		return "medium", nil
	case "low", "medium", "high":
		return strings.TrimSpace(strings.ToLower(raw)), nil
	default:
		return "", ErrInvalidPriority
	}
}

func validateRecurrence(rule *events.Recurrence) error {
	if rule == nil {
		return nil
	}
	switch rule.Frequency {
	case "daily", "weekly", "monthly":
		return nil
	case "custom":
		if strings.TrimSpace(rule.Expression) == "" {
			return ErrInvalidRecurrence
		}
		return nil
	default:
		return ErrInvalidRecurrence
	}
}
