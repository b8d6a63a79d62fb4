package tasks

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/taskwire/taskwire/internal/events"
)

type emittedEvent struct {
	eventType string
	userID    string
	subjectID string
	payload   events.TaskPayload
}

type emittedReminder struct {
	taskID      string
	title       string
	dueAt       *time.Time
	leadMinutes int
}

type fakeEmitter struct {
	events    []emittedEvent
	reminders []emittedReminder
}

func (f *fakeEmitter) Emit(_ context.Context, eventType, userID, subjectID string, payload any) {
	rec := emittedEvent{eventType: eventType, userID: userID, subjectID: subjectID}
	if p, ok := payload.(events.TaskPayload); ok {
		rec.payload = p
	}
	f.events = append(f.events, rec)
}

func (f *fakeEmitter) EmitReminderIfNeeded(_ context.Context, _, taskID, title string, dueAt *time.Time, leadMinutes int) {
	if dueAt == nil || leadMinutes <= 0 {
		return
	}
	f.reminders = append(f.reminders, emittedReminder{taskID: taskID, title: title, dueAt: dueAt, leadMinutes: leadMinutes})
}

type fakeRepo struct {
	tasks map[string]Task
	err   error
}

func newFakeRepo() *fakeRepo { return &fakeRepo{tasks: map[string]Task{}} }

func (f *fakeRepo) Create(_ context.Context, task Task) error {
	if f.err != nil {
		return f.err
	}
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeRepo) Get(_ context.Context, userID, taskID string) (Task, error) {
	task, ok := f.tasks[taskID]
	if !ok || task.UserID != userID {
		return Task{}, ErrTaskNotFound
	}
	return task, nil
}

func (f *fakeRepo) List(_ context.Context, userID string) ([]Task, error) {
	var out []Task
	for _, task := range f.tasks {
		if task.UserID == userID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (f *fakeRepo) Update(_ context.Context, task Task) error {
	if _, ok := f.tasks[task.ID]; !ok {
		return ErrTaskNotFound
	}
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeRepo) Complete(ctx context.Context, userID, taskID string, at time.Time) (Task, error) {
	task, err := f.Get(ctx, userID, taskID)
	if err != nil {
		return Task{}, err
	}
	task.Status = StatusCompleted
	task.UpdatedAt = at
	f.tasks[taskID] = task
	return task, nil
}

func (f *fakeRepo) Delete(ctx context.Context, userID, taskID string, _ time.Time) (Task, error) {
	task, err := f.Get(ctx, userID, taskID)
	if err != nil {
		return Task{}, err
	}
	delete(f.tasks, taskID)
	return task, nil
}

func newTestService(repo Repository, emitter Emitter) *Service {
	s := NewService(repo, emitter)
	s.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	s.NewID = func() string {
		n++
		return "task-" + strconv.Itoa(n)
	}
	return s
}

func TestCreate_EmitsTaskCreated(t *testing.T) {
	repo := newFakeRepo()
	em := &fakeEmitter{}
	s := newTestService(repo, em)

	due := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	task, err := s.Create(context.Background(), "user-1", CreateRequest{
		Title:       "  Buy milk  ",
		Priority:    "high",
		DueAt:       &due,
		LeadMinutes: 30,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if task.Title != "Buy milk" || task.Status != StatusOpen || task.Priority != "high" {
		t.Fatalf("task = %+v", task)
	}
	if _, ok := repo.tasks[task.ID]; !ok {
		t.Fatal("task not persisted")
	}

	if len(em.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(em.events))
	}
	ev := em.events[0]
	if ev.eventType != events.TaskCreated || ev.userID != "user-1" || ev.subjectID != task.ID {
		t.Fatalf("event = %+v", ev)
	}
	if ev.payload.Title != "Buy milk" || ev.payload.Status != StatusOpen || ev.payload.LeadMinutes != 30 {
		t.Fatalf("payload = %+v", ev.payload)
	}

	if len(em.reminders) != 1 || em.reminders[0].leadMinutes != 30 {
		t.Fatalf("reminder intent = %+v", em.reminders)
	}
}

func TestCreate_RecurringTaskRootsItsChain(t *testing.T) {
	repo := newFakeRepo()
	em := &fakeEmitter{}
	s := newTestService(repo, em)

	task, err := s.Create(context.Background(), "user-1", CreateRequest{
		Title:      "Water plants",
		Recurrence: &events.Recurrence{Frequency: "weekly"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if task.ChainID != task.ID {
		t.Fatalf("chain_id = %q, want the task's own id %q", task.ChainID, task.ID)
	}
	if em.events[0].payload.ChainID != task.ID {
		t.Fatalf("event payload chain_id = %q", em.events[0].payload.ChainID)
	}
}

func TestCreate_Validation(t *testing.T) {
	s := newTestService(newFakeRepo(), &fakeEmitter{})

	if _, err := s.Create(context.Background(), "user-1", CreateRequest{Title: "   "}); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("expected ErrTitleRequired, got %v", err)
	}
	if _, err := s.Create(context.Background(), "user-1", CreateRequest{Title: "x", Priority: "urgent"}); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
	if _, err := s.Create(context.Background(), "user-1", CreateRequest{
		Title:      "x",
		Recurrence: &events.Recurrence{Frequency: "hourly"},
	}); !errors.Is(err, ErrInvalidRecurrence) {
		t.Fatalf("expected ErrInvalidRecurrence, got %v", err)
	}
	if _, err := s.Create(context.Background(), "user-1", CreateRequest{
		Title:      "x",
		Recurrence: &events.Recurrence{Frequency: "custom"},
	}); !errors.Is(err, ErrInvalidRecurrence) {
		t.Fatalf("custom without expression: expected ErrInvalidRecurrence, got %v", err)
	}
}

func TestCreate_RepoFailureEmitsNothing(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("db down")
	em := &fakeEmitter{}
	s := newTestService(repo, em)

	if _, err := s.Create(context.Background(), "user-1", CreateRequest{Title: "x"}); err == nil {
		t.Fatal("expected repo error")
	}
	if len(em.events) != 0 {
		t.Fatalf("no event may be emitted before the write lands, got %d", len(em.events))
	}
}

func TestUpdate_PayloadCarriesOnlyChangedFields(t *testing.T) {
	repo := newFakeRepo()
	em := &fakeEmitter{}
	s := newTestService(repo, em)

	task, err := s.Create(context.Background(), "user-1", CreateRequest{Title: "Buy milk", Priority: "low"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	em.events = nil

	newTitle := "Buy oat milk"
	if _, err := s.Update(context.Background(), "user-1", task.ID, UpdateRequest{Title: &newTitle}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if len(em.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(em.events))
	}
	ev := em.events[0]
	if ev.eventType != events.TaskUpdated {
		t.Fatalf("event type = %q", ev.eventType)
	}
	if ev.payload.Title != newTitle {
		t.Fatalf("payload title = %q", ev.payload.Title)
	}
	if ev.payload.Priority != "" || ev.payload.DueAt != nil || ev.payload.Recurrence != nil {
		t.Fatalf("payload carries unchanged fields: %+v", ev.payload)
	}
}

func TestUpdate_MovedDueDateReArmsReminder(t *testing.T) {
	repo := newFakeRepo()
	em := &fakeEmitter{}
	s := newTestService(repo, em)

	task, err := s.Create(context.Background(), "user-1", CreateRequest{Title: "Buy milk", LeadMinutes: 15})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	stored := repo.tasks[task.ID]
	stored.Sent = true
	repo.tasks[task.ID] = stored
	em.reminders = nil

	due := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	updated, err := s.Update(context.Background(), "user-1", task.ID, UpdateRequest{DueAt: &due})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Sent {
		t.Fatal("moving the due date must clear the sent flag")
	}
	if len(em.reminders) != 1 {
		t.Fatalf("expected re-armed reminder intent, got %d", len(em.reminders))
	}
}

func TestComplete_EmitsRecurrenceContext(t *testing.T) {
	repo := newFakeRepo()
	em := &fakeEmitter{}
	s := newTestService(repo, em)

	due := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	task, err := s.Create(context.Background(), "user-1", CreateRequest{
		Title:      "Water plants",
		DueAt:      &due,
		Recurrence: &events.Recurrence{Frequency: "weekly"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	em.events = nil

	completed, err := s.Complete(context.Background(), "user-1", task.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Status != StatusCompleted {
		t.Fatalf("status = %q", completed.Status)
	}

	ev := em.events[0]
	if ev.eventType != events.TaskCompleted {
		t.Fatalf("event type = %q", ev.eventType)
	}
	if ev.payload.Recurrence == nil || ev.payload.Recurrence.Frequency != "weekly" {
		t.Fatalf("payload lost recurrence: %+v", ev.payload)
	}
	if ev.payload.ChainID != task.ID || ev.payload.DueAt == nil || !ev.payload.DueAt.Equal(due) {
		t.Fatalf("payload = %+v", ev.payload)
	}
	if ev.payload.Title != "" {
		t.Fatalf("completion payload must not carry the title, got %q", ev.payload.Title)
	}
}

func TestDelete_EmitsTaskDeleted(t *testing.T) {
	repo := newFakeRepo()
	em := &fakeEmitter{}
	s := newTestService(repo, em)

	task, err := s.Create(context.Background(), "user-1", CreateRequest{Title: "Old chore"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	em.events = nil

	if err := s.Delete(context.Background(), "user-1", task.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	ev := em.events[0]
	if ev.eventType != events.TaskDeleted || ev.payload.TaskID != task.ID || ev.payload.Title != "Old chore" {
		t.Fatalf("event = %+v", ev)
	}
	if _, err := s.Get(context.Background(), "user-1", task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("task still readable after delete: %v", err)
	}
}

func TestNormalizePriority(t *testing.T) {
	got, err := normalizePriority("")
	if err != nil || got != "medium" {
		t.Fatalf("empty priority: %q %v", got, err)
	}
	got, err = normalizePriority("  HIGH ")
	if err != nil || got != "high" {
		t.Fatalf("case folding: %q %v", got, err)
	}
}
