package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/harrisonrobin/taskcal/pkg/google"
	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/harrisonrobin/taskcal/pkg/overdue"
	"github.com/harrisonrobin/taskcal/pkg/scheduler"
	"github.com/harrisonrobin/taskcal/pkg/store"
	"github.com/harrisonrobin/taskcal/pkg/util"
)

type TaskStore interface {
	Create(ctx context.Context, t model.Task) error
	Get(ctx context.Context, id string) (model.Task, error)
	ListCreatedBetween(ctx context.Context, start, end time.Time, includeCompleted bool) ([]model.Task, error)
	ListNotCompleted(ctx context.Context) ([]model.Task, error)
	UpdateStatus(ctx context.Context, id string, status model.Status, now time.Time) (model.Task, model.Task, error)
	UpdateFields(ctx context.Context, id string, patch model.TaskPatch, now time.Time) (model.Task, model.Task, error)
	Delete(ctx context.Context, id string) (int64, error)
	LinkedEventID(ctx context.Context, id string) (string, bool, error)
	SetLinkedEventID(ctx context.Context, id, eventID string) error
	ClearLinkedEventID(ctx context.Context, id string) error
}

type SettingsReader interface {
	Get(ctx context.Context, now time.Time) (model.Settings, error)
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type EventClient interface {
	CreateEvent(ctx context.Context, accessToken string, e google.Event) (string, error)
	UpdateEvent(ctx context.Context, accessToken, eventID string, e google.Event) error
	DeleteEvent(ctx context.Context, accessToken, eventID string) error
}

// TaskService owns the task lifecycle and keeps each task's calendar event in
// step with it. Local state is committed first; remote calls run on the
// scheduler with no store lock held; the link is then reconciled.
type TaskService struct {
	tasks    TaskStore
	settings SettingsReader
	tokens   TokenSource
	events   EventClient
	pool     *scheduler.Pool
	logger   *log.Logger
	now      func() time.Time
}

type TaskServiceOption func(*TaskService)

func WithLogger(l *log.Logger) TaskServiceOption {
	return func(s *TaskService) { s.logger = l }
}

func WithClock(now func() time.Time) TaskServiceOption {
	return func(s *TaskService) { s.now = now }
}

func NewTaskService(tasks TaskStore, settings SettingsReader, tokens TokenSource, events EventClient, pool *scheduler.Pool, opts ...TaskServiceOption) *TaskService {
	s := &TaskService{
		tasks:    tasks,
		settings: settings,
		tokens:   tokens,
		events:   events,
		pool:     pool,
		logger:   log.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewTask is the input for Create.
type NewTask struct {
	Title string
	// CreatedAt places the task on a day; zero means now.
	CreatedAt time.Time
}

func (s *TaskService) Create(ctx context.Context, in NewTask) (model.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Task{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	created := in.CreatedAt
	if created.IsZero() {
		created = now
	}
	st, err := s.settings.Get(ctx, now)
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to read settings: %w", err)
	}
	id, err := store.NewTaskID()
	if err != nil {
		return model.Task{}, err
	}

	task := model.Task{
		ID:                id,
		Title:             title,
		Status:            model.NotStarted,
		CreatedAt:         created.UTC(),
		UpdatedAt:         now,
		ReminderFrequency: st.DefaultReminderFrequency,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return model.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, id string) (model.Task, error) {
	if err := store.ValidateID(id); err != nil {
		return model.Task{}, err
	}
	return s.tasks.Get(ctx, id)
}

// ListByDate returns the tasks of the UTC day containing date (RFC3339).
func (s *TaskService) ListByDate(ctx context.Context, date string) ([]model.Task, error) {
	start, end, err := util.ParseDateRange(date)
	if err != nil {
		return nil, err
	}
	return s.tasks.ListCreatedBetween(ctx, start, end, true)
}

func (s *TaskService) ListByDateNotCompleted(ctx context.Context, date string) ([]model.Task, error) {
	start, end, err := util.ParseDateRange(date)
	if err != nil {
		return nil, err
	}
	return s.tasks.ListCreatedBetween(ctx, start, end, false)
}

// ListOverdue returns not-completed tasks whose deadline has passed.
func (s *TaskService) ListOverdue(ctx context.Context) ([]overdue.Entry, error) {
	tasks, err := s.tasks.ListNotCompleted(ctx)
	if err != nil {
		return nil, err
	}
	return overdue.Sweep(tasks, s.now()), nil
}

func (s *TaskService) Start(ctx context.Context, id string) (model.Task, error) {
	return s.transition(ctx, id, model.Ongoing, "start")
}

func (s *TaskService) Resume(ctx context.Context, id string) (model.Task, error) {
	return s.transition(ctx, id, model.Ongoing, "resume")
}

func (s *TaskService) Pause(ctx context.Context, id string) (model.Task, error) {
	return s.transition(ctx, id, model.Paused, "pause")
}

func (s *TaskService) Complete(ctx context.Context, id string) (model.Task, error) {
	return s.transition(ctx, id, model.Completed, "complete")
}

func (s *TaskService) transition(ctx context.Context, id string, to model.Status, verb string) (model.Task, error) {
	if err := store.ValidateID(id); err != nil {
		return model.Task{}, err
	}
	_, task, err := s.tasks.UpdateStatus(ctx, id, to, s.now())
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to %s task: %w", verb, err)
	}

	eventID, linked := task.LinkedEventID()
	if !linked {
		return task, nil
	}

	switch to {
	case model.Ongoing, model.Paused:
		if task.Deadline == nil {
			return task, nil
		}
		action := actionRestoreReminders
		if to == model.Paused {
			action = actionSuppressReminders
		}
		remoteErr := s.updateEvent(ctx, eventID, eventFor(task))
		if err := s.reconcile(ctx, id, action, "", remoteErr); err != nil {
			return model.Task{}, err
		}
	case model.Completed:
		remoteErr := s.deleteEvent(ctx, eventID)
		if err := s.reconcile(ctx, id, actionDeleteOnComplete, "", remoteErr); err != nil {
			return model.Task{}, err
		}
	}
	return s.tasks.Get(ctx, id)
}

// Delete removes the task, deleting its calendar event on a best-effort basis.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	if err := store.ValidateID(id); err != nil {
		return err
	}
	eventID, linked, err := s.tasks.LinkedEventID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if linked {
		remoteErr := s.deleteEvent(ctx, eventID)
		if err := s.reconcile(ctx, id, actionDeleteOnTaskDelete, "", remoteErr); err != nil {
			return err
		}
	}

	n, err := s.tasks.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return nil
}

// Update applies a partial field update and then brings the calendar event in
// line with the resulting calendar intent. It returns the task as persisted
// after all side effects.
func (s *TaskService) Update(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if err := store.ValidateID(id); err != nil {
		return model.Task{}, err
	}
	before, after, err := s.tasks.UpdateFields(ctx, id, patch, s.now())
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to update task: %w", err)
	}

	eventID, linked := before.LinkedEventID()
	enabled := after.HasCalendarIntegration
	hasDeadline := after.Deadline != nil

	switch {
	case enabled && hasDeadline && linked:
		remoteErr := s.updateEvent(ctx, eventID, eventFor(after))
		if err := s.reconcile(ctx, id, actionUpdateOnEdit, "", remoteErr); err != nil {
			return model.Task{}, err
		}
	case enabled && hasDeadline:
		createdID, remoteErr := s.createEvent(ctx, eventFor(after))
		if err := s.reconcile(ctx, id, actionCreateOnEdit, createdID, remoteErr); err != nil {
			return model.Task{}, err
		}
	case !enabled && linked:
		remoteErr := s.deleteEvent(ctx, eventID)
		if err := s.reconcile(ctx, id, actionDeleteOnDisable, "", remoteErr); err != nil {
			return model.Task{}, err
		}
	}

	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to re-read task: %w", err)
	}
	return task, nil
}

// eventFor maps a task onto its calendar event. A paused task keeps its
// reminders suppressed.
func eventFor(t model.Task) google.Event {
	freq := t.ReminderFrequency
	if t.Status == model.Paused {
		freq = ""
	}
	e := google.Event{
		Title:             t.Title,
		Notes:             t.Notes,
		ReminderFrequency: freq,
	}
	if t.Deadline != nil {
		e.Deadline = *t.Deadline
	}
	return e
}

// withToken runs fn on the scheduler with a valid access token.
func withToken[T any](ctx context.Context, s *TaskService, fn func(ctx context.Context, token string) (T, error)) (T, error) {
	return scheduler.Run(ctx, s.pool, func(ctx context.Context) (T, error) {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx, token)
	})
}

func (s *TaskService) createEvent(ctx context.Context, e google.Event) (string, error) {
	return withToken(ctx, s, func(ctx context.Context, token string) (string, error) {
		return s.events.CreateEvent(ctx, token, e)
	})
}

func (s *TaskService) updateEvent(ctx context.Context, eventID string, e google.Event) error {
	_, err := withToken(ctx, s, func(ctx context.Context, token string) (struct{}, error) {
		return struct{}{}, s.events.UpdateEvent(ctx, token, eventID, e)
	})
	return err
}

func (s *TaskService) deleteEvent(ctx context.Context, eventID string) error {
	_, err := withToken(ctx, s, func(ctx context.Context, token string) (struct{}, error) {
		return struct{}{}, s.events.DeleteEvent(ctx, token, eventID)
	})
	return err
}

// IsUserError reports whether err should be shown to the caller verbatim.
func IsUserError(err error) bool {
	return errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrInvalidInput)
}
