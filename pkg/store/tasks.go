package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/jmoiron/sqlx"
)

const taskColumns = `id, title, notes, status, created_at, updated_at, deadline, has_calendar_integration,
	calendar_email, reminder_frequency, started_at, paused_at, completed_at, calendar_event_id`

type taskRow struct {
	ID                     string         `db:"id"`
	Title                  string         `db:"title"`
	Notes                  sql.NullString `db:"notes"`
	Status                 string         `db:"status"`
	CreatedAt              string         `db:"created_at"`
	UpdatedAt              string         `db:"updated_at"`
	Deadline               sql.NullString `db:"deadline"`
	HasCalendarIntegration bool           `db:"has_calendar_integration"`
	CalendarEmail          sql.NullString `db:"calendar_email"`
	ReminderFrequency      string         `db:"reminder_frequency"`
	StartedAt              sql.NullString `db:"started_at"`
	PausedAt               sql.NullString `db:"paused_at"`
	CompletedAt            sql.NullString `db:"completed_at"`
	CalendarEventID        sql.NullString `db:"calendar_event_id"`
}

func (r taskRow) task() (model.Task, error) {
	status, err := model.ParseStatus(r.Status)
	if err != nil {
		return model.Task{}, fmt.Errorf("corrupt task %s: %w", r.ID, err)
	}
	freq, err := model.ParseReminderFrequency(r.ReminderFrequency)
	if err != nil {
		return model.Task{}, fmt.Errorf("corrupt task %s: %w", r.ID, err)
	}
	t := model.Task{
		ID:                     r.ID,
		Title:                  r.Title,
		Notes:                  stringPtr(r.Notes),
		Status:                 status,
		HasCalendarIntegration: r.HasCalendarIntegration,
		CalendarEmail:          stringPtr(r.CalendarEmail),
		ReminderFrequency:      freq,
		CalendarEventID:        stringPtr(r.CalendarEventID),
	}
	if t.CreatedAt, err = parseTime("created_at", r.CreatedAt); err != nil {
		return model.Task{}, err
	}
	if t.UpdatedAt, err = parseTime("updated_at", r.UpdatedAt); err != nil {
		return model.Task{}, err
	}
	if t.Deadline, err = parseTimePtr("deadline", r.Deadline); err != nil {
		return model.Task{}, err
	}
	if t.StartedAt, err = parseTimePtr("started_at", r.StartedAt); err != nil {
		return model.Task{}, err
	}
	if t.PausedAt, err = parseTimePtr("paused_at", r.PausedAt); err != nil {
		return model.Task{}, err
	}
	if t.CompletedAt, err = parseTimePtr("completed_at", r.CompletedAt); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// TaskStore persists task records and their linked remote event id.
type TaskStore struct {
	db *DB
}

func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

// NewTaskID returns a time-ordered task id.
func NewTaskID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate task id: %w", err)
	}
	return id.String(), nil
}

// ValidateID rejects ids that are not UUIDs.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: malformed task id %q", model.ErrInvalidInput, id)
	}
	return nil
}

func getTask(tx *sqlx.Tx, id string) (model.Task, error) {
	var row taskRow
	err := tx.Get(&row, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return row.task()
}

func writeTask(tx *sqlx.Tx, t model.Task) error {
	_, err := tx.Exec(`UPDATE tasks SET title = ?, notes = ?, status = ?, updated_at = ?, deadline = ?,
		has_calendar_integration = ?, calendar_email = ?, reminder_frequency = ?, started_at = ?, paused_at = ?,
		completed_at = ? WHERE id = ?`,
		t.Title, nullString(t.Notes), string(t.Status), formatTime(t.UpdatedAt), formatTimePtr(t.Deadline),
		t.HasCalendarIntegration, nullString(t.CalendarEmail), string(t.ReminderFrequency),
		formatTimePtr(t.StartedAt), formatTimePtr(t.PausedAt), formatTimePtr(t.CompletedAt), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	return nil
}

// Create inserts a new task record.
func (s *TaskStore) Create(ctx context.Context, t model.Task) error {
	return s.db.tx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, nullString(t.Notes), string(t.Status), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
			formatTimePtr(t.Deadline), t.HasCalendarIntegration, nullString(t.CalendarEmail),
			string(t.ReminderFrequency), formatTimePtr(t.StartedAt), formatTimePtr(t.PausedAt),
			formatTimePtr(t.CompletedAt), nullString(t.CalendarEventID))
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
		return nil
	})
}

// Get returns the task with the given id.
func (s *TaskStore) Get(ctx context.Context, id string) (model.Task, error) {
	var t model.Task
	err := s.db.tx(ctx, func(tx *sqlx.Tx) error {
		var err error
		t, err = getTask(tx, id)
		return err
	})
	return t, err
}

// ListCreatedBetween returns tasks created in [start, end), oldest first.
// Completed tasks are skipped unless includeCompleted is set.
func (s *TaskStore) ListCreatedBetween(ctx context.Context, start, end time.Time, includeCompleted bool) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE created_at >= ? AND created_at < ?`
	if !includeCompleted {
		query += ` AND status != 'completed'`
	}
	query += ` ORDER BY created_at, id`
	return s.list(ctx, query, formatTime(start), formatTime(end))
}

// ListNotCompleted returns every task that is not completed.
func (s *TaskStore) ListNotCompleted(ctx context.Context) ([]model.Task, error) {
	return s.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status != 'completed' ORDER BY created_at, id`)
}

func (s *TaskStore) list(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.tx(ctx, func(tx *sqlx.Tx) error {
		var rows []taskRow
		if err := tx.Select(&rows, query, args...); err != nil {
			return fmt.Errorf("failed to query tasks: %w", err)
		}
		tasks = make([]model.Task, 0, len(rows))
		for _, r := range rows {
			t, err := r.task()
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		return nil
	})
	return tasks, err
}

// UpdateStatus moves a task to status and stamps the matching timestamp.
// It returns the task before and after the change.
func (s *TaskStore) UpdateStatus(ctx context.Context, id string, status model.Status, now time.Time) (before, after model.Task, err error) {
	err = s.db.tx(ctx, func(tx *sqlx.Tx) error {
		before, err = getTask(tx, id)
		if err != nil {
			return err
		}
		if !model.CanTransition(before.Status, status) {
			return fmt.Errorf("%w: cannot move task from %q to %q", model.ErrInvalidInput, before.Status, status)
		}
		after = applyStatus(before, status, now)
		return writeTask(tx, after)
	})
	return before, after, err
}

func applyStatus(t model.Task, status model.Status, now time.Time) model.Task {
	ts := now.UTC()
	t.Status = status
	t.UpdatedAt = ts
	switch status {
	case model.Ongoing:
		// StartedAt marks the start of the current working stretch.
		t.StartedAt = &ts
		t.PausedAt = nil
	case model.Paused:
		t.PausedAt = &ts
	case model.Completed:
		t.CompletedAt = &ts
		t.PausedAt = nil
	}
	return t
}

// UpdateFields applies patch to the task in one call. Only supplied fields change.
func (s *TaskStore) UpdateFields(ctx context.Context, id string, patch model.TaskPatch, now time.Time) (before, after model.Task, err error) {
	if err = patch.Validate(); err != nil {
		return before, after, err
	}
	err = s.db.tx(ctx, func(tx *sqlx.Tx) error {
		before, err = getTask(tx, id)
		if err != nil {
			return err
		}
		after = patch.Apply(before)
		after.UpdatedAt = now.UTC()
		return writeTask(tx, after)
	})
	return before, after, err
}

// Delete removes the task and its linked event reference. It reports the
// number of rows removed.
func (s *TaskStore) Delete(ctx context.Context, id string) (int64, error) {
	var n int64
	err := s.db.tx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete task %s: %w", id, err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// LinkedEventID returns the remote event id linked to the task, if any.
func (s *TaskStore) LinkedEventID(ctx context.Context, id string) (string, bool, error) {
	var ns sql.NullString
	err := s.db.tx(ctx, func(tx *sqlx.Tx) error {
		err := tx.Get(&ns, `SELECT calendar_event_id FROM tasks WHERE id = ?`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return err
	})
	if err != nil {
		return "", false, err
	}
	if !ns.Valid || ns.String == "" {
		return "", false, nil
	}
	return ns.String, true, nil
}

func (s *TaskStore) SetLinkedEventID(ctx context.Context, id, eventID string) error {
	return s.setLinked(ctx, id, sql.NullString{String: eventID, Valid: true})
}

func (s *TaskStore) ClearLinkedEventID(ctx context.Context, id string) error {
	return s.setLinked(ctx, id, sql.NullString{})
}

func (s *TaskStore) setLinked(ctx context.Context, id string, v sql.NullString) error {
	return s.db.tx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`UPDATE tasks SET calendar_event_id = ? WHERE id = ?`, v, id)
		if err != nil {
			return fmt.Errorf("failed to update linked event for task %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return nil
	})
}
