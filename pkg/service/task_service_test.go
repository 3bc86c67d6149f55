package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/taskcal/pkg/google"
	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/harrisonrobin/taskcal/pkg/scheduler"
	"github.com/harrisonrobin/taskcal/pkg/store"
	"github.com/harrisonrobin/taskcal/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type eventCall struct {
	op      string
	eventID string
	event   google.Event
	token   string
}

// fakeEvents records every remote call and returns the configured errors.
type fakeEvents struct {
	mu        sync.Mutex
	calls     []eventCall
	nextID    string
	createErr error
	updateErr error
	deleteErr error
}

func (f *fakeEvents) record(c eventCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeEvents) CreateEvent(ctx context.Context, token string, e google.Event) (string, error) {
	f.record(eventCall{op: "create", event: e, token: token})
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.nextID, nil
}

func (f *fakeEvents) UpdateEvent(ctx context.Context, token, id string, e google.Event) error {
	f.record(eventCall{op: "update", eventID: id, event: e, token: token})
	return f.updateErr
}

func (f *fakeEvents) DeleteEvent(ctx context.Context, token, id string) error {
	f.record(eventCall{op: "delete", eventID: id, token: token})
	return f.deleteErr
}

func (f *fakeEvents) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

type fakeTokens struct {
	token string
	err   error
}

func (f fakeTokens) Token(ctx context.Context) (string, error) {
	return f.token, f.err
}

type harness struct {
	svc    *TaskService
	tasks  *store.TaskStore
	events *fakeEvents
	logs   *strings.Builder
}

func newHarness(t *testing.T, tokens TokenSource) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "taskcal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pool := scheduler.New(8)
	pool.Start(2)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })

	if tokens == nil {
		tokens = fakeTokens{token: "access"}
	}
	logs := &strings.Builder{}
	h := &harness{
		tasks:  store.NewTaskStore(db),
		events: &fakeEvents{nextID: "E-new"},
		logs:   logs,
	}
	h.svc = NewTaskService(h.tasks, store.NewSettingsStore(db), tokens, h.events, pool,
		WithLogger(log.New(logs, "", 0)),
		WithClock(func() time.Time { return testNow }))
	return h
}

// linkedTask creates a task with integration enabled, the given deadline and
// frequency, a linked event, and the given status.
func (h *harness) linkedTask(t *testing.T, status model.Status, deadline time.Time, freq model.ReminderFrequency, eventID string) model.Task {
	t.Helper()
	ctx := context.Background()
	task, err := h.svc.Create(ctx, NewTask{Title: "Ship release"})
	require.NoError(t, err)

	_, _, err = h.tasks.UpdateFields(ctx, task.ID, model.TaskPatch{
		Deadline:               model.Set(deadline),
		HasCalendarIntegration: model.Set(true),
		ReminderFrequency:      model.Set(freq),
	}, testNow)
	require.NoError(t, err)
	if eventID != "" {
		require.NoError(t, h.tasks.SetLinkedEventID(ctx, task.ID, eventID))
	}
	switch status {
	case model.Ongoing:
		_, _, err = h.tasks.UpdateStatus(ctx, task.ID, model.Ongoing, testNow)
	case model.Paused:
		_, _, err = h.tasks.UpdateStatus(ctx, task.ID, model.Ongoing, testNow)
		require.NoError(t, err)
		_, _, err = h.tasks.UpdateStatus(ctx, task.ID, model.Paused, testNow)
	}
	require.NoError(t, err)
	return task
}

func (h *harness) link(t *testing.T, id string) (string, bool) {
	t.Helper()
	eventID, ok, err := h.tasks.LinkedEventID(context.Background(), id)
	require.NoError(t, err)
	return eventID, ok
}

func TestCreate_UsesDefaultReminderFrequency(t *testing.T) {
	h := newHarness(t, nil)
	task, err := h.svc.Create(context.Background(), NewTask{Title: "  Plan week  "})
	require.NoError(t, err)

	assert.Equal(t, "Plan week", task.Title)
	assert.Equal(t, model.NotStarted, task.Status)
	assert.Equal(t, model.ReminderNone, task.ReminderFrequency)
	assert.True(t, task.CreatedAt.Equal(testNow))
	assert.Empty(t, h.events.ops())

	_, err = h.svc.Create(context.Background(), NewTask{Title: "   "})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestPause_SuppressesReminders(t *testing.T) {
	h := newHarness(t, nil)
	task := h.linkedTask(t, model.Ongoing, testNow.Add(2*time.Hour), model.ReminderHourly, "E1")

	got, err := h.svc.Pause(context.Background(), task.ID)
	require.NoError(t, err)

	require.Len(t, h.events.calls, 1)
	call := h.events.calls[0]
	assert.Equal(t, "update", call.op)
	assert.Equal(t, "E1", call.eventID)
	assert.Equal(t, "access", call.token)
	assert.Empty(t, util.Reminders(call.event.ReminderFrequency, call.event.Deadline, testNow))

	assert.Equal(t, model.Paused, got.Status)
	require.NotNil(t, got.PausedAt)
	assert.True(t, got.PausedAt.Equal(testNow))
	id, ok := got.LinkedEventID()
	assert.True(t, ok)
	assert.Equal(t, "E1", id)
}

func TestResume_RestoresReminders(t *testing.T) {
	h := newHarness(t, nil)
	task := h.linkedTask(t, model.Paused, testNow.Add(2*time.Hour), model.ReminderHourly, "E1")

	got, err := h.svc.Resume(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Ongoing, got.Status)
	assert.Nil(t, got.PausedAt)

	require.Len(t, h.events.calls, 1)
	call := h.events.calls[0]
	assert.Equal(t, "update", call.op)
	assert.Equal(t, model.ReminderHourly, call.event.ReminderFrequency)

	// Two hours out with hourly reminders: popups at 60 and 120 minutes plus the email.
	reminders := util.Reminders(call.event.ReminderFrequency, call.event.Deadline, testNow)
	assert.Len(t, reminders, 3)
}

func TestStart_WithoutDeadlineMakesNoRemoteCall(t *testing.T) {
	h := newHarness(t, nil)
	task, err := h.svc.Create(context.Background(), NewTask{Title: "No deadline"})
	require.NoError(t, err)
	require.NoError(t, h.tasks.SetLinkedEventID(context.Background(), task.ID, "E1"))

	got, err := h.svc.Start(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Ongoing, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.Empty(t, h.events.ops())
}

func TestTransition_SelfHealsOnEventNotFound(t *testing.T) {
	for _, op := range []string{"start", "pause"} {
		t.Run(op, func(t *testing.T) {
			h := newHarness(t, nil)
			h.events.updateErr = fmt.Errorf("%w: 410", ErrEventNotFound)

			var err error
			if op == "start" {
				task := h.linkedTask(t, model.NotStarted, testNow.Add(time.Hour), model.ReminderHourly, "E1")
				_, err = h.svc.Start(context.Background(), task.ID)
				require.NoError(t, err)
				_, ok := h.link(t, task.ID)
				assert.False(t, ok)
			} else {
				task := h.linkedTask(t, model.Ongoing, testNow.Add(time.Hour), model.ReminderHourly, "E1")
				_, err = h.svc.Pause(context.Background(), task.ID)
				require.NoError(t, err)
				_, ok := h.link(t, task.ID)
				assert.False(t, ok)
			}
			assert.Contains(t, h.logs.String(), "unlinking")
		})
	}
}

func TestTransition_RemoteFailureIsLogged(t *testing.T) {
	h := newHarness(t, nil)
	h.events.updateErr = fmt.Errorf("%w: status 500", ErrRemoteFailure)
	task := h.linkedTask(t, model.Ongoing, testNow.Add(time.Hour), model.ReminderHourly, "E1")

	got, err := h.svc.Pause(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Paused, got.Status)
	eventID, ok := h.link(t, task.ID)
	assert.True(t, ok)
	assert.Equal(t, "E1", eventID)
	assert.Contains(t, h.logs.String(), "Warning")
}

func TestTransition_NotConnectedIsLogged(t *testing.T) {
	h := newHarness(t, fakeTokens{err: ErrNotConnected})
	task := h.linkedTask(t, model.Ongoing, testNow.Add(time.Hour), model.ReminderHourly, "E1")

	got, err := h.svc.Pause(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Paused, got.Status)
	assert.Empty(t, h.events.ops())
}

func TestTransition_Invalid(t *testing.T) {
	h := newHarness(t, nil)
	task, err := h.svc.Create(context.Background(), NewTask{Title: "Fresh"})
	require.NoError(t, err)

	_, err = h.svc.Pause(context.Background(), task.ID)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = h.svc.Start(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	missing, err := store.NewTaskID()
	require.NoError(t, err)
	_, err = h.svc.Start(context.Background(), missing)
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestComplete_AlwaysDetaches(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"success", nil},
		{"remote failure", fmt.Errorf("%w: status 503", ErrRemoteFailure)},
		{"auth failure", ErrAuthRefreshFailed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.events.deleteErr = c.err
			task := h.linkedTask(t, model.Ongoing, testNow.Add(time.Hour), model.ReminderDaily, "E1")

			got, err := h.svc.Complete(context.Background(), task.ID)
			require.NoError(t, err)
			assert.Equal(t, model.Completed, got.Status)
			require.NotNil(t, got.CompletedAt)
			assert.Equal(t, []string{"delete"}, h.events.ops())
			assert.Equal(t, "E1", h.events.calls[0].eventID)
			_, ok := got.LinkedEventID()
			assert.False(t, ok)
		})
	}
}

func TestComplete_TwiceIsInvalid(t *testing.T) {
	h := newHarness(t, nil)
	task, err := h.svc.Create(context.Background(), NewTask{Title: "Once"})
	require.NoError(t, err)
	_, err = h.svc.Complete(context.Background(), task.ID)
	require.NoError(t, err)
	_, err = h.svc.Complete(context.Background(), task.ID)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestDelete(t *testing.T) {
	h := newHarness(t, nil)
	h.events.deleteErr = fmt.Errorf("%w: timeout", ErrRemoteFailure)
	task := h.linkedTask(t, model.NotStarted, testNow.Add(time.Hour), model.ReminderNone, "E1")

	require.NoError(t, h.svc.Delete(context.Background(), task.ID))
	assert.Equal(t, []string{"delete"}, h.events.ops())

	_, err := h.tasks.Get(context.Background(), task.ID)
	assert.True(t, errors.Is(err, ErrTaskNotFound))

	err = h.svc.Delete(context.Background(), task.ID)
	assert.True(t, errors.Is(err, ErrTaskNotFound))
	assert.Len(t, h.events.calls, 1)
}

func TestDelete_UnlinkedMakesNoRemoteCall(t *testing.T) {
	h := newHarness(t, nil)
	task, err := h.svc.Create(context.Background(), NewTask{Title: "Local only"})
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(context.Background(), task.ID))
	assert.Empty(t, h.events.ops())
}

func TestUpdate_CreateOnEnable(t *testing.T) {
	h := newHarness(t, nil)
	task, err := h.svc.Create(context.Background(), NewTask{Title: "Dentist"})
	require.NoError(t, err)

	deadline := testNow.Add(26 * time.Hour)
	got, err := h.svc.Update(context.Background(), task.ID, model.TaskPatch{
		HasCalendarIntegration: model.Set(true),
		Deadline:               model.Set(deadline),
		ReminderFrequency:      model.Set(model.ReminderDaily),
	})
	require.NoError(t, err)

	require.Equal(t, []string{"create"}, h.events.ops())
	call := h.events.calls[0]
	assert.Equal(t, "Dentist", call.event.Title)
	assert.True(t, call.event.Deadline.Equal(deadline))
	assert.Equal(t, model.ReminderDaily, call.event.ReminderFrequency)

	id, ok := got.LinkedEventID()
	require.True(t, ok)
	assert.Equal(t, "E-new", id)
	assert.True(t, got.HasCalendarIntegration)
}

func TestUpdate_CreateFailurePropagates(t *testing.T) {
	cases := []struct {
		name   string
		tokens TokenSource
		err    error
		want   error
	}{
		{"remote failure", nil, fmt.Errorf("%w: status 500", ErrRemoteFailure), ErrRemoteFailure},
		{"not connected", fakeTokens{err: ErrNotConnected}, nil, ErrNotConnected},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t, c.tokens)
			h.events.createErr = c.err
			task, err := h.svc.Create(context.Background(), NewTask{Title: "Dentist"})
			require.NoError(t, err)

			_, err = h.svc.Update(context.Background(), task.ID, model.TaskPatch{
				HasCalendarIntegration: model.Set(true),
				Deadline:               model.Set(testNow.Add(time.Hour)),
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, c.want))

			// Local fields stay committed without a link.
			stored, err := h.tasks.Get(context.Background(), task.ID)
			require.NoError(t, err)
			assert.True(t, stored.HasCalendarIntegration)
			require.NotNil(t, stored.Deadline)
			_, ok := stored.LinkedEventID()
			assert.False(t, ok)
		})
	}
}

func TestUpdate_LinkedUpdatesEvent(t *testing.T) {
	h := newHarness(t, nil)
	task := h.linkedTask(t, model.Ongoing, testNow.Add(time.Hour), model.ReminderHourly, "E1")

	got, err := h.svc.Update(context.Background(), task.ID, model.TaskPatch{
		Title: model.Set("Ship release v2"),
		Notes: model.Set("tag and publish"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ship release v2", got.Title)

	require.Equal(t, []string{"update"}, h.events.ops())
	call := h.events.calls[0]
	assert.Equal(t, "E1", call.eventID)
	assert.Equal(t, "Ship release v2", call.event.Title)
	require.NotNil(t, call.event.Notes)
	assert.Equal(t, "tag and publish", *call.event.Notes)
}

func TestUpdate_LinkedClearsNotes(t *testing.T) {
	h := newHarness(t, nil)
	task := h.linkedTask(t, model.Ongoing, testNow.Add(time.Hour), model.ReminderHourly, "E1")
	_, _, err := h.tasks.UpdateFields(context.Background(), task.ID, model.TaskPatch{Notes: model.Set("old notes")}, testNow)
	require.NoError(t, err)

	got, err := h.svc.Update(context.Background(), task.ID, model.TaskPatch{Notes: model.Null[string]()})
	require.NoError(t, err)
	assert.Nil(t, got.Notes)

	require.Equal(t, []string{"update"}, h.events.ops())
	call := h.events.calls[0]
	assert.Equal(t, "E1", call.eventID)
	assert.Nil(t, call.event.Notes)

	event := util.ConvertToCalendarEvent(call.event.Title, call.event.Notes, call.event.Deadline, call.event.ReminderFrequency, testNow)
	assert.Empty(t, event.Description)
	assert.Contains(t, event.ForceSendFields, "Description")
}

func TestUpdate_PausedTaskKeepsRemindersSuppressed(t *testing.T) {
	h := newHarness(t, nil)
	task := h.linkedTask(t, model.Paused, testNow.Add(3*time.Hour), model.ReminderHourly, "E1")

	_, err := h.svc.Update(context.Background(), task.ID, model.TaskPatch{Title: model.Set("Renamed")})
	require.NoError(t, err)
	require.Len(t, h.events.calls, 1)
	assert.Equal(t, model.ReminderFrequency(""), h.events.calls[0].event.ReminderFrequency)
}

func TestUpdate_SelfHealsOnEventNotFound(t *testing.T) {
	h := newHarness(t, nil)
	h.events.updateErr = ErrEventNotFound
	task := h.linkedTask(t, model.Ongoing, testNow.Add(time.Hour), model.ReminderHourly, "E1")

	got, err := h.svc.Update(context.Background(), task.ID, model.TaskPatch{Title: model.Set("Renamed")})
	require.NoError(t, err)
	_, ok := got.LinkedEventID()
	assert.False(t, ok)
	assert.True(t, got.HasCalendarIntegration)
}

func TestUpdate_DisableClearsLink(t *testing.T) {
	for _, deleteErr := range []error{nil, fmt.Errorf("%w: status 500", ErrRemoteFailure)} {
		h := newHarness(t, nil)
		h.events.deleteErr = deleteErr
		task := h.linkedTask(t, model.Ongoing, testNow.Add(time.Hour), model.ReminderHourly, "E1")

		got, err := h.svc.Update(context.Background(), task.ID, model.TaskPatch{
			HasCalendarIntegration: model.Set(false),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"delete"}, h.events.ops())
		assert.Equal(t, "E1", h.events.calls[0].eventID)
		_, ok := got.LinkedEventID()
		assert.False(t, ok)
		assert.False(t, got.HasCalendarIntegration)
	}
}

func TestUpdate_NoIntegrationMakesNoRemoteCall(t *testing.T) {
	h := newHarness(t, nil)
	task, err := h.svc.Create(context.Background(), NewTask{Title: "Local"})
	require.NoError(t, err)

	got, err := h.svc.Update(context.Background(), task.ID, model.TaskPatch{
		Deadline: model.Set(testNow.Add(time.Hour)),
		Notes:    model.Set("just notes"),
	})
	require.NoError(t, err)
	assert.Empty(t, h.events.ops())
	require.NotNil(t, got.Notes)
	assert.Equal(t, "just notes", *got.Notes)

	got, err = h.svc.Update(context.Background(), task.ID, model.TaskPatch{Notes: model.Null[string]()})
	require.NoError(t, err)
	assert.Nil(t, got.Notes)
}

func TestUpdate_RejectsInvalidPatch(t *testing.T) {
	h := newHarness(t, nil)
	task, err := h.svc.Create(context.Background(), NewTask{Title: "Valid"})
	require.NoError(t, err)

	_, err = h.svc.Update(context.Background(), task.ID, model.TaskPatch{Title: model.Null[string]()})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = h.svc.Update(context.Background(), task.ID, model.TaskPatch{ReminderFrequency: model.Set(model.ReminderFrequency("weekly"))})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestListByDate(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	today, err := h.svc.Create(ctx, NewTask{Title: "Today"})
	require.NoError(t, err)
	done, err := h.svc.Create(ctx, NewTask{Title: "Done today"})
	require.NoError(t, err)
	_, err = h.svc.Complete(ctx, done.ID)
	require.NoError(t, err)
	_, err = h.svc.Create(ctx, NewTask{Title: "Tomorrow", CreatedAt: testNow.Add(24 * time.Hour)})
	require.NoError(t, err)

	all, err := h.svc.ListByDate(ctx, "2025-03-01T15:00:00Z")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := h.svc.ListByDateNotCompleted(ctx, "2025-03-01T15:00:00Z")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, today.ID, open[0].ID)

	_, err = h.svc.ListByDate(ctx, "yesterday")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestListOverdue(t *testing.T) {
	h := newHarness(t, nil)
	late := h.linkedTask(t, model.Ongoing, testNow.Add(-time.Hour), model.ReminderNone, "E1")
	h.linkedTask(t, model.Ongoing, testNow.Add(time.Hour), model.ReminderNone, "")

	entries, err := h.svc.ListOverdue(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, late.ID, entries[0].TaskID)
	assert.Equal(t, "E1", entries[0].EventID)
}

func TestReconcile_PolicyTable(t *testing.T) {
	for action, p := range policies {
		for _, kind := range []errorKind{kindNotFound, kindAuth, kindTransient} {
			_, ok := p.onError[kind]
			assert.True(t, ok, "%s has no outcome for error kind %d", action, kind)
		}
	}
	assert.Equal(t, kindNotFound, classify(fmt.Errorf("wrapped: %w", ErrEventNotFound)))
	assert.Equal(t, kindAuth, classify(ErrAuthRefreshFailed))
	assert.Equal(t, kindTransient, classify(scheduler.ErrPoolFull))
	assert.Equal(t, kindNone, classify(nil))
}

func TestListByDate_LastSubSecondOfDay(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	late, err := h.svc.Create(ctx, NewTask{Title: "Late", CreatedAt: time.Date(2025, 3, 1, 23, 59, 59, 500_000_000, time.UTC)})
	require.NoError(t, err)

	tasks, err := h.svc.ListByDate(ctx, "2025-03-01T12:00:00Z")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, late.ID, tasks[0].ID)

	tasks, err = h.svc.ListByDate(ctx, "2025-03-02T00:00:00Z")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
