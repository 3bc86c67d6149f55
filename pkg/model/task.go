package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput is returned for malformed ids, dates and enum values supplied by a caller.
var ErrInvalidInput = errors.New("invalid input")

type Status string

const (
	NotStarted Status = "not started"
	Ongoing    Status = "ongoing"
	Paused     Status = "paused"
	Completed  Status = "completed"
)

// ParseStatus maps the stored string to a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case NotStarted, Ongoing, Paused, Completed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// ReminderFrequency controls how many popup reminders precede a deadline and their spacing.
type ReminderFrequency string

const (
	ReminderNone        ReminderFrequency = "none"
	ReminderHourly      ReminderFrequency = "hourly"
	ReminderEvery3Hours ReminderFrequency = "every-3-hours"
	ReminderDaily       ReminderFrequency = "daily"
)

func ParseReminderFrequency(s string) (ReminderFrequency, error) {
	switch f := ReminderFrequency(s); f {
	case ReminderNone, ReminderHourly, ReminderEvery3Hours, ReminderDaily:
		return f, nil
	}
	return "", fmt.Errorf("%w: invalid reminder frequency %q", ErrInvalidInput, s)
}

// Interval returns the spacing between popup reminders, or zero for none.
func (f ReminderFrequency) Interval() time.Duration {
	switch f {
	case ReminderHourly:
		return time.Hour
	case ReminderEvery3Hours:
		return 3 * time.Hour
	case ReminderDaily:
		return 24 * time.Hour
	}
	return 0
}

// Task represents a locally owned task record.
type Task struct {
	ID                     string            `json:"id"`
	Title                  string            `json:"title"`
	Notes                  *string           `json:"notes,omitempty"`
	Status                 Status            `json:"status"`
	CreatedAt              time.Time         `json:"createdAt"`
	UpdatedAt              time.Time         `json:"updatedAt"`
	Deadline               *time.Time        `json:"deadline,omitempty"`
	HasCalendarIntegration bool              `json:"hasCalendarIntegration"`
	CalendarEmail          *string           `json:"calendarEmail,omitempty"`
	ReminderFrequency      ReminderFrequency `json:"reminderFrequency"`
	StartedAt              *time.Time        `json:"startedAt,omitempty"`
	PausedAt               *time.Time        `json:"pausedAt,omitempty"`
	CompletedAt            *time.Time        `json:"completedAt,omitempty"`
	// CalendarEventID is a weak reference to the mirrored remote event.
	CalendarEventID *string `json:"calendarEventId,omitempty"`
}

// NotesText returns the notes or the empty string.
func (t *Task) NotesText() string {
	if t.Notes == nil {
		return ""
	}
	return *t.Notes
}

// LinkedEventID returns the linked remote event id, if any.
func (t *Task) LinkedEventID() (string, bool) {
	if t.CalendarEventID == nil || *t.CalendarEventID == "" {
		return "", false
	}
	return *t.CalendarEventID, true
}

// CanTransition reports whether a task in status from may move to status to.
func CanTransition(from, to Status) bool {
	switch to {
	case Ongoing:
		return from == NotStarted || from == Paused
	case Paused:
		return from == Ongoing
	case Completed:
		return from != Completed
	}
	return false
}
