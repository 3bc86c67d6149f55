package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Field is a tri-state patch value: absent, explicitly null, or set to a value.
// The zero value is absent.
type Field[T any] struct {
	present bool
	null    bool
	value   T
}

func Set[T any](v T) Field[T] {
	return Field[T]{present: true, value: v}
}

func Null[T any]() Field[T] {
	return Field[T]{present: true, null: true}
}

// Present reports whether the field was supplied at all.
func (f Field[T]) Present() bool { return f.present }

// IsNull reports whether the field was supplied as an explicit null.
func (f Field[T]) IsNull() bool { return f.present && f.null }

// Get returns the value and whether one was supplied.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.present && !f.null
}

// Ptr resolves the field against a prior value: absent keeps prior, null clears.
func (f Field[T]) Ptr(prior *T) *T {
	switch {
	case !f.present:
		return prior
	case f.null:
		return nil
	}
	v := f.value
	return &v
}

// UnmarshalJSON is only called for keys that appear in the document, so a
// missing key stays absent.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.present = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.null = true
		var zero T
		f.value = zero
		return nil
	}
	f.null = false
	return json.Unmarshal(b, &f.value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.present || f.null {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// TaskPatch lists the task fields that support partial update.
type TaskPatch struct {
	Title                  Field[string]            `json:"title"`
	Notes                  Field[string]            `json:"notes"`
	Deadline               Field[time.Time]         `json:"deadline"`
	HasCalendarIntegration Field[bool]              `json:"hasCalendarIntegration"`
	CalendarEmail          Field[string]            `json:"calendarEmail"`
	ReminderFrequency      Field[ReminderFrequency] `json:"reminderFrequency"`
}

// Empty reports whether no field was supplied.
func (p TaskPatch) Empty() bool {
	return !p.Title.Present() && !p.Notes.Present() && !p.Deadline.Present() &&
		!p.HasCalendarIntegration.Present() && !p.CalendarEmail.Present() && !p.ReminderFrequency.Present()
}

// Validate rejects nulls for non-nullable columns and unknown enum values.
func (p TaskPatch) Validate() error {
	if p.Title.IsNull() {
		return fmt.Errorf("%w: title cannot be null", ErrInvalidInput)
	}
	if v, ok := p.Title.Get(); ok && v == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
	}
	if p.HasCalendarIntegration.IsNull() {
		return fmt.Errorf("%w: hasCalendarIntegration cannot be null", ErrInvalidInput)
	}
	if p.ReminderFrequency.IsNull() {
		return fmt.Errorf("%w: reminderFrequency cannot be null", ErrInvalidInput)
	}
	if v, ok := p.ReminderFrequency.Get(); ok {
		if _, err := ParseReminderFrequency(string(v)); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of t with the supplied fields changed.
func (p TaskPatch) Apply(t Task) Task {
	if v, ok := p.Title.Get(); ok {
		t.Title = v
	}
	t.Notes = p.Notes.Ptr(t.Notes)
	t.Deadline = p.Deadline.Ptr(t.Deadline)
	if v, ok := p.HasCalendarIntegration.Get(); ok {
		t.HasCalendarIntegration = v
	}
	t.CalendarEmail = p.CalendarEmail.Ptr(t.CalendarEmail)
	if v, ok := p.ReminderFrequency.Get(); ok {
		t.ReminderFrequency = v
	}
	return t
}
