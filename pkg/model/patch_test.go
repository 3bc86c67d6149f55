package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTaskPatch_UnmarshalTriState(t *testing.T) {
	var p TaskPatch
	input := `{"title": "New", "notes": null, "deadline": "2025-03-01T12:00:00Z"}`
	if err := json.Unmarshal([]byte(input), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if v, ok := p.Title.Get(); !ok || v != "New" {
		t.Errorf("Expected title 'New', got %q (present=%v)", v, ok)
	}
	if !p.Notes.IsNull() {
		t.Errorf("Expected notes to be an explicit null")
	}
	if p.CalendarEmail.Present() {
		t.Errorf("Expected calendarEmail to be absent")
	}
	d, ok := p.Deadline.Get()
	if !ok || !d.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected deadline %v (present=%v)", d, ok)
	}
}

func TestTaskPatch_Apply(t *testing.T) {
	notes := "old notes"
	email := "me@example.com"
	base := Task{Title: "Old", Notes: &notes, CalendarEmail: &email, ReminderFrequency: ReminderNone}

	out := TaskPatch{
		Notes:             Null[string](),
		ReminderFrequency: Set(ReminderHourly),
	}.Apply(base)

	if out.Title != "Old" {
		t.Errorf("Expected title to be kept, got %q", out.Title)
	}
	if out.Notes != nil {
		t.Errorf("Expected notes to be cleared, got %q", *out.Notes)
	}
	if out.CalendarEmail == nil || *out.CalendarEmail != email {
		t.Errorf("Expected calendar email to be kept")
	}
	if out.ReminderFrequency != ReminderHourly {
		t.Errorf("Expected hourly, got %s", out.ReminderFrequency)
	}
	if base.Notes == nil {
		t.Errorf("Apply must not mutate its input")
	}
}

func TestReminderFrequencyInterval(t *testing.T) {
	cases := map[ReminderFrequency]time.Duration{
		ReminderNone:        0,
		"":                  0,
		ReminderHourly:      time.Hour,
		ReminderEvery3Hours: 3 * time.Hour,
		ReminderDaily:       24 * time.Hour,
	}
	for f, want := range cases {
		if got := f.Interval(); got != want {
			t.Errorf("%q.Interval() = %v, want %v", f, got, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{NotStarted, Ongoing, true},
		{Paused, Ongoing, true},
		{Ongoing, Ongoing, false},
		{Ongoing, Paused, true},
		{NotStarted, Paused, false},
		{NotStarted, Completed, true},
		{Paused, Completed, true},
		{Completed, Completed, false},
		{Completed, Ongoing, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
