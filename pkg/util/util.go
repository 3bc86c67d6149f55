package util

import (
	"fmt"
	"time"

	"github.com/harrisonrobin/taskcal/pkg/model"
	"google.golang.org/api/calendar/v3"
)

const (
	// MaxPopupReminders keeps popups plus the email reminder within the
	// calendar API's five overrides per event.
	MaxPopupReminders = 4

	EmailReminderMinutes = 60

	// EventWindow is how far before the deadline the calendar event starts.
	EventWindow = time.Hour
)

// Reminders computes the reminder overrides for a deadline. An empty or none
// frequency yields no reminders at all, which is how reminders are paused
// without deleting the event.
func Reminders(freq model.ReminderFrequency, deadline, now time.Time) []*calendar.EventReminder {
	interval := freq.Interval()
	if interval == 0 {
		return []*calendar.EventReminder{}
	}

	n := 0
	if remaining := deadline.Sub(now); remaining > 0 {
		n = int(remaining / interval)
	}
	if n > MaxPopupReminders {
		n = MaxPopupReminders
	}

	reminders := make([]*calendar.EventReminder, 0, n+1)
	for i := 1; i <= n; i++ {
		reminders = append(reminders, &calendar.EventReminder{
			Method:  "popup",
			Minutes: int64(time.Duration(i) * interval / time.Minute),
		})
	}
	reminders = append(reminders, &calendar.EventReminder{
		Method:  "email",
		Minutes: EmailReminderMinutes,
	})
	return reminders
}

// ConvertToCalendarEvent builds the event mirroring a task deadline. The event
// occupies [deadline-1h, deadline] in UTC.
func ConvertToCalendarEvent(title string, notes *string, deadline time.Time, freq model.ReminderFrequency, now time.Time) *calendar.Event {
	event := &calendar.Event{
		Summary: title,
		Start: &calendar.EventDateTime{
			DateTime: deadline.Add(-EventWindow).UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: deadline.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides:  Reminders(freq, deadline, now),
			// an empty override list must still be sent so a patch clears reminders
			ForceSendFields: []string{"UseDefault", "Overrides"},
		},
	}
	if notes != nil && *notes != "" {
		event.Description = *notes
	} else {
		// cleared notes must reach a patch as an empty description
		event.ForceSendFields = append(event.ForceSendFields, "Description")
	}
	return event
}

// ParseDateRange parses an RFC3339 instant and returns the half-open range
// [00:00, next 00:00) of its UTC day.
func ParseDateRange(s string) (time.Time, time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid datetime format %q: %v", model.ErrInvalidInput, s, err)
	}
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}

// ParseDeadline parses a caller-supplied deadline.
func ParseDeadline(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid deadline format %q: %v", model.ErrInvalidInput, s, err)
	}
	return t.UTC(), nil
}
