package overdue

import (
	"sort"
	"time"

	"github.com/harrisonrobin/taskcal/pkg/model"
)

// Entry is a task whose deadline has passed without it being completed.
type Entry struct {
	TaskID   string       `json:"taskId"`
	EventID  string       `json:"eventId,omitempty"`
	Title    string       `json:"title"`
	Status   model.Status `json:"status"`
	Deadline time.Time    `json:"deadline"`
	// Late is how long ago the deadline passed, truncated to the minute.
	Late time.Duration `json:"late"`
}

// Sweep returns the entries that have become overdue (Deadline < now), oldest
// deadline first. Completed tasks and tasks without a deadline are skipped.
func Sweep(tasks []model.Task, now time.Time) []Entry {
	var swept []Entry
	for _, t := range tasks {
		if t.Status == model.Completed || t.Deadline == nil {
			continue
		}
		if !t.Deadline.Before(now) {
			continue
		}
		e := Entry{
			TaskID:   t.ID,
			Title:    t.Title,
			Status:   t.Status,
			Deadline: *t.Deadline,
			Late:     now.Sub(*t.Deadline).Truncate(time.Minute),
		}
		if id, ok := t.LinkedEventID(); ok {
			e.EventID = id
		}
		swept = append(swept, e)
	}
	sort.Slice(swept, func(i, j int) bool {
		if swept[i].Deadline.Equal(swept[j].Deadline) {
			return swept[i].TaskID < swept[j].TaskID
		}
		return swept[i].Deadline.Before(swept[j].Deadline)
	})
	return swept
}
