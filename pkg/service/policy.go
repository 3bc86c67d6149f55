package service

import (
	"context"
	"errors"
	"fmt"
)

// remoteAction names each calendar side effect the engine can perform.
type remoteAction int

const (
	actionRestoreReminders remoteAction = iota
	actionSuppressReminders
	actionDeleteOnComplete
	actionDeleteOnTaskDelete
	actionUpdateOnEdit
	actionCreateOnEdit
	actionDeleteOnDisable
)

func (a remoteAction) String() string {
	switch a {
	case actionRestoreReminders:
		return "restore reminders"
	case actionSuppressReminders:
		return "suppress reminders"
	case actionDeleteOnComplete:
		return "delete event on completion"
	case actionDeleteOnTaskDelete:
		return "delete event on task deletion"
	case actionUpdateOnEdit:
		return "update event"
	case actionCreateOnEdit:
		return "create event"
	case actionDeleteOnDisable:
		return "delete event on disable"
	}
	return "unknown action"
}

type errorKind int

const (
	kindNone errorKind = iota
	// kindNotFound is a logical not-found from the calendar API.
	kindNotFound
	// kindAuth covers a missing credential or a failed refresh.
	kindAuth
	// kindTransient is every other failure: transport, non-404/410 responses,
	// a saturated scheduler, a cancelled context.
	kindTransient
)

func classify(err error) errorKind {
	switch {
	case err == nil:
		return kindNone
	case errors.Is(err, ErrEventNotFound):
		return kindNotFound
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrAuthRefreshFailed):
		return kindAuth
	}
	return kindTransient
}

type outcome int

const (
	outcomeCommit outcome = iota
	outcomeSelfHeal
	outcomeLog
	outcomePropagate
)

type actionPolicy struct {
	onError map[errorKind]outcome
	// detach clears the link whatever the remote outcome was.
	detach bool
}

var bestEffort = map[errorKind]outcome{
	kindNotFound:  outcomeSelfHeal,
	kindAuth:      outcomeLog,
	kindTransient: outcomeLog,
}

// policies is the single place that decides log vs. self-heal vs. propagate.
var policies = map[remoteAction]actionPolicy{
	actionRestoreReminders:   {onError: bestEffort},
	actionSuppressReminders:  {onError: bestEffort},
	actionUpdateOnEdit:       {onError: bestEffort},
	actionDeleteOnComplete:   {onError: bestEffort, detach: true},
	actionDeleteOnDisable:    {onError: bestEffort, detach: true},
	actionDeleteOnTaskDelete: {onError: bestEffort},
	actionCreateOnEdit: {onError: map[errorKind]outcome{
		kindNotFound:  outcomePropagate,
		kindAuth:      outcomePropagate,
		kindTransient: outcomePropagate,
	}},
}

// reconcile brings the stored link in line with the outcome of a remote call.
// createdID is the event id returned by a successful create.
func (s *TaskService) reconcile(ctx context.Context, taskID string, action remoteAction, createdID string, remoteErr error) error {
	p := policies[action]
	o := outcomeCommit
	if kind := classify(remoteErr); kind != kindNone {
		o = p.onError[kind]
	}

	cleared := false
	switch o {
	case outcomeCommit:
		if action == actionCreateOnEdit {
			if err := s.tasks.SetLinkedEventID(ctx, taskID, createdID); err != nil {
				return fmt.Errorf("failed to link event %s to task %s: %w", createdID, taskID, err)
			}
		}
	case outcomeSelfHeal:
		s.logger.Printf("Calendar event for task %s is gone (%s), unlinking: %v", taskID, action, remoteErr)
		if err := s.clearLink(ctx, taskID); err != nil {
			return err
		}
		cleared = true
	case outcomeLog:
		s.logger.Printf("Warning: could not %s for task %s: %v", action, taskID, remoteErr)
	case outcomePropagate:
		return fmt.Errorf("could not %s for task %s: %w", action, taskID, remoteErr)
	}

	if p.detach && !cleared {
		return s.clearLink(ctx, taskID)
	}
	return nil
}

func (s *TaskService) clearLink(ctx context.Context, taskID string) error {
	if err := s.tasks.ClearLinkedEventID(ctx, taskID); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil
		}
		return fmt.Errorf("failed to unlink calendar event from task %s: %w", taskID, err)
	}
	return nil
}
