package google

import (
	"context"
	"errors"
	"fmt"
)

// ErrCalendarNotFound means no calendar in the user's list matched.
var ErrCalendarNotFound = errors.New("calendar not found")

// FindCalendar returns the id of the calendar whose summary or id is name.
func (c *CalendarClient) FindCalendar(ctx context.Context, accessToken, name string) (string, error) {
	srv, err := c.service(ctx, accessToken)
	if err != nil {
		return "", err
	}

	pageToken := ""
	for {
		call := srv.CalendarList.List().Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		calendarList, err := call.Do()
		if err != nil {
			return "", fmt.Errorf("%w: unable to retrieve calendar list: %v", ErrRemoteFailure, err)
		}
		for _, item := range calendarList.Items {
			if item.Summary == name || item.Id == name {
				return item.Id, nil
			}
		}
		if calendarList.NextPageToken == "" {
			break
		}
		pageToken = calendarList.NextPageToken
	}
	return "", fmt.Errorf("%w: '%s'", ErrCalendarNotFound, name)
}
