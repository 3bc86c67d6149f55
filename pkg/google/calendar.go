package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/harrisonrobin/taskcal/pkg/util"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	// ErrEventNotFound means the remote event no longer exists (404 or 410).
	ErrEventNotFound = errors.New("calendar event not found")
	// ErrRemoteFailure covers transport errors and any other non-2xx response.
	ErrRemoteFailure = errors.New("calendar request failed")
)

// RequestTimeout bounds every remote call. Calls are single-attempt.
const RequestTimeout = 30 * time.Second

// Event carries the task fields mirrored onto the remote event.
type Event struct {
	Title             string
	Notes             *string
	Deadline          time.Time
	ReminderFrequency model.ReminderFrequency
}

// CalendarClient is a stateless wrapper around the calendar events API. The
// access token is supplied per call.
type CalendarClient struct {
	calendarID string
	endpoint   string
	transport  http.RoundTripper
	now        func() time.Time
}

type Option func(*CalendarClient)

// WithEndpoint points the client at a different API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *CalendarClient) { c.endpoint = endpoint }
}

// WithTransport sets the base transport under the bearer-token transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *CalendarClient) { c.transport = rt }
}

// WithClock overrides the clock used to compute reminders.
func WithClock(now func() time.Time) Option {
	return func(c *CalendarClient) { c.now = now }
}

// NewCalendarClient creates a client for the given calendar ("primary" if empty).
func NewCalendarClient(calendarID string, opts ...Option) *CalendarClient {
	if calendarID == "" {
		calendarID = "primary"
	}
	c := &CalendarClient{calendarID: calendarID, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CalendarClient) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	httpClient := &http.Client{
		Timeout: RequestTimeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create calendar service: %v", ErrRemoteFailure, err)
	}
	return srv, nil
}

func (c *CalendarClient) event(e Event) *calendar.Event {
	return util.ConvertToCalendarEvent(e.Title, e.Notes, e.Deadline, e.ReminderFrequency, c.now())
}

// CreateEvent inserts a new event and returns its id.
func (c *CalendarClient) CreateEvent(ctx context.Context, accessToken string, e Event) (string, error) {
	srv, err := c.service(ctx, accessToken)
	if err != nil {
		return "", err
	}
	created, err := srv.Events.Insert(c.calendarID, c.event(e)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: failed to create event: %v", ErrRemoteFailure, err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("%w: create response carried no event id", ErrRemoteFailure)
	}
	return created.Id, nil
}

// UpdateEvent patches an existing event. It returns ErrEventNotFound when the
// event is gone.
func (c *CalendarClient) UpdateEvent(ctx context.Context, accessToken, eventID string, e Event) error {
	srv, err := c.service(ctx, accessToken)
	if err != nil {
		return err
	}
	_, err = srv.Events.Patch(c.calendarID, eventID, c.event(e)).Context(ctx).Do()
	if err == nil {
		return nil
	}
	if isGone(err) {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	return fmt.Errorf("%w: failed to update event %s: %v", ErrRemoteFailure, eventID, err)
}

// DeleteEvent deletes an event. An event that is already gone counts as deleted.
func (c *CalendarClient) DeleteEvent(ctx context.Context, accessToken, eventID string) error {
	srv, err := c.service(ctx, accessToken)
	if err != nil {
		return err
	}
	err = srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if err == nil || isGone(err) {
		return nil
	}
	return fmt.Errorf("%w: failed to delete event %s: %v", ErrRemoteFailure, eventID, err)
}

// isGone reports a logical not-found: HTTP 404 or 410.
func isGone(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}
