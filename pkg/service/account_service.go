package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/harrisonrobin/taskcal/pkg/scheduler"
)

type CredentialStore interface {
	Get(ctx context.Context) (*model.Credential, error)
	Save(ctx context.Context, cred model.Credential) error
	Clear(ctx context.Context) error
}

// Authorizer obtains a fresh credential from the user.
type Authorizer interface {
	Authorize(ctx context.Context) (model.Credential, error)
}

type CalendarFinder interface {
	FindCalendar(ctx context.Context, accessToken, name string) (string, error)
}

// CalendarService manages the single connected calendar account.
type CalendarService struct {
	creds      CredentialStore
	authorizer Authorizer
	tokens     TokenSource
	finder     CalendarFinder
	pool       *scheduler.Pool
	logger     *log.Logger
}

func NewCalendarService(creds CredentialStore, authorizer Authorizer, tokens TokenSource, finder CalendarFinder, pool *scheduler.Pool, logger *log.Logger) *CalendarService {
	if logger == nil {
		logger = log.Default()
	}
	return &CalendarService{creds: creds, authorizer: authorizer, tokens: tokens, finder: finder, pool: pool, logger: logger}
}

// Connect runs the authorization flow and stores the resulting credential,
// replacing any previous account.
func (s *CalendarService) Connect(ctx context.Context) (model.Credential, error) {
	cred, err := s.authorizer.Authorize(ctx)
	if err != nil {
		return model.Credential{}, fmt.Errorf("failed to connect calendar: %w", err)
	}
	if cred.Placeholder() {
		return model.Credential{}, fmt.Errorf("failed to connect calendar: authorization returned no usable credential")
	}
	if err := s.creds.Save(ctx, cred); err != nil {
		return model.Credential{}, err
	}
	s.logger.Printf("Connected calendar account %s", cred.Email)
	return cred, nil
}

// Status returns the connected credential, or nil.
func (s *CalendarService) Status(ctx context.Context) (*model.Credential, error) {
	return s.creds.Get(ctx)
}

func (s *CalendarService) Disconnect(ctx context.Context) error {
	if err := s.creds.Clear(ctx); err != nil {
		return err
	}
	s.logger.Println("Disconnected calendar account")
	return nil
}

// FindCalendar resolves a calendar name from the user's calendar list to its id.
func (s *CalendarService) FindCalendar(ctx context.Context, name string) (string, error) {
	return scheduler.Run(ctx, s.pool, func(ctx context.Context) (string, error) {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return "", err
		}
		return s.finder.FindCalendar(ctx, token, name)
	})
}

type SettingsStore interface {
	Get(ctx context.Context, now time.Time) (model.Settings, error)
	Update(ctx context.Context, patch model.SettingsPatch, now time.Time) (model.Settings, error)
}

type SettingsService struct {
	store SettingsStore
	now   func() time.Time
}

func NewSettingsService(store SettingsStore) *SettingsService {
	return &SettingsService{store: store, now: time.Now}
}

func (s *SettingsService) Get(ctx context.Context) (model.Settings, error) {
	return s.store.Get(ctx, s.now())
}

func (s *SettingsService) Update(ctx context.Context, patch model.SettingsPatch) (model.Settings, error) {
	return s.store.Update(ctx, patch, s.now())
}
