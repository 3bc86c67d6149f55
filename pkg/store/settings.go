package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/jmoiron/sqlx"
)

type settingsRow struct {
	DarkMode                 bool   `db:"dark_mode"`
	NotificationsEnabled     bool   `db:"notifications_enabled"`
	DefaultReminderFrequency string `db:"default_reminder_frequency"`
	CreatedAt                string `db:"created_at"`
	UpdatedAt                string `db:"updated_at"`
}

func (r settingsRow) settings() (model.Settings, error) {
	freq, err := model.ParseReminderFrequency(r.DefaultReminderFrequency)
	if err != nil {
		return model.Settings{}, fmt.Errorf("corrupt settings: %w", err)
	}
	st := model.Settings{
		DarkMode:                 r.DarkMode,
		NotificationsEnabled:     r.NotificationsEnabled,
		DefaultReminderFrequency: freq,
	}
	if st.CreatedAt, err = parseTime("created_at", r.CreatedAt); err != nil {
		return model.Settings{}, err
	}
	if st.UpdatedAt, err = parseTime("updated_at", r.UpdatedAt); err != nil {
		return model.Settings{}, err
	}
	return st, nil
}

// SettingsStore persists the application settings row, creating it with
// defaults on first read.
type SettingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func getSettings(tx *sqlx.Tx, now time.Time) (model.Settings, error) {
	var row settingsRow
	query := `SELECT dark_mode, notifications_enabled, default_reminder_frequency, created_at, updated_at
		FROM settings WHERE id = 1`
	err := tx.Get(&row, query)
	if errors.Is(err, sql.ErrNoRows) {
		ts := formatTime(now)
		if _, err := tx.Exec(`INSERT INTO settings (id, created_at, updated_at) VALUES (1, ?, ?)`, ts, ts); err != nil {
			return model.Settings{}, fmt.Errorf("failed to create default settings: %w", err)
		}
		err = tx.Get(&row, query)
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return row.settings()
}

func (s *SettingsStore) Get(ctx context.Context, now time.Time) (model.Settings, error) {
	var st model.Settings
	err := s.db.tx(ctx, func(tx *sqlx.Tx) error {
		var err error
		st, err = getSettings(tx, now)
		return err
	})
	return st, err
}

// Update applies the supplied fields and returns the resulting settings.
func (s *SettingsStore) Update(ctx context.Context, patch model.SettingsPatch, now time.Time) (model.Settings, error) {
	var freq *model.ReminderFrequency
	if patch.DefaultReminderFrequency.IsNull() {
		return model.Settings{}, fmt.Errorf("%w: defaultReminderFrequency cannot be null", model.ErrInvalidInput)
	}
	if v, ok := patch.DefaultReminderFrequency.Get(); ok {
		f, err := model.ParseReminderFrequency(v)
		if err != nil {
			return model.Settings{}, err
		}
		freq = &f
	}

	var st model.Settings
	err := s.db.tx(ctx, func(tx *sqlx.Tx) error {
		cur, err := getSettings(tx, now)
		if err != nil {
			return err
		}
		if v, ok := patch.DarkMode.Get(); ok {
			cur.DarkMode = v
		}
		if v, ok := patch.NotificationsEnabled.Get(); ok {
			cur.NotificationsEnabled = v
		}
		if freq != nil {
			cur.DefaultReminderFrequency = *freq
		}
		cur.UpdatedAt = now.UTC()
		_, err = tx.Exec(`UPDATE settings SET dark_mode = ?, notifications_enabled = ?, default_reminder_frequency = ?,
			updated_at = ? WHERE id = 1`,
			cur.DarkMode, cur.NotificationsEnabled, string(cur.DefaultReminderFrequency), formatTime(cur.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to update settings: %w", err)
		}
		st = cur
		return nil
	})
	return st, err
}
