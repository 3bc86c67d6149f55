package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/jmoiron/sqlx"
)

type credentialRow struct {
	Email        string `db:"email"`
	AccessToken  string `db:"access_token"`
	RefreshToken string `db:"refresh_token"`
	TokenExpiry  string `db:"token_expiry"`
}

// CredentialStore persists the one calendar credential record.
type CredentialStore struct {
	db *DB
}

func NewCredentialStore(db *DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Get returns the stored credential, or nil when the calendar is not connected.
// A placeholder row with an empty email or access token counts as absent.
func (s *CredentialStore) Get(ctx context.Context) (*model.Credential, error) {
	var cred *model.Credential
	err := s.db.tx(ctx, func(tx *sqlx.Tx) error {
		var row credentialRow
		err := tx.Get(&row, `SELECT email, access_token, refresh_token, token_expiry FROM calendar_credentials WHERE id = 1`)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get calendar credentials: %w", err)
		}
		expiry, err := parseTime("token_expiry", row.TokenExpiry)
		if err != nil {
			return err
		}
		cred = &model.Credential{
			Email:        row.Email,
			AccessToken:  row.AccessToken,
			RefreshToken: row.RefreshToken,
			TokenExpiry:  expiry,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cred.Placeholder() {
		return nil, nil
	}
	return cred, nil
}

// Save replaces the stored credential.
func (s *CredentialStore) Save(ctx context.Context, cred model.Credential) error {
	return s.db.tx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO calendar_credentials (id, email, access_token, refresh_token, token_expiry)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET email = excluded.email, access_token = excluded.access_token,
				refresh_token = excluded.refresh_token, token_expiry = excluded.token_expiry`,
			cred.Email, cred.AccessToken, cred.RefreshToken, formatTime(cred.TokenExpiry))
		if err != nil {
			return fmt.Errorf("failed to save calendar credentials: %w", err)
		}
		return nil
	})
}

// Clear removes the stored credential.
func (s *CredentialStore) Clear(ctx context.Context) error {
	return s.db.tx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`DELETE FROM calendar_credentials`); err != nil {
			return fmt.Errorf("failed to clear calendar credentials: %w", err)
		}
		return nil
	})
}
