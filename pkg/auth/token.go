package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/harrisonrobin/taskcal/pkg/model"
	"golang.org/x/oauth2"
)

var (
	// ErrNotConnected means no calendar credential is stored.
	ErrNotConnected = errors.New("calendar not connected")
	// ErrAuthRefreshFailed means the refresh-token grant failed.
	ErrAuthRefreshFailed = errors.New("access token refresh failed")
)

// RefreshSkew is how close to expiry a token may get before it is refreshed.
const RefreshSkew = 5 * time.Minute

// RequestTimeout bounds the token endpoint call.
const RequestTimeout = 30 * time.Second

type CredentialStore interface {
	Get(ctx context.Context) (*model.Credential, error)
	Save(ctx context.Context, cred model.Credential) error
}

// RefreshedToken is the outcome of a refresh-token grant.
type RefreshedToken struct {
	AccessToken string
	ExpiresIn   time.Duration
	// RefreshToken is set only when the provider rotated it.
	RefreshToken string
}

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (RefreshedToken, error)
}

// TokenSupplier hands out a currently valid access token, refreshing and
// persisting the credential when it is expired or about to expire. It never
// retries.
type TokenSupplier struct {
	creds     CredentialStore
	refresher Refresher
	now       func() time.Time
	logger    *log.Logger
}

func NewTokenSupplier(creds CredentialStore, refresher Refresher) *TokenSupplier {
	return &TokenSupplier{creds: creds, refresher: refresher, now: time.Now, logger: log.Default()}
}

// WithLogger replaces the supplier's logger.
func (s *TokenSupplier) WithLogger(l *log.Logger) *TokenSupplier {
	s.logger = l
	return s
}

// WithClock replaces the supplier's clock.
func (s *TokenSupplier) WithClock(now func() time.Time) *TokenSupplier {
	s.now = now
	return s
}

// Token returns a valid access token for the stored credential.
func (s *TokenSupplier) Token(ctx context.Context) (string, error) {
	cred, err := s.creds.Get(ctx)
	if err != nil {
		return "", err
	}
	token, updated, err := s.EnsureValidToken(ctx, cred)
	if err != nil {
		return "", err
	}
	if updated != cred {
		if err := s.creds.Save(ctx, *updated); err != nil {
			return "", fmt.Errorf("failed to persist refreshed credential: %w", err)
		}
	}
	return token, nil
}

// EnsureValidToken returns the token to use and the credential it came from.
// The returned credential is a new value only when a refresh happened; cred
// itself is never modified.
func (s *TokenSupplier) EnsureValidToken(ctx context.Context, cred *model.Credential) (string, *model.Credential, error) {
	if cred.Placeholder() {
		return "", nil, ErrNotConnected
	}
	now := s.now()
	if cred.TokenExpiry.Sub(now) >= RefreshSkew {
		return cred.AccessToken, cred, nil
	}

	s.logger.Printf("Access token for %s expires at %s, refreshing", cred.Email, cred.TokenExpiry.Format(time.RFC3339))
	refreshed, err := s.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrAuthRefreshFailed, err)
	}
	if refreshed.AccessToken == "" {
		return "", nil, fmt.Errorf("%w: empty access token in refresh response", ErrAuthRefreshFailed)
	}

	updated := *cred
	updated.AccessToken = refreshed.AccessToken
	updated.TokenExpiry = now.Add(refreshed.ExpiresIn).UTC()
	if refreshed.RefreshToken != "" {
		updated.RefreshToken = refreshed.RefreshToken
	}
	return updated.AccessToken, &updated, nil
}

// OAuthRefresher performs the refresh-token grant with golang.org/x/oauth2.
type OAuthRefresher struct {
	config *oauth2.Config
}

func NewOAuthRefresher(config *oauth2.Config) *OAuthRefresher {
	return &OAuthRefresher{config: config}
}

func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (RefreshedToken, error) {
	if refreshToken == "" {
		return RefreshedToken{}, errors.New("no refresh token stored")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: RequestTimeout})

	// An empty access token forces the token source to use the refresh token.
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return RefreshedToken{}, err
	}

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn == 0 && !tok.Expiry.IsZero() {
		expiresIn = time.Until(tok.Expiry).Round(time.Second)
	}
	out := RefreshedToken{AccessToken: tok.AccessToken, ExpiresIn: expiresIn}
	if tok.RefreshToken != refreshToken {
		out.RefreshToken = tok.RefreshToken
	}
	return out, nil
}
