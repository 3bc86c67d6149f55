package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/taskcal/pkg/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const (
	// ClientSecretsFile is the downloaded Google API credentials.json, looked up
	// in the application config directory.
	ClientSecretsFile = "credentials.json"

	// CallbackPath is where the local listener captures the OAuth redirect.
	CallbackPath = "/oauth/callback"

	// AuthorizeTimeout is how long the user has to grant access.
	AuthorizeTimeout = 5 * time.Minute
)

// Scopes requested during authorization.
var Scopes = []string{
	calendar.CalendarEventsScope,
	oauth2api.UserinfoEmailScope,
}

// GetConfig builds the OAuth client config. A credentials.json in configDir
// wins; otherwise clientID and clientSecret are used with Google's endpoint.
func GetConfig(configDir, clientID, clientSecret string, port int) (*oauth2.Config, error) {
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d%s", port, CallbackPath)

	secretsFile := filepath.Join(configDir, ClientSecretsFile)
	b, err := os.ReadFile(secretsFile)
	switch {
	case err == nil:
		config, err := google.ConfigFromJSON(b, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
		}
		if config.RedirectURL != redirectURL {
			log.Printf("Overriding RedirectURL %q from %s with %s", config.RedirectURL, secretsFile, redirectURL)
			config.RedirectURL = redirectURL
		}
		return config, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("unable to read client secret file %s: %w", secretsFile, err)
	}

	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("no OAuth client configured: place %s in %s or set client_id and client_secret", ClientSecretsFile, configDir)
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
	}, nil
}

// Authorizer runs the authorization-code flow through a local callback listener.
type Authorizer struct {
	Config *oauth2.Config
	// Addr is the listener address, e.g. "127.0.0.1:3333". Port 0 picks a free
	// port and rewrites the redirect URL to match.
	Addr string
	// OpenURL presents the consent URL to the user.
	OpenURL func(url string) error
	// UserinfoEndpoint overrides the userinfo API base URL.
	UserinfoEndpoint string
	Timeout          time.Duration
}

func printURL(authURL string) error {
	fmt.Printf("Please open the following URL in your browser to connect your calendar:\n%s\n", authURL)
	return nil
}

type callbackResult struct {
	code string
	err  error
}

// Authorize obtains a credential for the user's calendar account.
func (a *Authorizer) Authorize(ctx context.Context) (model.Credential, error) {
	config := *a.Config
	listener, err := net.Listen("tcp", a.Addr)
	if err != nil {
		return model.Credential{}, fmt.Errorf("failed to start listener on %s: %w", a.Addr, err)
	}
	defer listener.Close()
	config.RedirectURL = fmt.Sprintf("http://%s%s", listener.Addr().String(), CallbackPath)

	state := uuid.NewString()
	resultCh := make(chan callbackResult, 1)
	deliver := func(r callbackResult) {
		select {
		case resultCh <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "Authorization failed: "+e, http.StatusBadRequest)
			deliver(callbackResult{err: fmt.Errorf("authorization error: %s", e)})
			return
		}
		if q.Get("state") != state {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("invalid state - possible CSRF attack")})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Authorization code not found", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("authorization code not found in redirect URL")})
			return
		}
		fmt.Fprintf(w, "Calendar connected! You can close this window.")
		deliver(callbackResult{code: code})
	})

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			deliver(callbackResult{err: fmt.Errorf("HTTP server error: %w", err)})
		}
	}()
	defer server.Shutdown(context.Background())

	// AccessTypeOffline and prompt=consent make sure a refresh token is returned.
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	open := a.OpenURL
	if open == nil {
		open = printURL
	}
	if err := open(authURL); err != nil {
		return model.Credential{}, fmt.Errorf("failed to open browser: %w", err)
	}
	log.Println("Waiting for authorization code...")

	timeout := a.Timeout
	if timeout == 0 {
		timeout = AuthorizeTimeout
	}
	var res callbackResult
	select {
	case res = <-resultCh:
	case <-time.After(timeout):
		return model.Credential{}, errors.New("authorization timed out, please try again")
	case <-ctx.Done():
		return model.Credential{}, ctx.Err()
	}
	if res.err != nil {
		return model.Credential{}, res.err
	}
	return a.exchange(ctx, &config, res.code)
}

func (a *Authorizer) exchange(ctx context.Context, config *oauth2.Config, code string) (model.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: RequestTimeout})

	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return model.Credential{}, fmt.Errorf("unable to retrieve token from Google: %w", err)
	}
	if tok.RefreshToken == "" {
		return model.Credential{}, errors.New("no refresh token received, try revoking app access and reconnecting")
	}

	email, err := a.userEmail(ctx, config, tok)
	if err != nil {
		return model.Credential{}, err
	}
	return model.Credential{
		Email:        email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  tok.Expiry.UTC(),
	}, nil
}

func (a *Authorizer) userEmail(ctx context.Context, config *oauth2.Config, tok *oauth2.Token) (string, error) {
	opts := []option.ClientOption{option.WithHTTPClient(config.Client(ctx, tok))}
	if a.UserinfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(a.UserinfoEndpoint))
	}
	srv, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("unable to create userinfo service: %w", err)
	}
	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get user info: %w", err)
	}
	if info.Email == "" {
		return "", errors.New("user info carried no email")
	}
	return info.Email, nil
}
