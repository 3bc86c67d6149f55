package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harrisonrobin/taskcal/pkg/auth"
	"github.com/harrisonrobin/taskcal/pkg/cli"
	"github.com/harrisonrobin/taskcal/pkg/config"
	"github.com/harrisonrobin/taskcal/pkg/google"
	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/harrisonrobin/taskcal/pkg/scheduler"
	"github.com/harrisonrobin/taskcal/pkg/service"
	"github.com/harrisonrobin/taskcal/pkg/store"
)

var version = "dev"

// lazyAuthorizer defers OAuth client setup until a connect is requested, so
// every other command works without client credentials.
type lazyAuthorizer struct {
	cfg *config.Config
}

func (a lazyAuthorizer) Authorize(ctx context.Context) (model.Credential, error) {
	oauthConfig, err := auth.GetConfig(a.cfg.Dir, a.cfg.ClientID, a.cfg.ClientSecret, a.cfg.CallbackPort)
	if err != nil {
		return model.Credential{}, err
	}
	authorizer := &auth.Authorizer{
		Config: oauthConfig,
		Addr:   fmt.Sprintf("127.0.0.1:%d", a.cfg.CallbackPort),
	}
	return authorizer.Authorize(ctx)
}

// lazyRefresher does the same for token refreshes.
type lazyRefresher struct {
	cfg *config.Config
}

func (r lazyRefresher) Refresh(ctx context.Context, refreshToken string) (auth.RefreshedToken, error) {
	oauthConfig, err := auth.GetConfig(r.cfg.Dir, r.cfg.ClientID, r.cfg.ClientSecret, r.cfg.CallbackPort)
	if err != nil {
		return auth.RefreshedToken{}, err
	}
	return auth.NewOAuthRefresher(oauthConfig).Refresh(ctx, refreshToken)
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Error loading config: %v", err)
		return 1
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Printf("Error opening database: %v", err)
		return 1
	}
	defer db.Close()

	pool := scheduler.New(cfg.QueueSize)
	pool.Start(cfg.Workers)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), google.RequestTimeout)
		defer cancel()
		if err := pool.Shutdown(ctx); err != nil {
			log.Printf("Warning: scheduler did not drain: %v", err)
		}
	}()

	creds := store.NewCredentialStore(db)
	tokens := auth.NewTokenSupplier(creds, lazyRefresher{cfg: cfg})
	events := google.NewCalendarClient(cfg.CalendarID)
	settings := store.NewSettingsStore(db)

	app := &cli.App{
		Tasks:     service.NewTaskService(store.NewTaskStore(db), settings, tokens, events, pool),
		Calendar:  service.NewCalendarService(creds, lazyAuthorizer{cfg: cfg}, tokens, events, pool, nil),
		Settings:  service.NewSettingsService(settings),
		ConfigDir: cfg.Dir,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(app, version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
