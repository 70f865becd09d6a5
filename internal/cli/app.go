// Package cli implements the interactive Ayla shell: the sign-in form, the
// signed-in status line, and the guarded commands that consume the session
// controller. The shell owns no session state of its own; it reads
// controller snapshots and invokes its operations.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/ayla-health/ayla-cli/internal/api"
	"github.com/ayla-health/ayla-cli/internal/config"
	"github.com/ayla-health/ayla-cli/internal/logging"
	"github.com/ayla-health/ayla-cli/internal/session"
	"github.com/ayla-health/ayla-cli/internal/store"
)

type App struct {
	config *config.Config
	log    logging.Logger
	db     *sql.DB
	client api.Client
	ctrl   *session.Controller
	reader *bufio.Reader
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	log := logging.NewDefault()

	db, err := store.InitDatabase(ctx, cfg.StorePath)
	if err != nil {
		return nil, err
	}

	st := store.New(db, store.NewNotifier(), log)

	client, err := api.NewHTTPClient(cfg.APIBaseURL, st, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	ctrl := session.New(client, st, log)

	return &App{
		config: cfg,
		log:    log,
		db:     db,
		client: client,
		ctrl:   ctrl,
		reader: bufio.NewReader(os.Stdin),
	}, nil
}

// Run bootstraps the session and enters the interactive loop.
func (a *App) Run(ctx context.Context) {
	defer a.close()

	fmt.Println("Welcome to Ayla (type 'help' for commands)")

	a.ctrl.Bootstrap(ctx)

	go a.ctrl.StartRevalidation(ctx, a.config.RevalidateInterval)
	go a.watchSignOut(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
}

func (a *App) close() {
	a.ctrl.Close()
	_ = a.client.Close()
	_ = a.db.Close()
}

// status renders the prompt decoration: the signed-in email, when present.
func (a *App) status() string {
	state := a.ctrl.Snapshot()
	if state.Profile == nil {
		return ""
	}
	return fmt.Sprintf("(%s)", state.Profile.Email)
}

func (a *App) isLoggedIn() bool {
	return a.ctrl.Snapshot().Authenticated()
}

// watchSignOut observes the controller's navigation intents: a forced or
// explicit sign-out lands the user back at the sign-in prompt.
func (a *App) watchSignOut(ctx context.Context) {
	id, events := a.ctrl.Subscribe()
	defer a.ctrl.Unsubscribe(id)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.SignedOut {
				fmt.Println("\nYou have been signed out. Use 'login' to sign in again.")
			}
		case <-ctx.Done():
			return
		}
	}
}
