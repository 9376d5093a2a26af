package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/orgdesk/go-client/apiclient"
	"github.com/orgdesk/go-client/internal/config"
	"github.com/orgdesk/go-client/realtime"
	"github.com/orgdesk/go-client/session"
	"github.com/orgdesk/go-client/session/storefile"
	"github.com/orgdesk/go-client/session/storesqlite"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running client: %s\n", err)
	}
	log.Printf("Client stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())
	logger := newLogger(c.GetLogLevel())

	store, closeStore, err := openStore(c)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer closeStore()

	state, err := session.NewState(store, session.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := state.Restore(); err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}

	notifier := apiclient.LogNotifier{Logger: logger}
	api, err := apiclient.New(c.GetAPIBaseURL(), state,
		apiclient.WithLogger(logger),
		apiclient.WithNotifier(notifier),
		apiclient.WithHTTPClient(&http.Client{Timeout: c.GetHTTPTimeout()}),
		apiclient.WithOnSessionExpired(func() {
			logger.Warn().Msg("session expired, please sign in again")
		}),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !state.IsAuthenticated() {
		email, password := c.GetEmail(), c.GetPassword()
		if email == "" || password == "" {
			return errors.New("no stored session and no credentials configured")
		}
		if err := api.SignIn(ctx, email, password); err != nil {
			return fmt.Errorf("signing in: %w", err)
		}
		logger.Info().Str("email", email).Msg("signed in")
	} else {
		logger.Info().Msg("restored previous session")
	}

	channel, err := realtime.New(c.GetRealtimeURL(), state,
		realtime.WithLogger(logger),
		realtime.WithNotifier(notifier),
	)
	if err != nil {
		return err
	}
	channel.BindInvalidation(api)

	logger.Info().Str("url", c.GetRealtimeURL()).Msg("watching realtime events")
	if err := channel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(c config.Config) (session.Store, func(), error) {
	if err := os.MkdirAll(c.GetStateDir(), 0o700); err != nil {
		return nil, nil, err
	}

	switch c.GetStateBackend() {
	case config.StateBackendSQLite:
		store, err := storesqlite.Open(filepath.Join(c.GetStateDir(), "orgdesk.db"))
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := storefile.New(c.GetStateDir())
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
