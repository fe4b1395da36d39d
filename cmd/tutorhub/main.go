// Command tutorhub is a terminal client for the TutorHub API. It keeps the session
// on disk (or in Redis) between runs and refreshes expired access tokens itself.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/tutorhub-session/apiclient"
	"github.com/jrsteele09/tutorhub-session/auth"
	"github.com/jrsteele09/tutorhub-session/gate"
	"github.com/jrsteele09/tutorhub-session/internal/config"
	"github.com/jrsteele09/tutorhub-session/internal/logging"
	"github.com/jrsteele09/tutorhub-session/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	exitOK = iota
	exitError
	exitUsage
	exitSessionExpired
)

type app struct {
	sessions *session.Manager
	client   *apiclient.Client
	auth     *auth.Service
	gate     *gate.Gate
	expired  atomic.Bool
	closers  []func() error
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	_ = godotenv.Load()
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		displayAppname("TutorHub")
		usage()
		return exitUsage
	}

	c, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	logging.Setup(os.Stderr, c.GetLogLevel(), c.GetEnv())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c)
	if err != nil {
		log.Err(err).Msg("startup failed")
		return exitError
	}
	defer a.close()

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		return exitUsage
	}
	if err := cmd.run(ctx, a, args[1:]); err != nil {
		if a.expired.Load() {
			return exitSessionExpired
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitError
	}
	return exitOK
}

func newApp(ctx context.Context, c config.Config) (*app, error) {
	a := &app{}
	storage, closer, err := openStorage(c)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.sessions = session.New(storage)
	if _, err := a.sessions.Hydrate(ctx); err != nil {
		// Hydration still completes with an empty session.
		log.Warn().Err(err).Msg("could not restore session")
	}

	a.client, err = apiclient.New(c.GetAPIBaseURL(), a.sessions,
		apiclient.WithHTTPClient(&http.Client{Timeout: c.GetRequestTimeout()}),
		apiclient.WithRefreshTimeout(c.GetRefreshTimeout()),
		apiclient.WithProactiveRefresh(true),
		apiclient.WithMetrics(apiclient.NewMetrics(prometheus.DefaultRegisterer)),
		apiclient.WithSessionExpiredHandler(func(err error) {
			a.expired.Store(true)
			fmt.Fprintln(os.Stderr, "session expired, please log in again: tutorhub login -email <email>")
		}),
	)
	if err != nil {
		return nil, err
	}
	a.auth = auth.NewService(a.client, a.sessions)
	a.gate = gate.New(a.sessions)
	return a, nil
}

func (a *app) close() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			log.Debug().Err(err).Msg("close")
		}
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
