package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/tutorhub-session/internal/config"
	"github.com/jrsteele09/tutorhub-session/internal/logging"
	"github.com/jrsteele09/tutorhub-session/server"
	refreshrepofake "github.com/jrsteele09/tutorhub-session/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/tutorhub-session/users/repofake"
	"github.com/rs/zerolog/log"
)

const (
	demoPasswordVar     = "DEV_DEMO_PASSWORD"
	defaultDemoPassword = "Secret1!"
	revocationSweep     = 5 * time.Minute
)

func main() {
	_ = godotenv.Load()
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(os.Stderr, c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName() + " dev")

	srv, err := server.New(c, server.Repos{
		Users:         fakeuserrepo.NewFakeUserRepo(),
		RefreshTokens: refreshrepofake.NewFakeRefreshTokenRepo(),
	})
	if err != nil {
		return err
	}
	if err := srv.BootstrapDemoUsers(config.GetEnv(demoPasswordVar, defaultDemoPassword)); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweepRevokedTokens(ctx, srv)

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- listenAndServe(httpServer) }()

	select {
	case err := <-errc:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func sweepRevokedTokens(ctx context.Context, srv *server.Server) {
	ticker := time.NewTicker(revocationSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := srv.Issuer().CleanupRevokedTokens(); n > 0 {
				log.Debug().Int("removed", n).Msg("swept revoked access tokens")
			}
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
