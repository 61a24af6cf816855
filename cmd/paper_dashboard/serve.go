package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"paper_dashboard/internal/api"
	"paper_dashboard/internal/dashboard"
	"paper_dashboard/internal/session"
)

var serveAddr string

// serveCmd runs the API server and the view pollers until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API and poll the broker",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to SERVER_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a := current
	addr := a.cfg.ServerAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	sess := session.New(session.NewFileStore(a.cfg.SessionFile), session.StaticVerifier{
		Email:    a.cfg.LoginEmail,
		Password: a.cfg.LoginPassword,
	})
	if err := sess.Restore(); err != nil {
		// A corrupt session file only costs a new login
		a.log.Warn().Err(err).Str("file", a.cfg.SessionFile).Msg("could not restore session")
	}

	dash := dashboard.New(a.broker, dashboard.Options{
		Interval: a.cfg.PollInterval,
		Logger:   a.log.With().Str("component", "dashboard").Logger(),
	})

	handler := api.NewHandler(a.broker, dash, sess, a.notifier, a.log.With().Str("component", "api").Logger())
	server := api.NewServer(addr, api.SetupRoutes(handler, a.registry), a.log)

	// Create a context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	go func() {
		select {
		case <-c:
			a.log.Warn().Msg("shutting down: system signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	pollersDone := make(chan struct{})
	go func() {
		defer close(pollersDone)
		dash.RunAll(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	a.log.Info().Str("addr", addr).Dur("poll_interval", a.cfg.PollInterval).Msg("dashboard running")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("server shutdown failed")
	}

	<-pollersDone
	dash.Wait()
	handler.Wait()
	a.log.Info().Msg("main loop stopped")
	return runErr
}
