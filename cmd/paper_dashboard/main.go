package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"paper_dashboard/internal/config"
	"paper_dashboard/internal/httpclient"
	"paper_dashboard/internal/logger"
	"paper_dashboard/internal/market"
	"paper_dashboard/internal/market/alpaca"
	"paper_dashboard/internal/market/rest"
	"paper_dashboard/internal/telegram"
)

const VersionFile = "version.latest"

// app is the wiring shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	closeLog io.Closer
	registry *prometheus.Registry
	broker   market.Broker
	notifier telegram.Notifier
}

var current *app

// rootCmd is the base command for the dashboard CLI
var rootCmd = &cobra.Command{
	Use:   "paper_dashboard",
	Short: "Paper-trading dashboard backed by the Alpaca API",
	Long: `paper_dashboard serves a JSON API for a paper-trading dashboard and
offers one-shot commands to inspect the account, quote symbols and place
market orders.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		current = newApp()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, snapshotCmd, marketsCmd, orderCmd)
}

func main() {
	os.Exit(run(rootCmd))
}

// run executes root and closes the log file whether or not the command failed.
func run(root *cobra.Command) int {
	err := root.Execute()
	if current != nil {
		current.closeLog.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newApp loads the configuration and builds the broker for the selected backend.
func newApp() *app {
	cfg := config.Load()
	cfg.Version = readVersion()

	l, closer := logger.Setup(cfg.LogFile, cfg.LogLevel, cfg.MaxLogSizeMB, cfg.MaxLogBackups)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hc := httpclient.New(&http.Client{Timeout: cfg.HTTPTimeout},
		httpclient.WithLogger(l.With().Str("component", "httpclient").Logger()),
		httpclient.WithMetrics(httpclient.NewMetrics(reg)),
	)

	brokerLog := l.With().Str("component", "broker").Logger()
	var broker market.Broker
	switch cfg.Backend {
	case config.BackendSDK:
		broker = alpaca.NewProvider(alpaca.Options{
			KeyID:     cfg.APIKeyID,
			SecretKey: cfg.APISecretKey,
			BaseURL:   cfg.BaseURL,
			DataURL:   cfg.DataURL,
			Logger:    brokerLog,
		})
	default:
		broker = rest.New(hc, rest.Options{
			KeyID:       cfg.APIKeyID,
			SecretKey:   cfg.APISecretKey,
			BaseURL:     cfg.BaseURL,
			DataURL:     cfg.DataURL,
			MaxAttempts: cfg.MaxAttempts,
			Logger:      brokerLog,
		})
	}

	var notifier telegram.Notifier = telegram.Nop{}
	if cfg.TelegramEnabled() {
		notifier = telegram.New(hc, "", cfg.TelegramToken, cfg.TelegramChatID, cfg.MaxAttempts,
			l.With().Str("component", "telegram").Logger())
	}

	l.Info().Str("version", cfg.Version).Str("backend", cfg.Backend).Msg("paper dashboard initialized")

	return &app{
		cfg:      cfg,
		log:      l,
		closeLog: closer,
		registry: reg,
		broker:   broker,
		notifier: notifier,
	}
}

func readVersion() string {
	version, err := os.ReadFile(VersionFile)
	if err != nil {
		return "v0.0.0-dev"
	}
	return strings.TrimSpace(string(version))
}
