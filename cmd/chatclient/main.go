/*
Package main is the entry point for the chat client.

It wires configuration, logging, persistence and the transport into a session manager,
then hands the manager to one of two presentations: an interactive terminal (run) or
the HTTP/WebSocket bridge for browser UIs (serve).
*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"chatclient/internal/app/session"
	"chatclient/internal/app/store"
	"chatclient/internal/app/transport"
	"chatclient/internal/configs"
	"chatclient/internal/pkg/logx"
)

var (
	version = "dev"

	flagConfig  string
	flagOffline bool
)

var rootCmd = &cobra.Command{
	Use:           "chatclient",
	Short:         "Real-time chat client",
	Long:          "chatclient keeps a chat session (identity, roster, messages, typing) in sync with a chat server.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagConfig, "config", "c", "", "YAML config file (environment variables still override it)")
	flags.BoolVar(&flagOffline, "offline", false, "use the in-process loopback server instead of SERVER_URL")

	rootCmd.AddCommand(runCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds everything a presentation needs.
type app struct {
	cfg      *configs.AppConfig
	kv       store.KV
	manager  *session.Manager
	registry *prometheus.Registry
}

// setup loads configuration, initializes logging and builds the session manager.
// logOut receives log output; the terminal passes stderr so logs do not interleave with chat.
func setup(ctx context.Context, logOut io.Writer, quiet bool) (*app, error) {
	cfg, err := configs.LoadConfig(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flagOffline {
		cfg.Offline = true
	}

	level := cfg.LogLevel
	if level == "" && quiet {
		level = "warn"
	}
	logx.InitGlobalLogger(logx.Options{
		Development: cfg.IsDevelopment(),
		Level:       level,
		Out:         logOut,
	})

	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("server_url", cfg.ServerURL).
		Bool("offline", cfg.Offline).
		Str("store_driver", cfg.Store.Driver).
		Dur("typing_timeout", cfg.TypingTimeout).
		Uint64("reconnect_attempts", cfg.Reconnect.Attempts).
		Msg("Configuration loaded successfully")

	kv, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	var tr transport.Transport
	if cfg.Offline {
		tr = transport.NewLoopback()
	} else {
		tr = transport.NewWebsocket(cfg.ServerURL)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	manager := session.NewManager(tr, kv, session.Config{
		TypingTimeout:      cfg.TypingTimeout,
		ReconnectAttempts:  cfg.Reconnect.Attempts,
		ReconnectBaseDelay: cfg.Reconnect.BaseDelay,
		ReconnectMaxDelay:  cfg.Reconnect.MaxDelay,
		Registerer:         registry,
	})

	return &app{cfg: cfg, kv: kv, manager: manager, registry: registry}, nil
}

// close stops the manager and releases the store.
func (a *app) close() {
	a.manager.Close()

	if err := a.kv.Close(); err != nil {
		logx.Error(err, "Failed to close store")
	}
}
