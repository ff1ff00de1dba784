package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatclient/internal/handler"
	"chatclient/internal/pkg/logx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session to a browser UI over HTTP and WebSocket",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	a.manager.Start(ctx)

	hub := handler.NewStateHub(a.manager)
	go hub.Run(ctx)

	router := handler.Router(ctx, &handler.AppDeps{
		Session:  a.manager,
		Config:   a.cfg,
		Gatherer: a.registry,
	}, hub)

	server := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logx.Info(fmt.Sprintf("Chat client bridge listening on http://localhost%s", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("bridge server failed: %w", err)
		}
	case <-ctx.Done():
		logx.Info("Received shutdown signal. Starting graceful shutdown...")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Bridge forced to shutdown")
	}

	logx.Info("Bridge gracefully stopped.")
	return nil
}
