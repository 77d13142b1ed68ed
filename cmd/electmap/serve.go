package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/electmap/internal/election"
	"github.com/verte-zerg/electmap/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveListen, "listen", server.DefaultListen, "listen address")
	cmd.Flags().BoolVar(&swingLockTotal, "lock-total", defaultLockTotal, "default lock_total for swing requests")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc, s, closeFn, err := openService(cmd, election.WithLogger(logger))
	if err != nil {
		return err
	}
	defer closeFn()

	api := server.New(svc, server.Options{
		Title:       s.title,
		StrokeWidth: s.strokeWidth,
		LockTotal:   s.lockTotal,
		Logger:      logger,
	})
	httpServer := &http.Server{
		Addr:              s.listen,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", s.listen, "workspace", s.workspaceDir)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	logger.Info("server closed")
	return nil
}
