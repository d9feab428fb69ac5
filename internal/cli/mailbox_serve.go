package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"smart_mailbox/adapter/out/messaging"
	"smart_mailbox/core/domain"
	"smart_mailbox/infra/database"
	"smart_mailbox/internal/bootstrap"
	"smart_mailbox/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the batch runner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := deps.Runner.Start(); err != nil {
				return fmt.Errorf("start batch runner: %w", err)
			}
			defer deps.Runner.Stop()

			app := bootstrap.NewAPI(deps)
			if port == "" {
				port = a.cfg.Port
			}

			go func() {
				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
				<-sigChan

				logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
				if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
					logger.Error("Error shutting down: %v", err)
				}
			}()

			addr := ":" + port
			logger.Info("Starting API server on %s", addr)
			return app.Listen(addr)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT)")
	return cmd
}

// newWatchCmd follows batch progress published to Redis by another process.
func newWatchCmd(a *app) *cobra.Command {
	var batchID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow batch progress from the Redis stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is not set")
			}
			client, err := database.NewRedis(a.cfg.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			if batchID != "" {
				if p, err := messaging.NewRedisProgress(client).BatchStatus(ctx, batchID); err == nil && p != nil {
					fmt.Fprintf(w, "batch %s: [%d/%d] %s\n", batchID, p.Index, p.Total, p.Status)
					if p.Done {
						return nil
					}
				}
			}

			watcher := messaging.NewWatcher(client, logger.Zerolog())
			err = watcher.Run(ctx, func(p *domain.Progress) bool {
				if batchID != "" && p.BatchID != batchID {
					return true
				}
				fmt.Fprintf(w, "%s [%d/%d] %s\n", shortID(p.BatchID), p.Index, p.Total, p.Status)
				return !(p.Done && batchID != "")
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&batchID, "batch", "", "only this batch; exit when it finishes")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
