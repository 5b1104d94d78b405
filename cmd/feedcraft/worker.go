package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"feedcraft/internal/queue"
)

func workerCmd() *cobra.Command {
	var attempts int
	var poll time.Duration
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run deferred fan-out jobs from the redis queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(attempts, poll)
		},
	}
	cmd.Flags().IntVar(&attempts, "max-attempts", 3, "Attempts before a job is buried")
	cmd.Flags().DurationVar(&poll, "poll", 5*time.Second, "Blocking dequeue timeout")
	return cmd
}

func runWorker(attempts int, poll time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if a.Queue == nil {
		return fmt.Errorf("worker requires redis.enabled")
	}
	if err := a.ServeMetrics(); err != nil {
		return err
	}

	a.Logger.Info("worker started", slog.String("queue", a.Queue.Key()))
	w := queue.NewWorker(a.Queue, a.Dispatcher, queue.WorkerOptions{
		MaxAttempts: attempts,
		Poll:        poll,
		Logger:      a.Logger,
	})
	if err := w.Run(ctx); err != nil {
		return err
	}
	a.Logger.Info("worker stopped")
	return nil
}
