package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaycrm/automation/pkg/workflow"
)

// Scheduler polls due time triggers on a fixed interval until stopped.
type Scheduler struct {
	id       string
	engine   *workflow.Engine
	logger   *slog.Logger
	interval time.Duration
}

func NewScheduler(id string, engine *workflow.Engine, logger *slog.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		id:       id,
		engine:   engine,
		logger:   logger.With("module", "scheduler"),
		interval: interval,
	}
}

// Start runs the polling loop until the context is cancelled or a
// termination signal arrives.
func (s *Scheduler) Start(ctx context.Context) {
	sCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.handleSignals(cancel)

	s.logger.InfoContext(sCtx, "Starting scheduler", "poll_interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sCtx.Done():
			s.logger.Info("Scheduler context cancelled, stopping...")

			return
		case <-ticker.C:
			s.tick(sCtx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	summary, err := s.engine.Triggers.ProcessDue(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to process due triggers", "error", err)

		return
	}

	if summary.Fired > 0 {
		s.logger.InfoContext(ctx, "Processed due triggers",
			"checked", summary.Checked,
			"fired", summary.Fired)
	}
}

func (s *Scheduler) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		s.logger.Info("Received signal, shutting down gracefully...", "signal", sig)
		cancel()
	}()
}
