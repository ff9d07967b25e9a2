package export

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Destination is a backup target for ledger exports.
type Destination interface {
	Write(ctx context.Context, exp *Export) error
}

// Scheduler runs periodic ledger backups to one or more destinations.
type Scheduler struct {
	generator    *Generator
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports the ledger to the given
// destinations at the specified interval.
func NewScheduler(g *Generator, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		generator:    g,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic backups. It runs an initial backup immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current backup (if any) to
// finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.backupOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.backupOnce(ctx)
		}
	}
}

func (s *Scheduler) backupOnce(ctx context.Context) {
	exp, err := s.generator.GenerateCSV(ctx)
	if err != nil {
		s.logger.Error("backup export failed", "err", err)
		return
	}
	if exp.RowCount == 0 {
		s.logger.Info("ledger empty, skipping backup")
		return
	}

	for i, dest := range s.destinations {
		if err := dest.Write(ctx, exp); err != nil {
			s.logger.Error("backup destination write failed", "destination", i, "err", err)
		}
	}

	s.logger.Info("backup completed",
		"destinations", len(s.destinations), "rows", exp.RowCount, "bytes", len(exp.Data))
}
