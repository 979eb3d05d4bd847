package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joseph-ayodele/scanman/constants"
	"github.com/joseph-ayodele/scanman/internal/common"
	"github.com/joseph-ayodele/scanman/internal/core"
)

type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batchPath string) (core.Outcome, error)
}

type LoopConfig struct {
	IntakeDir    string
	ManifestName string
	PollInterval time.Duration
}

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	CycleID    string
	Discovered int
	Delivered  int
	Skipped    int
	Failed     int
	Duration   time.Duration
}

// Loop polls the intake directory and hands each batch to the processor, one
// at a time, in discovery order.
type Loop struct {
	cfg    LoopConfig
	proc   BatchProcessor
	wake   <-chan struct{}
	logger *slog.Logger
}

func NewLoop(cfg LoopConfig, proc BatchProcessor, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ManifestName == "" {
		cfg.ManifestName = constants.DefaultManifestFilename
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Second
	}
	return &Loop{cfg: cfg, proc: proc, logger: logger}
}

// WithWake lets a signal on ch end the poll sleep early.
func (l *Loop) WithWake(ch <-chan struct{}) *Loop {
	l.wake = ch
	return l
}

// Run processes cycles until ctx is cancelled. Cancellation is only noticed
// between cycles; a cycle that has started always finishes.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("watch loop started",
		"intake_dir", l.cfg.IntakeDir,
		"poll_interval", l.cfg.PollInterval.String(),
		"manifest", l.cfg.ManifestName,
	)
	for {
		if ctx.Err() != nil {
			break
		}
		l.RunCycle(ctx)
		if !l.sleep(ctx) {
			break
		}
	}
	l.logger.Info("watch loop stopped")
	return nil
}

// RunCycle discovers and processes every batch currently in the intake directory.
func (l *Loop) RunCycle(ctx context.Context) CycleStats {
	start := time.Now()
	stats := CycleStats{CycleID: ulid.Make().String()}
	logger := l.logger.With("cycle_id", stats.CycleID)

	// batches run to completion even when shutdown is requested mid-cycle
	batchCtx := common.WithCycleID(context.WithoutCancel(ctx), stats.CycleID)

	batches, err := Discover(l.cfg.IntakeDir, l.cfg.ManifestName)
	if err != nil {
		logger.Error("discovery failed", "error", err)
		stats.Duration = time.Since(start)
		return stats
	}
	stats.Discovered = len(batches)
	if len(batches) > 0 {
		logger.Info("batches found", "count", len(batches))
	}

	for _, batch := range batches {
		outcome, err := l.processOne(batchCtx, batch)
		switch {
		case err != nil:
			stats.Failed++
			logger.Error("batch failed", "path", batch, "error", err)
		case outcome == core.OutcomeDelivered:
			stats.Delivered++
		case outcome == core.OutcomeSkipped:
			stats.Skipped++
		default:
			stats.Failed++
		}
	}

	stats.Duration = time.Since(start)
	if stats.Discovered > 0 {
		logger.Info("cycle complete",
			"discovered", stats.Discovered,
			"delivered", stats.Delivered,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
			"duration_ms", stats.Duration.Milliseconds(),
		)
	}
	return stats
}

func (l *Loop) processOne(ctx context.Context, batch string) (outcome core.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic while processing batch", "path", batch, "panic", r, "stack", string(debug.Stack()))
			outcome, err = core.OutcomeFailed, fmt.Errorf("panic: %v", r)
		}
	}()
	return l.proc.ProcessBatch(ctx, batch)
}

// sleep waits one poll interval. It returns false when ctx is cancelled.
func (l *Loop) sleep(ctx context.Context) bool {
	timer := time.NewTimer(l.cfg.PollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case _, ok := <-l.wake:
			if !ok {
				// watcher gone; fall back to plain polling
				l.wake = nil
				continue
			}
			l.logger.Debug("woken early by filesystem event")
			return true
		}
	}
}
