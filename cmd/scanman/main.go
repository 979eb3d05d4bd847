package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/scanman/internal/assemble"
	"github.com/joseph-ayodele/scanman/internal/common"
	"github.com/joseph-ayodele/scanman/internal/core"
	"github.com/joseph-ayodele/scanman/internal/ingest"
	"github.com/joseph-ayodele/scanman/internal/integrity"
	"github.com/joseph-ayodele/scanman/internal/ocr"
	repo "github.com/joseph-ayodele/scanman/internal/repository"
	"github.com/joseph-ayodele/scanman/internal/runner"
)

func main() {
	cfg, err := common.LoadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		printError("scanman: %v\n", err)
		if common.IsConfigError(err) {
			printError("  required: INTAKE_DIR (existing directory), COMPLETED_DIR\n")
		}
		os.Exit(2)
	}

	logger := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("scanman exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *common.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Watch.CompletedDir, 0o755); err != nil {
		return common.WrapError(err, "create completed dir")
	}

	// Optional run history
	var runs repo.BatchRunRepository
	if cfg.History.DSN != "" {
		db, err := repo.Open(ctx, repo.Config{
			DSN:             cfg.History.DSN,
			MaxConns:        cfg.History.MaxConns,
			MinConns:        cfg.History.MinConns,
			MaxConnLifetime: cfg.History.MaxConnLifetime,
			MaxConnIdleTime: cfg.History.MaxConnIdleTime,
			DialTimeout:     cfg.History.DialTimeout,
		}, logger)
		if err != nil {
			return common.NewAppError(common.CodeHistory, "opening run history", err)
		}
		defer repo.Close(db, logger)
		if err := repo.HealthCheck(ctx, db, cfg.History.DialTimeout, logger); err != nil {
			return common.NewAppError(common.CodeHistory, "pinging run history", err)
		}
		runs = repo.NewBatchRunRepository(db, logger)
	}

	execRunner := runner.New(logger)
	validator := integrity.NewValidator(integrity.Config{Tool: cfg.Tools.Verify}, execRunner, logger)
	assembler := assemble.NewAssembler(assemble.Config{Tool: cfg.Tools.Assemble}, execRunner, logger)
	producer := ocr.NewProducer(ocr.Config{
		Tool:                 cfg.Tools.OCR,
		RotatePages:          cfg.OCR.RotatePages,
		RotatePagesThreshold: cfg.OCR.RotatePagesThreshold,
		Deskew:               cfg.OCR.Deskew,
		Clean:                cfg.OCR.Clean,
		Language:             cfg.OCR.Language,
	}, execRunner, logger)

	processor := core.NewProcessor(core.Options{
		CompletedDir: cfg.Watch.CompletedDir,
		ManifestName: cfg.Watch.ManifestFilename,
		DeleteFiles:  cfg.Watch.DeleteFiles,
	}, validator, assembler, producer, runs, logger)

	loop := ingest.NewLoop(ingest.LoopConfig{
		IntakeDir:    cfg.Watch.IntakeDir,
		ManifestName: cfg.Watch.ManifestFilename,
		PollInterval: cfg.Watch.PollInterval,
	}, processor, logger)

	if cfg.Watch.Notify {
		wake, _, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Root:         cfg.Watch.IntakeDir,
			ManifestName: cfg.Watch.ManifestFilename,
			Debounce:     cfg.Watch.NotifyDebounce,
		}, logger)
		if err != nil {
			// polling still works without notifications
			logger.Warn("filesystem notifications unavailable", "error", err)
		} else {
			loop.WithWake(wake)
		}
	}

	logger.Info("scanman starting",
		"intake_dir", cfg.Watch.IntakeDir,
		"completed_dir", cfg.Watch.CompletedDir,
		"delete_files", cfg.Watch.DeleteFiles,
		"notify", cfg.Watch.Notify,
		"history", cfg.History.DSN != "",
	)
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}
