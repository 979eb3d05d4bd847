package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/scanman/internal/common"
	"github.com/joseph-ayodele/scanman/internal/export"
	repo "github.com/joseph-ayodele/scanman/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dsn     = flag.String("dsn", "", "history database (defaults to HISTORY_DSN)")
		out     = flag.String("out", "batch_runs.xlsx", "output XLSX file path")
		fromStr = flag.String("from", "", "from date YYYY-MM-DD")
		toStr   = flag.String("to", "", "to date YYYY-MM-DD")
	)
	flag.Parse()

	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if *dsn != "" {
		cfg.History.DSN = *dsn
	}
	if cfg.History.DSN == "" {
		printError("Error: --dsn or HISTORY_DSN is required\n")
		os.Exit(1)
	}

	from, err := parseDate(*fromStr)
	if err != nil {
		printError("Error: invalid --from date format, use YYYY-MM-DD: %v\n", err)
		os.Exit(1)
	}
	to, err := parseDate(*toStr)
	if err != nil {
		printError("Error: invalid --to date format, use YYYY-MM-DD: %v\n", err)
		os.Exit(1)
	}

	logger := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	ctx := context.Background()

	db, err := repo.Open(ctx, repo.Config{DSN: cfg.History.DSN, DialTimeout: cfg.History.DialTimeout}, logger)
	if err != nil {
		logger.Error("failed to open history database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)

	svc := export.NewService(repo.NewBatchRunRepository(db, logger), logger)
	data, err := svc.ExportRunsXLSX(ctx, from, to)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("failed to write export", "path", *out, "error", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
