package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/scanman/internal/repository"
)

const SheetName = "Batch Runs"

var Headers = []string{
	"Started (UTC)",
	"Finished (UTC)",
	"Batch",
	"Status",
	"Pages",
	"Duration (s)",
	"Output PDF",
	"Error",
	"Cycle ID",
	"Run ID",
	"Attempts",
}

// Service produces XLSX bytes from the batch run history.
type Service struct {
	runsRepo repository.BatchRunRepository
	logger   *slog.Logger
}

func NewService(repo repository.BatchRunRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runsRepo: repo, logger: logger}
}

// ExportRunsXLSX returns an XLSX workbook (as bytes) for the given date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all runs.
func (s *Service) ExportRunsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	fromDate, toExclusive := window(from, to, time.Now())

	runs, err := s.runsRepo.ListRuns(ctx, fromDate, toExclusive, 0)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	row := 2
	for _, r := range runs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}

		write(1, r.StartedAt.Format(time.DateTime))
		if r.FinishedAt != nil {
			write(2, r.FinishedAt.Format(time.DateTime))
			write(6, r.Duration().Round(time.Millisecond).Seconds())
		}
		write(3, r.BatchName)
		write(4, r.Status)
		write(5, r.PageCount)
		if r.OutputPath != nil {
			write(7, *r.OutputPath)
		}
		if r.ErrorMessage != nil {
			write(8, truncate(*r.ErrorMessage, 240))
		}
		write(9, r.CycleID)
		write(10, r.ID.String())
		write(11, r.Attempts)
		row++
	}

	_ = f.SetColWidth(SheetName, "A", "B", 20) // timestamps
	_ = f.SetColWidth(SheetName, "C", "C", 28)
	_ = f.SetColWidth(SheetName, "D", "F", 12)
	_ = f.SetColWidth(SheetName, "G", "H", 60)
	_ = f.SetColWidth(SheetName, "I", "J", 38)
	_ = f.SetColWidth(SheetName, "K", "K", 10)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export xlsx ok",
		"rows", len(runs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// window turns inclusive calendar dates into a [from, to) range in UTC.
func window(from, to *time.Time, now time.Time) (*time.Time, *time.Time) {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	var fromDate, toExclusive *time.Time
	if from != nil {
		f := day(*from)
		fromDate = &f
	}
	if to != nil {
		t := day(*to).AddDate(0, 0, 1)
		toExclusive = &t
	} else if from != nil {
		t := day(now.UTC()).AddDate(0, 0, 1)
		toExclusive = &t
	}
	return fromDate, toExclusive
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence,
// marking the cut with an ellipsis when there is room for one.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	const ellipsis = "…"
	cut, tail := n, ""
	if n > len(ellipsis) {
		cut, tail = n-len(ellipsis), ellipsis
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + tail
}
