package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/scanman/constants"
	"github.com/joseph-ayodele/scanman/internal/common"
	"github.com/joseph-ayodele/scanman/internal/entity"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{DSN: filepath.Join(t.TempDir(), "history", "runs.db")}, quietLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { Close(db, quietLogger()) })
	return db
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	for i := 0; i < 2; i++ {
		db, err := Open(context.Background(), Config{DSN: "sqlite:" + path}, quietLogger())
		if err != nil {
			t.Fatalf("Open() #%d error = %v", i, err)
		}
		if err := HealthCheck(context.Background(), db, time.Second, quietLogger()); err != nil {
			t.Fatalf("HealthCheck() error = %v", err)
		}
		Close(db, quietLogger())
	}
}

func TestOpenEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), Config{}, quietLogger()); err == nil {
		t.Fatal("Open() error = nil, want error for empty dsn")
	}
}

func TestIsPostgresDSN(t *testing.T) {
	cases := map[string]bool{
		"postgres://u:p@localhost/scanman":   true,
		"postgresql://localhost/scanman":     true,
		"/var/lib/scanman/history.db":        false,
		"sqlite:/var/lib/scanman/history.db": false,
	}
	for dsn, want := range cases {
		if got := IsPostgresDSN(dsn); got != want {
			t.Errorf("IsPostgresDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestBatchRunLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRunRepository(openTestDB(t), quietLogger())

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	run := &entity.BatchRun{CycleID: "01HXCYCLE", BatchName: "scan001", BatchPath: "/intake/scan001", StartedAt: started}
	if err := repo.Start(ctx, run); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if run.ID == uuid.Nil {
		t.Fatal("Start() did not assign an id")
	}

	finished := started.Add(90 * time.Second)
	if err := repo.Finish(ctx, run.ID, RunOutcome{
		Status:     constants.BatchStatusDelivered,
		PageCount:  2,
		OutputPath: "/completed/scan001.pdf",
		FinishedAt: finished,
	}); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	runs, err := repo.ListRuns(ctx, nil, nil, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns() len = %d, want 1", len(runs))
	}
	got := runs[0]
	if got.ID != run.ID || got.Status != "DELIVERED" || got.PageCount != 2 {
		t.Fatalf("run = %+v", got)
	}
	if got.OutputPath == nil || *got.OutputPath != "/completed/scan001.pdf" {
		t.Fatalf("output path = %v", got.OutputPath)
	}
	if got.ErrorMessage != nil {
		t.Fatalf("error message = %q, want nil", *got.ErrorMessage)
	}
	if !got.StartedAt.Equal(started) || got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Fatalf("times = %v .. %v", got.StartedAt, got.FinishedAt)
	}
	if got.Duration() != 90*time.Second {
		t.Fatalf("Duration() = %v", got.Duration())
	}
}

func TestFinishUnknownRun(t *testing.T) {
	repo := NewBatchRunRepository(openTestDB(t), quietLogger())
	if err := repo.Finish(context.Background(), uuid.New(), RunOutcome{Status: constants.BatchStatusFailed}); err == nil {
		t.Fatal("Finish() error = nil, want not found")
	}
}

func TestListRunsWindowAndLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRunRepository(openTestDB(t), quietLogger())

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		run := &entity.BatchRun{CycleID: "c", BatchName: "scan", BatchPath: "/intake/scan", StartedAt: base.Add(time.Duration(i) * 24 * time.Hour)}
		if err := repo.Start(ctx, run); err != nil {
			t.Fatal(err)
		}
		if err := repo.Finish(ctx, run.ID, RunOutcome{Status: constants.BatchStatusSkipped, ErrorMessage: "page1.jpg: FAILED"}); err != nil {
			t.Fatal(err)
		}
	}

	from := base.Add(24 * time.Hour)
	to := base.Add(4 * 24 * time.Hour)
	runs, err := repo.ListRuns(ctx, &from, &to, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("ListRuns() len = %d, want 3", len(runs))
	}
	if !runs[0].StartedAt.After(runs[2].StartedAt) {
		t.Fatal("ListRuns() not newest first")
	}
	if runs[0].ErrorMessage == nil || *runs[0].ErrorMessage != "page1.jpg: FAILED" {
		t.Fatalf("error message = %v", runs[0].ErrorMessage)
	}

	limited, err := repo.ListRuns(ctx, nil, nil, 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("ListRuns(limit 2) = %d, %v", len(limited), err)
	}
}

func TestFinishRejectsNonTerminalStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRunRepository(openTestDB(t), quietLogger())
	run := &entity.BatchRun{CycleID: "c", BatchName: "scan009", BatchPath: "/intake/scan009"}
	if err := repo.Start(ctx, run); err != nil {
		t.Fatal(err)
	}
	err := repo.Finish(ctx, run.ID, RunOutcome{Status: constants.BatchStatusCombined})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("Finish() error = %v, want ErrInvalidInput", err)
	}
}

func TestRecordSkipCollapsesRepeats(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRunRepository(openTestDB(t), quietLogger())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	skip := func(i int, reason string) (*entity.BatchRun, bool) {
		t.Helper()
		run := &entity.BatchRun{CycleID: "cycle", BatchName: "scan002", BatchPath: "/intake/scan002",
			StartedAt: base.Add(time.Duration(i) * 20 * time.Second)}
		collapsed, err := repo.RecordSkip(ctx, run, reason)
		if err != nil {
			t.Fatalf("RecordSkip() #%d error = %v", i, err)
		}
		return run, collapsed
	}

	first, collapsed := skip(0, "page1.jpg: FAILED")
	if collapsed {
		t.Fatal("first skip reported as repeated")
	}
	for i := 1; i < 4; i++ {
		run, collapsed := skip(i, "page1.jpg: FAILED")
		if !collapsed || run.ID != first.ID {
			t.Fatalf("skip #%d: collapsed=%v id=%s, want repeat of %s", i, collapsed, run.ID, first.ID)
		}
	}

	runs, err := repo.ListRuns(ctx, nil, nil, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns() len = %d, want 1 collapsed row", len(runs))
	}
	if runs[0].Attempts != 4 || runs[0].Status != "SKIPPED" || runs[0].FinishedAt == nil {
		t.Fatalf("run = %+v, want 4 attempts", runs[0])
	}

	// a different reason starts a new row
	if _, collapsed := skip(5, "page2.jpg: FAILED"); collapsed {
		t.Fatal("skip with a new reason collapsed into the old row")
	}
	if runs, _ := repo.ListRuns(ctx, nil, nil, 0); len(runs) != 2 {
		t.Fatalf("ListRuns() len = %d, want 2", len(runs))
	}
}

func TestRecordSkipAfterOtherStatusInserts(t *testing.T) {
	ctx := context.Background()
	repo := NewBatchRunRepository(openTestDB(t), quietLogger())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	failed := &entity.BatchRun{CycleID: "c1", BatchName: "scan003", BatchPath: "/intake/scan003", StartedAt: base}
	if err := repo.Start(ctx, failed); err != nil {
		t.Fatal(err)
	}
	if err := repo.Finish(ctx, failed.ID, RunOutcome{Status: constants.BatchStatusFailed, ErrorMessage: "x"}); err != nil {
		t.Fatal(err)
	}

	run := &entity.BatchRun{CycleID: "c2", BatchName: "scan003", BatchPath: "/intake/scan003", StartedAt: base.Add(time.Minute)}
	collapsed, err := repo.RecordSkip(ctx, run, "x")
	if err != nil || collapsed {
		t.Fatalf("RecordSkip() = %v, %v; want a new row", collapsed, err)
	}
	if run.ID == failed.ID {
		t.Fatal("skip reused the failed run's id")
	}
}
