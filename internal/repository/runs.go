package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/scanman/constants"
	"github.com/joseph-ayodele/scanman/internal/common"
	"github.com/joseph-ayodele/scanman/internal/entity"
)

// RunOutcome is what a finished batch run records.
type RunOutcome struct {
	Status       constants.BatchStatus
	ErrorMessage string
	PageCount    int
	OutputPath   string
	FinishedAt   time.Time
}

type BatchRunRepository interface {
	Start(ctx context.Context, run *entity.BatchRun) error
	Finish(ctx context.Context, id uuid.UUID, out RunOutcome) error
	// RecordSkip stores a validation skip. When the batch's latest run is a
	// skip for the same reason, that row is bumped instead of adding a new one.
	RecordSkip(ctx context.Context, run *entity.BatchRun, reason string) (collapsed bool, err error)
	// ListRuns returns runs started in [from, to), newest first. Nil bounds are open; limit <= 0 means no limit.
	ListRuns(ctx context.Context, from, to *time.Time, limit int) ([]entity.BatchRun, error)
}

type batchRunRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewBatchRunRepository(db *DB, logger *slog.Logger) BatchRunRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &batchRunRepo{db: db, logger: logger}
}

var runColumns = []string{
	"id", "cycle_id", "batch_name", "batch_path", "status",
	"error_message", "page_count", "attempts", "output_path", "started_at_ms", "finished_at_ms",
}

func (r *batchRunRepo) Start(ctx context.Context, run *entity.BatchRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = string(constants.BatchStatusDiscovered)
	}

	query, args := entsql.Dialect(r.db.Dialect).
		Insert(tableBatchRuns).
		Columns("id", "cycle_id", "batch_name", "batch_path", "status", "page_count", "attempts", "started_at_ms").
		Values(run.ID.String(), run.CycleID, run.BatchName, run.BatchPath, run.Status, 0, 1, run.StartedAt.UnixMilli()).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("batch_run start failed", "batch", run.BatchName, "err", err)
		return fmt.Errorf("insert batch run: %w: %w", common.ErrDatabase, err)
	}
	r.logger.Debug("batch_run started", "run_id", run.ID, "batch", run.BatchName)
	return nil
}

func (r *batchRunRepo) Finish(ctx context.Context, id uuid.UUID, out RunOutcome) error {
	if !out.Status.Terminal() {
		return fmt.Errorf("%w: status %q is not terminal", common.ErrInvalidInput, out.Status)
	}
	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now().UTC()
	}
	upd := entsql.Dialect(r.db.Dialect).
		Update(tableBatchRuns).
		Set("status", string(out.Status)).
		Set("page_count", out.PageCount).
		Set("finished_at_ms", out.FinishedAt.UnixMilli())
	if out.ErrorMessage != "" {
		upd.Set("error_message", out.ErrorMessage)
	}
	if out.OutputPath != "" {
		upd.Set("output_path", out.OutputPath)
	}
	query, args := upd.Where(entsql.EQ("id", id.String())).Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("batch_run finish failed", "run_id", id, "err", err)
		return fmt.Errorf("update batch run: %w: %w", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("batch run %s not found", id)
	}
	r.logger.Debug("batch_run finished", "run_id", id, "status", out.Status)
	return nil
}

func (r *batchRunRepo) RecordSkip(ctx context.Context, run *entity.BatchRun, reason string) (bool, error) {
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	b := entsql.Dialect(r.db.Dialect)

	query, args := b.Select("id", "status", "error_message").
		From(entsql.Table(tableBatchRuns)).
		Where(entsql.EQ("batch_name", run.BatchName)).
		OrderBy(entsql.Desc("started_at_ms")).
		Limit(1).
		Query()
	var (
		lastID     string
		lastStatus string
		lastReason sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&lastID, &lastStatus, &lastReason)
	switch {
	case err == nil && lastStatus == string(constants.BatchStatusSkipped) && lastReason.String == reason:
		id, err := uuid.Parse(lastID)
		if err != nil {
			return false, fmt.Errorf("batch run id %q: %w", lastID, err)
		}
		query, args := b.Update(tableBatchRuns).
			Add("attempts", 1).
			Set("cycle_id", run.CycleID).
			Set("finished_at_ms", now.UnixMilli()).
			Where(entsql.EQ("id", lastID)).
			Query()
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return false, fmt.Errorf("update batch run: %w: %w", common.ErrDatabase, err)
		}
		run.ID = id
		r.logger.Debug("batch_run skip repeated", "run_id", id, "batch", run.BatchName)
		return true, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("query latest batch run: %w: %w", common.ErrDatabase, err)
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = string(constants.BatchStatusSkipped)
	query, args = b.Insert(tableBatchRuns).
		Columns("id", "cycle_id", "batch_name", "batch_path", "status", "error_message",
			"page_count", "attempts", "started_at_ms", "finished_at_ms").
		Values(run.ID.String(), run.CycleID, run.BatchName, run.BatchPath, run.Status, reason,
			0, 1, run.StartedAt.UnixMilli(), now.UnixMilli()).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("insert batch run: %w: %w", common.ErrDatabase, err)
	}
	r.logger.Debug("batch_run skipped", "run_id", run.ID, "batch", run.BatchName)
	return false, nil
}

func (r *batchRunRepo) ListRuns(ctx context.Context, from, to *time.Time, limit int) ([]entity.BatchRun, error) {
	sel := entsql.Dialect(r.db.Dialect).
		Select(runColumns...).
		From(entsql.Table(tableBatchRuns))

	var preds []*entsql.Predicate
	if from != nil {
		preds = append(preds, entsql.GTE("started_at_ms", from.UnixMilli()))
	}
	if to != nil {
		preds = append(preds, entsql.LT("started_at_ms", to.UnixMilli()))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc("started_at_ms"))
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("list batch runs failed", "err", err)
		return nil, fmt.Errorf("query batch runs: %w: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.BatchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(rows *sql.Rows) (entity.BatchRun, error) {
	var (
		run        entity.BatchRun
		id         string
		errMsg     sql.NullString
		outputPath sql.NullString
		startedMs  int64
		finishedMs sql.NullInt64
	)
	if err := rows.Scan(&id, &run.CycleID, &run.BatchName, &run.BatchPath, &run.Status,
		&errMsg, &run.PageCount, &run.Attempts, &outputPath, &startedMs, &finishedMs); err != nil {
		return run, fmt.Errorf("scan batch run: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return run, fmt.Errorf("batch run id %q: %w", id, err)
	}
	run.ID = parsed
	run.StartedAt = time.UnixMilli(startedMs).UTC()
	if errMsg.Valid {
		run.ErrorMessage = &errMsg.String
	}
	if outputPath.Valid {
		run.OutputPath = &outputPath.String
	}
	if finishedMs.Valid {
		t := time.UnixMilli(finishedMs.Int64).UTC()
		run.FinishedAt = &t
	}
	return run, nil
}
