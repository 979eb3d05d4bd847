package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/scanman/constants"
	"github.com/joseph-ayodele/scanman/internal/assemble"
	"github.com/joseph-ayodele/scanman/internal/common"
	"github.com/joseph-ayodele/scanman/internal/entity"
	"github.com/joseph-ayodele/scanman/internal/integrity"
	"github.com/joseph-ayodele/scanman/internal/manifest"
	"github.com/joseph-ayodele/scanman/internal/repository"
)

// Outcome is the result of one ProcessBatch call.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeSkipped
	OutcomeDelivered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDelivered:
		return "delivered"
	default:
		return "failed"
	}
}

type BatchValidator interface {
	Validate(ctx context.Context, batchPath, manifestName string) integrity.Result
}

type PDFAssembler interface {
	Combine(ctx context.Context, batchPath string, files []string, combinedName string) (assemble.Combined, error)
}

type SearchableProducer interface {
	MakeSearchable(ctx context.Context, inputPDF, outputPDF string) error
}

type Options struct {
	CompletedDir string
	ManifestName string
	DeleteFiles  bool
}

// Processor drives a single batch from validation to delivery. It keeps no
// state between calls; what to do next is derived from the filesystem.
type Processor struct {
	opts      Options
	validator BatchValidator
	assembler PDFAssembler
	producer  SearchableProducer
	runs      repository.BatchRunRepository // optional
	logger    *slog.Logger
}

func NewProcessor(
	opts Options,
	validator BatchValidator,
	assembler PDFAssembler,
	producer SearchableProducer,
	runs repository.BatchRunRepository,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ManifestName == "" {
		opts.ManifestName = constants.DefaultManifestFilename
	}
	return &Processor{
		opts:      opts,
		validator: validator,
		assembler: assembler,
		producer:  producer,
		runs:      runs,
		logger:    logger,
	}
}

// ProcessBatch validates, assembles, OCRs and delivers the batch at batchPath.
// A batch that fails validation is skipped without side effects and a nil
// error; every other failure is returned and leaves the batch directory in place.
func (p *Processor) ProcessBatch(ctx context.Context, batchPath string) (Outcome, error) {
	start := time.Now()
	name := ScanName(batchPath)
	logger := p.logger.With("batch", name)
	if cycleID := common.CycleIDFromContext(ctx); cycleID != "" {
		logger = logger.With("cycle_id", cycleID)
	}

	logger.Info("processing batch", "path", batchPath)

	// 1) integrity gate
	res := p.validator.Validate(ctx, batchPath, p.opts.ManifestName)
	if !res.Valid() {
		logger.Error("skipping batch: files could not be verified; will retry next cycle",
			"path", batchPath, "status", res.Status.String(), "reason", res.Reason)
		p.recordSkip(ctx, logger, name, batchPath, start, res.Reason)
		return OutcomeSkipped, nil
	}

	runID := p.startRun(ctx, logger, name, batchPath, start)
	if runID != uuid.Nil {
		ctx = common.WithRunID(ctx, runID.String())
		logger = logger.With("run_id", runID.String())
	}
	logger.Debug("batch validated")

	// 2) manifest + combined pdf
	entries, err := manifest.Read(batchPath, p.opts.ManifestName)
	if err != nil {
		return p.fail(ctx, logger, runID, repository.RunOutcome{}, fmt.Errorf("manifest %s: %w", name, err))
	}
	combined, err := p.assembler.Combine(ctx, batchPath, manifest.Filenames(entries), CombinedFilename(name))
	if err != nil {
		return p.fail(ctx, logger, runID, repository.RunOutcome{}, fmt.Errorf("assemble %s: %w", name, err))
	}
	logger.Debug("combined pdf written", "path", combined.Path, "pages", combined.Pages)

	// 3) searchable pdf into completed dir
	final := OutputPath(p.opts.CompletedDir, name)
	if err := p.producer.MakeSearchable(ctx, combined.Path, final); err != nil {
		return p.fail(ctx, logger, runID, repository.RunOutcome{PageCount: combined.Pages},
			fmt.Errorf("ocr %s: %w", name, err))
	}
	delivered := repository.RunOutcome{
		Status:     constants.BatchStatusDelivered,
		PageCount:  combined.Pages,
		OutputPath: final,
	}

	// 4) cleanup, only once the final pdf exists
	if p.opts.DeleteFiles {
		if err := removeBatch(batchPath, final); err != nil {
			// final pdf stays; the batch is reprocessed next cycle
			return p.fail(ctx, logger, runID, delivered, fmt.Errorf("cleanup %s: %w", name, err))
		}
		delivered.Status = constants.BatchStatusCleaned
		logger.Debug("batch directory removed", "path", batchPath)
	}

	p.finishRun(ctx, logger, runID, delivered)
	logger.Info("batch delivered",
		"output", final,
		"pages", combined.Pages,
		"deleted", p.opts.DeleteFiles,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return OutcomeDelivered, nil
}

func removeBatch(batchPath, final string) error {
	st, err := os.Stat(final)
	if err != nil {
		return fmt.Errorf("final pdf missing: %w", err)
	}
	if st.Size() == 0 {
		return errors.New("final pdf is empty")
	}
	return os.RemoveAll(batchPath)
}

func (p *Processor) fail(ctx context.Context, logger *slog.Logger, runID uuid.UUID, out repository.RunOutcome, err error) (Outcome, error) {
	out.Status = constants.BatchStatusFailed
	out.ErrorMessage = err.Error()
	p.finishRun(ctx, logger, runID, out)
	return OutcomeFailed, err
}

func (p *Processor) newRun(ctx context.Context, name, batchPath string, started time.Time) *entity.BatchRun {
	return &entity.BatchRun{
		ID:        uuid.New(),
		CycleID:   common.CycleIDFromContext(ctx),
		BatchName: name,
		BatchPath: batchPath,
		Status:    string(constants.BatchStatusValidated),
		StartedAt: started.UTC(),
	}
}

// recordSkip stores a validation skip; a batch that keeps failing for the
// same reason updates one row instead of adding one per cycle.
func (p *Processor) recordSkip(ctx context.Context, logger *slog.Logger, name, batchPath string, started time.Time, reason string) {
	if p.runs == nil {
		return
	}
	run := p.newRun(ctx, name, batchPath, started)
	collapsed, err := p.runs.RecordSkip(ctx, run, reason)
	if err != nil {
		logger.Warn("could not record batch skip", "error", err)
		return
	}
	logger.Debug("batch skip recorded", "run_id", run.ID, "repeated", collapsed)
}

func (p *Processor) startRun(ctx context.Context, logger *slog.Logger, name, batchPath string, started time.Time) uuid.UUID {
	if p.runs == nil {
		return uuid.Nil
	}
	run := p.newRun(ctx, name, batchPath, started)
	if err := p.runs.Start(ctx, run); err != nil {
		logger.Warn("could not record batch run start", "error", err)
		return uuid.Nil
	}
	return run.ID
}

func (p *Processor) finishRun(ctx context.Context, logger *slog.Logger, runID uuid.UUID, out repository.RunOutcome) {
	if p.runs == nil || runID == uuid.Nil {
		return
	}
	if err := p.runs.Finish(ctx, runID, out); err != nil {
		logger.Warn("could not record batch run result", "status", out.Status, "error", err)
	}
}
