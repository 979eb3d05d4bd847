// Package ocr turns a combined image PDF into a text-searchable PDF using an
// external OCR post-processor (ocrmypdf by default).
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joseph-ayodele/scanman/internal/runner"
)

// ErrNoOutput is returned when the tool exits cleanly but the final PDF is missing or empty.
var ErrNoOutput = errors.New("ocr produced no output")

type Config struct {
	Tool string // binary name or absolute path; if empty -> "ocrmypdf"

	RotatePages          bool
	RotatePagesThreshold float64
	Deskew               bool
	Clean                bool
	Language             string // tesseract language(s), e.g. "eng+deu"; empty = tool default
}

// DefaultConfig returns the fixed processing options: auto-rotate with
// confidence threshold 13, deskew and clean.
func DefaultConfig() Config {
	return Config{
		Tool:                 "ocrmypdf",
		RotatePages:          true,
		RotatePagesThreshold: 13,
		Deskew:               true,
		Clean:                true,
	}
}

type Producer struct {
	cfg    Config
	runner runner.Runner
	logger *slog.Logger
}

func NewProducer(cfg Config, r runner.Runner, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tool == "" {
		cfg.Tool = "ocrmypdf"
	}
	return &Producer{cfg: cfg, runner: r, logger: logger}
}

// Args returns the OCR tool arguments for one input/output pair.
func (p *Producer) Args(input, output string) []string {
	var args []string
	if p.cfg.RotatePages {
		args = append(args, "--rotate-pages",
			"--rotate-pages-threshold", strconv.FormatFloat(p.cfg.RotatePagesThreshold, 'f', -1, 64))
	}
	if p.cfg.Deskew {
		args = append(args, "--deskew")
	}
	if p.cfg.Clean {
		args = append(args, "--clean")
	}
	if p.cfg.Language != "" {
		args = append(args, "-l", p.cfg.Language)
	}
	return append(args, input, output)
}

// MakeSearchable writes outputPDF from inputPDF. The final file is written in
// place by the tool; there is no temp-file-and-rename step.
func (p *Producer) MakeSearchable(ctx context.Context, inputPDF, outputPDF string) error {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(outputPDF), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	cmd := runner.Command{Name: p.cfg.Tool, Args: p.Args(inputPDF, outputPDF)}
	p.logger.Debug("ocr command", "cmd_line", cmd.String())
	if _, err := p.runner.Run(ctx, cmd); err != nil {
		p.logger.Error("ocr failed", "input", inputPDF, "error", err)
		return fmt.Errorf("%s: %w", p.cfg.Tool, err)
	}

	st, err := os.Stat(outputPDF)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoOutput, err)
	}
	if st.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrNoOutput, outputPDF)
	}

	p.logger.Debug("ocr ok",
		"input", inputPDF,
		"output", outputPDF,
		"bytes", st.Size(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
