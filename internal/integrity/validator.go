// Package integrity checks a batch's page files against its manifest.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/scanman/internal/runner"
)

// Status is the variant of a validation Result.
type Status int

const (
	// StatusValid means every listed file matched its checksum.
	StatusValid Status = iota
	// StatusInvalid means the verification tool ran and rejected the batch.
	StatusInvalid
	// StatusToolError means the verification tool could not be run at all.
	StatusToolError
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusToolError:
		return "tool_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the tagged outcome of validating one batch.
type Result struct {
	Status Status
	Reason string // why the batch is Invalid, or what went wrong running the tool
}

// Valid reports whether processing may continue.
func (r Result) Valid() bool { return r.Status == StatusValid }

// Config selects the verification tool.
type Config struct {
	Tool      string // default "shasum"
	Algorithm string // passed as -a, default "1"
}

// Validator runs `<tool> -a <algorithm> -c <manifest>` inside the batch directory.
type Validator struct {
	cfg    Config
	runner runner.Runner
	logger *slog.Logger
}

func NewValidator(cfg Config, r runner.Runner, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tool == "" {
		cfg.Tool = "shasum"
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "1"
	}
	return &Validator{cfg: cfg, runner: r, logger: logger}
}

// Args returns the verification tool arguments for a manifest filename.
func (v *Validator) Args(manifestName string) []string {
	return []string{"-a", v.cfg.Algorithm, "-c", manifestName}
}

// Validate never returns an error: every failure is folded into the Result so
// callers branch on the variant.
func (v *Validator) Validate(ctx context.Context, batchPath, manifestName string) Result {
	v.logger.Info("validating batch", "path", batchPath)
	cmd := runner.Command{Name: v.cfg.Tool, Args: v.Args(manifestName), Dir: batchPath}
	v.logger.Debug("validation command", "cmd_line", cmd.String())

	_, err := v.runner.Run(ctx, cmd)
	if err == nil {
		return Result{Status: StatusValid}
	}

	var exitErr *runner.ExitError
	switch {
	case errors.As(err, &exitErr):
		reason := fmt.Sprintf("verification returned non-zero result (%d), files do not match manifest", exitErr.Code)
		if failed := failedFiles(exitErr.Tail); len(failed) > 0 {
			reason += ": " + strings.Join(failed, ", ")
		}
		return Result{Status: StatusInvalid, Reason: reason}
	case runner.IsToolNotFound(err):
		v.logger.Error("verification tool missing", "tool", v.cfg.Tool, "error", err)
		return Result{Status: StatusToolError, Reason: err.Error()}
	default:
		return Result{Status: StatusToolError, Reason: err.Error()}
	}
}

// failedFiles picks the "<file>: FAILED" lines shasum prints for mismatches.
func failedFiles(lines []string) []string {
	var out []string
	for _, ln := range lines {
		name, verdict, ok := strings.Cut(ln, ": ")
		if !ok {
			continue
		}
		if strings.HasPrefix(verdict, "FAILED") {
			out = append(out, name)
		}
	}
	return out
}
