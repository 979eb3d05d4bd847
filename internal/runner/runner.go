// Package runner runs external tools and streams their output into the logger.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/scanman/internal/common"
)

// ErrToolNotFound is returned when the executable cannot be located or started.
var ErrToolNotFound = errors.New("tool not found")

// DefaultTailLines is how many trailing output lines are kept for diagnostics.
const DefaultTailLines = 40

// Command is one external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string // working directory; empty means the current one
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result describes a finished invocation.
type Result struct {
	ExitCode int
	Duration time.Duration
	Tail     []string // last output lines across both streams, in arrival order
}

// ExitError is returned when the tool ran but exited non-zero.
type ExitError struct {
	Name string
	Code int
	Tail []string
}

func (e *ExitError) Error() string {
	if len(e.Tail) == 0 {
		return fmt.Sprintf("%s exited with status %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Name, e.Code, e.Tail[len(e.Tail)-1])
}

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec. stdout and stderr are drained by two
// goroutines while the process runs; both are joined before the exit status is read.
type ExecRunner struct {
	logger    *slog.Logger
	tailLines int
}

func New(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger, tailLines: DefaultTailLines}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	start := time.Now()
	res := Result{ExitCode: -1}
	logger := r.logger
	if runID := common.RunIDFromContext(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	logger.Debug("running command", "cmd_line", c.String(), "dir", c.Dir)

	if c.Dir != "" {
		if st, err := os.Stat(c.Dir); err != nil {
			return res, fmt.Errorf("working directory: %w", err)
		} else if !st.IsDir() {
			return res, fmt.Errorf("working directory %s is not a directory", c.Dir)
		}
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return res, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return res, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			logger.Error("tool not found", "cmd", c.Name, "error", err)
			return res, fmt.Errorf("%w: %s: %v", ErrToolNotFound, c.Name, err)
		}
		return res, fmt.Errorf("start %s: %w", c.Name, err)
	}

	tail := newTailBuffer(r.tailLines)
	var g errgroup.Group
	g.Go(func() error { return drain(logger, stdout, c.Name, "stdout", tail) })
	g.Go(func() error { return drain(logger, stderr, c.Name, "stderr", tail) })
	drainErr := g.Wait()
	waitErr := cmd.Wait()

	res.Duration = time.Since(start)
	res.Tail = tail.lines()
	if drainErr != nil {
		logger.Warn("reading command output failed", "cmd", c.Name, "error", drainErr)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			logger.Error("exec failed",
				"cmd", c.Name,
				"exit_code", res.ExitCode,
				"duration_ms", res.Duration.Milliseconds(),
				"output_tail", strings.Join(res.Tail, "\n"),
			)
			return res, &ExitError{Name: c.Name, Code: res.ExitCode, Tail: res.Tail}
		}
		return res, fmt.Errorf("wait %s: %w", c.Name, waitErr)
	}

	res.ExitCode = 0
	logger.Debug("exec ok",
		"cmd", c.Name,
		"args", strings.Join(c.Args, " "),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// drain forwards every line of one stream to the logger. It reads until EOF
// regardless of line length so the child never blocks on a full pipe.
func drain(logger *slog.Logger, rd io.Reader, name, stream string, tail *tailBuffer) error {
	br := bufio.NewReader(rd)
	for {
		line, err := br.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			logger.Debug("tool output", "tool", name, "stream", stream, "line", line)
			tail.add(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%s: %w", stream, err)
		}
	}
}

type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []string
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = DefaultTailLines
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
}

func (t *tailBuffer) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.buf...)
}

// IsToolNotFound reports whether err means the executable was missing.
func IsToolNotFound(err error) bool {
	return errors.Is(err, ErrToolNotFound)
}

// ExitCode extracts the exit status from err, or -1 when err is not an ExitError.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}
