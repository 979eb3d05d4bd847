// Package assemble concatenates a batch's page images into one PDF.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/joseph-ayodele/scanman/constants"
	"github.com/joseph-ayodele/scanman/internal/runner"
)

// ErrNoPages is returned when a batch lists no files to assemble.
var ErrNoPages = errors.New("no page files to assemble")

type Config struct {
	Tool string // binary name or absolute path; if empty -> "img2pdf"
}

// Combined describes the intermediate PDF written into the batch directory.
type Combined struct {
	Path  string
	Files []string // input files in the order they were passed to the tool
	Pages int      // page count read back from the PDF; 0 if it could not be read
}

type Assembler struct {
	cfg        Config
	runner     runner.Runner
	logger     *slog.Logger
	countPages func(path string) (int, error)
}

func NewAssembler(cfg Config, r runner.Runner, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tool == "" {
		cfg.Tool = "img2pdf"
	}
	return &Assembler{cfg: cfg, runner: r, logger: logger, countPages: CountPages}
}

// SortedFiles returns a lexically sorted copy of files. Page order never
// depends on manifest line order.
func SortedFiles(files []string) []string {
	out := append([]string(nil), files...)
	sort.Strings(out)
	return out
}

// Args returns the assembler arguments: -v -o <output> <sorted files...>.
func (a *Assembler) Args(output string, files []string) []string {
	return append([]string{"-v", "-o", output}, SortedFiles(files)...)
}

// Combine runs the image-to-PDF tool inside batchPath and writes combinedName there.
func (a *Assembler) Combine(ctx context.Context, batchPath string, files []string, combinedName string) (Combined, error) {
	if len(files) == 0 {
		return Combined{}, ErrNoPages
	}
	for _, f := range files {
		if !constants.IsImageExt(filepath.Ext(f)) {
			a.logger.Warn("manifest lists a file that is not a known image type", "path", batchPath, "file", f)
		}
	}

	cmd := runner.Command{Name: a.cfg.Tool, Args: a.Args(combinedName, files), Dir: batchPath}
	a.logger.Debug("assemble command", "cmd_line", cmd.String())

	if _, err := a.runner.Run(ctx, cmd); err != nil {
		return Combined{}, fmt.Errorf("%s: %w", a.cfg.Tool, err)
	}

	out := Combined{
		Path:  filepath.Join(batchPath, combinedName),
		Files: SortedFiles(files),
	}
	if st, err := os.Stat(out.Path); err != nil {
		return Combined{}, fmt.Errorf("%s reported success but produced no output: %w", a.cfg.Tool, err)
	} else if st.Size() == 0 {
		return Combined{}, fmt.Errorf("%s produced an empty file %s", a.cfg.Tool, out.Path)
	}

	pages, err := a.countPages(out.Path)
	if err != nil {
		a.logger.Warn("could not read combined pdf page count", "path", out.Path, "error", err)
		return out, nil
	}
	out.Pages = pages
	if pages != len(files) {
		// multi-frame images legitimately yield more pages than files
		a.logger.Warn("combined pdf page count differs from file count",
			"path", out.Path, "pages", pages, "files", len(files))
	}
	return out, nil
}
