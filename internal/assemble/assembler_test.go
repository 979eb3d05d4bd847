package assemble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/joseph-ayodele/scanman/internal/runner"
)

// fakeRunner simulates the image-to-PDF tool.
type fakeRunner struct {
	run   func(ctx context.Context, cmd runner.Command) (runner.Result, error)
	calls []runner.Command
}

func (f *fakeRunner) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	f.calls = append(f.calls, cmd)
	if f.run == nil {
		return runner.Result{}, nil
	}
	return f.run(ctx, cmd)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writesOutput creates the -o target like img2pdf would.
func writesOutput(t *testing.T, content []byte) func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	return func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
		out := filepath.Join(cmd.Dir, cmd.Args[2])
		if err := os.WriteFile(out, content, 0o644); err != nil {
			t.Fatal(err)
		}
		return runner.Result{}, nil
	}
}

// minimalPDF renders a structurally valid PDF with n empty pages.
func minimalPDF(n int) []byte {
	var b strings.Builder
	var offsets []int
	b.WriteString("%PDF-1.4\n")
	obj := func(body string) {
		offsets = append(offsets, b.Len())
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(offsets)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return []byte(b.String())
}

func TestArgsSortFilesLexically(t *testing.T) {
	a := NewAssembler(Config{}, &fakeRunner{}, quietLogger())
	shuffled := [][]string{
		{"page2.jpg", "page1.jpg", "page10.jpg"},
		{"page10.jpg", "page1.jpg", "page2.jpg"},
		{"page1.jpg", "page2.jpg", "page10.jpg"},
	}
	want := []string{"-v", "-o", "scan.combined.pdf", "page1.jpg", "page10.jpg", "page2.jpg"}
	for _, files := range shuffled {
		if got := a.Args("scan.combined.pdf", files); !reflect.DeepEqual(got, want) {
			t.Fatalf("Args(%v) = %v, want %v", files, got, want)
		}
	}
}

func TestCombineRunsToolInBatchDir(t *testing.T) {
	dir := t.TempDir()
	fr := &fakeRunner{}
	fr.run = writesOutput(t, minimalPDF(2))
	a := NewAssembler(Config{}, fr, quietLogger())

	files := []string{"page2.jpg", "page1.jpg"}
	got, err := a.Combine(context.Background(), dir, files, "scan001.combined.pdf")
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	if len(fr.calls) != 1 || fr.calls[0].Name != "img2pdf" || fr.calls[0].Dir != dir {
		t.Fatalf("calls = %+v", fr.calls)
	}
	if got.Path != filepath.Join(dir, "scan001.combined.pdf") {
		t.Fatalf("path = %q", got.Path)
	}
	if !reflect.DeepEqual(got.Files, []string{"page1.jpg", "page2.jpg"}) {
		t.Fatalf("files = %v", got.Files)
	}
	if got.Pages != 2 {
		t.Fatalf("pages = %d, want 2", got.Pages)
	}
	if !reflect.DeepEqual(files, []string{"page2.jpg", "page1.jpg"}) {
		t.Fatalf("caller slice was reordered: %v", files)
	}
}

func TestCombineUnreadablePDFStillSucceeds(t *testing.T) {
	dir := t.TempDir()
	fr := &fakeRunner{}
	fr.run = writesOutput(t, []byte("not a pdf"))
	a := NewAssembler(Config{}, fr, quietLogger())

	got, err := a.Combine(context.Background(), dir, []string{"page1.jpg"}, "x.combined.pdf")
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	if got.Pages != 0 {
		t.Fatalf("pages = %d, want 0 for unreadable pdf", got.Pages)
	}
}

func TestCombineToolMissing(t *testing.T) {
	fr := &fakeRunner{run: func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
		return runner.Result{ExitCode: -1}, fmt.Errorf("%w: img2pdf", runner.ErrToolNotFound)
	}}
	a := NewAssembler(Config{}, fr, quietLogger())

	_, err := a.Combine(context.Background(), t.TempDir(), []string{"page1.jpg"}, "x.combined.pdf")
	if !runner.IsToolNotFound(err) {
		t.Fatalf("Combine() error = %v, want ErrToolNotFound", err)
	}
}

func TestCombineNonZeroExit(t *testing.T) {
	fr := &fakeRunner{run: func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
		return runner.Result{ExitCode: 2}, &runner.ExitError{Name: "img2pdf", Code: 2}
	}}
	a := NewAssembler(Config{}, fr, quietLogger())

	_, err := a.Combine(context.Background(), t.TempDir(), []string{"page1.jpg"}, "x.combined.pdf")
	if runner.ExitCode(err) != 2 {
		t.Fatalf("Combine() error = %v, want exit code 2", err)
	}
}

func TestCombineZeroExitWithoutOutputFails(t *testing.T) {
	a := NewAssembler(Config{}, &fakeRunner{}, quietLogger())
	if _, err := a.Combine(context.Background(), t.TempDir(), []string{"page1.jpg"}, "x.combined.pdf"); err == nil {
		t.Fatal("Combine() error = nil, want missing output error")
	}
}

func TestCombineNoFiles(t *testing.T) {
	fr := &fakeRunner{}
	a := NewAssembler(Config{}, fr, quietLogger())
	_, err := a.Combine(context.Background(), t.TempDir(), nil, "x.combined.pdf")
	if !errors.Is(err, ErrNoPages) {
		t.Fatalf("Combine() error = %v, want ErrNoPages", err)
	}
	if len(fr.calls) != 0 {
		t.Fatalf("tool should not run without files")
	}
}

func TestCountPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "three.pdf")
	if err := os.WriteFile(path, minimalPDF(3), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := CountPages(path)
	if err != nil {
		t.Fatalf("CountPages() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("CountPages() = %d, want 3", n)
	}
}
