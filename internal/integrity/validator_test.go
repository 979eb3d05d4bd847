package integrity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/joseph-ayodele/scanman/internal/runner"
)

// fakeRunner records invocations and returns a canned outcome.
type fakeRunner struct {
	calls []runner.Command
	res   runner.Result
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	f.calls = append(f.calls, cmd)
	return f.res, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateInvokesShasumInBatchDir(t *testing.T) {
	fr := &fakeRunner{}
	v := NewValidator(Config{}, fr, quietLogger())

	res := v.Validate(context.Background(), "/intake/scan001", "file_manifest")
	if !res.Valid() {
		t.Fatalf("Validate() = %+v, want valid", res)
	}
	if len(fr.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(fr.calls))
	}
	got := fr.calls[0]
	if got.Name != "shasum" || got.Dir != "/intake/scan001" {
		t.Fatalf("command = %+v", got)
	}
	if want := []string{"-a", "1", "-c", "file_manifest"}; !reflect.DeepEqual(got.Args, want) {
		t.Fatalf("args = %v, want %v", got.Args, want)
	}
}

func TestValidateNonZeroExitIsInvalid(t *testing.T) {
	fr := &fakeRunner{err: &runner.ExitError{
		Name: "shasum",
		Code: 1,
		Tail: []string{"page1.jpg: FAILED", "page2.jpg: OK", "shasum: WARNING: 1 computed checksum did NOT match"},
	}}
	v := NewValidator(Config{}, fr, quietLogger())

	res := v.Validate(context.Background(), "/intake/scan002", "file_manifest")
	if res.Status != StatusInvalid {
		t.Fatalf("status = %v, want invalid", res.Status)
	}
	if !strings.Contains(res.Reason, "page1.jpg") || strings.Contains(res.Reason, "page2.jpg") {
		t.Fatalf("reason = %q, want only the failed file", res.Reason)
	}
}

func TestValidateMissingToolIsToolError(t *testing.T) {
	fr := &fakeRunner{err: fmt.Errorf("%w: shasum", runner.ErrToolNotFound)}
	v := NewValidator(Config{Tool: "shasum"}, fr, quietLogger())

	res := v.Validate(context.Background(), "/intake/scan003", "file_manifest")
	if res.Status != StatusToolError {
		t.Fatalf("status = %v, want tool_error", res.Status)
	}
	if res.Valid() {
		t.Fatal("tool error must not be valid")
	}
}

func TestStatusString(t *testing.T) {
	if StatusInvalid.String() != "invalid" || StatusToolError.String() != "tool_error" {
		t.Fatalf("unexpected status names: %s %s", StatusInvalid, StatusToolError)
	}
}
