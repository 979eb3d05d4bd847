// Package manifest reads the integrity manifest of a scan batch.
//
// Each non-empty line is "<checksum> <relative-filename>", the format
// produced by `shasum -a 1` and consumed by `shasum -a 1 -c`.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one manifest line.
type Entry struct {
	Checksum string
	Filename string
}

// MalformedManifestError reports a manifest that is missing or cannot be parsed.
type MalformedManifestError struct {
	Path   string
	Line   int // 0 when the whole file is at fault
	Reason string
	Err    error
}

func (e *MalformedManifestError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed manifest %s:%d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed manifest %s: %s", e.Path, e.Reason)
}

func (e *MalformedManifestError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is a *MalformedManifestError.
func IsMalformed(err error) bool {
	var me *MalformedManifestError
	return errors.As(err, &me)
}

// Read parses <batchPath>/<manifestName> and returns its entries in file order.
func Read(batchPath, manifestName string) ([]Entry, error) {
	path := filepath.Join(batchPath, manifestName)
	f, err := os.Open(path)
	if err != nil {
		return nil, &MalformedManifestError{Path: path, Reason: "cannot open manifest", Err: err}
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &MalformedManifestError{
				Path:   path,
				Line:   lineNo,
				Reason: fmt.Sprintf("expected 2 fields, got %d", len(fields)),
			}
		}
		// shasum marks binary-mode entries with a leading '*'
		name := strings.TrimPrefix(fields[1], "*")
		entries = append(entries, Entry{Checksum: fields[0], Filename: name})
	}
	if err := sc.Err(); err != nil {
		return nil, &MalformedManifestError{Path: path, Reason: "read failed", Err: err}
	}
	return entries, nil
}

// Filenames returns the filenames of entries in manifest order.
func Filenames(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Filename)
	}
	return out
}
