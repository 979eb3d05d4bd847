package ingest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func mkBatch(t *testing.T, root, name string, withManifest bool) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if withManifest {
		if err := os.WriteFile(filepath.Join(dir, "file_manifest"), []byte("abc  page1.jpg\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestDiscoverOnlyBatchesWithManifest(t *testing.T) {
	root := t.TempDir()
	b := mkBatch(t, root, "scan-b", true)
	a := mkBatch(t, root, "scan-a", true)
	mkBatch(t, root, "scan-c", false)
	mkBatch(t, root, ".partial", true)

	// a manifest path that is a directory is not a manifest
	if err := os.MkdirAll(filepath.Join(root, "scan-d", "file_manifest"), 0o755); err != nil {
		t.Fatal(err)
	}
	// stray file at the root
	if err := os.WriteFile(filepath.Join(root, "file_manifest"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Discover(root, "file_manifest")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if want := []string{a, b}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Discover() = %v, want %v", got, want)
	}
}

func TestDiscoverCustomManifestName(t *testing.T) {
	root := t.TempDir()
	dir := mkBatch(t, root, "scan001", false)
	if err := os.WriteFile(filepath.Join(dir, "SHA1SUMS"), []byte("abc  p.jpg\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Discover(root, "SHA1SUMS")
	if err != nil || len(got) != 1 || got[0] != dir {
		t.Fatalf("Discover() = %v, %v", got, err)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope"), "file_manifest"); err == nil {
		t.Fatal("Discover() error = nil, want error for missing root")
	}
}

func TestIsHidden(t *testing.T) {
	if !IsHidden("/intake/.tmp") || IsHidden("/intake/scan001") {
		t.Fatal("IsHidden misclassified")
	}
}
