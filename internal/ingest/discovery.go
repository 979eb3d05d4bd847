package ingest

import (
	"fmt"
	"os"
	"path/filepath"
)

// Discover returns the batch directories directly under root that hold a
// regular manifest file, in lexical order. Hidden directories are ignored.
func Discover(root, manifestName string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read intake dir: %w", err)
	}

	var batches []string
	for _, e := range entries {
		if IsHidden(e.Name()) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		// Stat follows symlinks, so linked batch dirs are found too
		st, err := os.Stat(filepath.Join(dir, manifestName))
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		batches = append(batches, dir)
	}
	return batches, nil
}
