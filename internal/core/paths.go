package core

import (
	"path/filepath"

	"github.com/joseph-ayodele/scanman/constants"
)

// ScanName is the batch identity: the directory's base name.
func ScanName(batchPath string) string {
	return filepath.Base(filepath.Clean(batchPath))
}

func CombinedFilename(scanName string) string {
	return scanName + constants.CombinedPDFSuffix
}

// OutputPath is the deliverable location <completed>/<scan>.pdf.
func OutputPath(completedDir, scanName string) string {
	return filepath.Join(completedDir, scanName+constants.FinalPDFSuffix)
}
