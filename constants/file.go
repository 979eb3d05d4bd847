package constants

import "strings"

// DefaultManifestFilename is the integrity manifest every batch directory must contain.
const DefaultManifestFilename = "file_manifest"

const (
	CombinedPDFSuffix = ".combined.pdf"
	FinalPDFSuffix    = ".pdf"
)

// ImageExtensions holds the page image extensions expected inside a batch.
var ImageExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsImageExt reports whether ext (with or without the dot) is a known page image extension.
func IsImageExt(ext string) bool {
	_, ok := ImageExtensions[NormalizeExt(ext)]
	return ok
}
