package assemble

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// CountPages opens a PDF and returns its page count.
func CountPages(path string) (n int, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("parse %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("could not read PDF %s: %w", path, err)
	}
	defer f.Close()
	return r.NumPage(), nil
}
