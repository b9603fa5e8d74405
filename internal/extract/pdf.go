package extract

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// rasterizePDF renders each page of a PDF to a JPEG using pdftoppm (poppler)
// and returns the page image paths in page order. The images live in a fresh
// temp directory; the caller owns their cleanup.
func rasterizePDF(path string) ([]string, error) {
	dir, err := os.MkdirTemp("", "carevoice-pages-")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}

	prefix := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	cmd := exec.Command("pdftoppm", "-jpeg", "-r", "150", path, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	pages, err := filepath.Glob(prefix + "*.jpg")
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("glob pages: %w", err)
	}
	if len(pages) == 0 {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("pdftoppm produced no pages for %s", path)
	}

	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(pages)
	return pages, nil
}
