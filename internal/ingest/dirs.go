package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/paperqa/internal/config"
)

// Dirs are the three directories a document moves through.
type Dirs struct {
	Pending   string
	Processed string
	Failed    string
}

// Counts is the number of PDFs in each directory.
type Counts struct {
	Pending   int `json:"pending"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// NewDirs builds Dirs from configuration.
func NewDirs(cfg config.DirsConfig) Dirs {
	return Dirs{Pending: cfg.Pending, Processed: cfg.Processed, Failed: cfg.Failed}
}

// Ensure creates any missing directory.
func (d Dirs) Ensure() error {
	for _, dir := range []string{d.Pending, d.Processed, d.Failed} {
		if dir == "" {
			return fmt.Errorf("ingest directory path cannot be empty")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// Counts reports how many PDFs each directory holds. Missing directories
// count as empty.
func (d Dirs) Counts() (Counts, error) {
	var c Counts
	var err error
	if c.Pending, err = countPDFs(d.Pending); err != nil {
		return Counts{}, err
	}
	if c.Processed, err = countPDFs(d.Processed); err != nil {
		return Counts{}, err
	}
	if c.Failed, err = countPDFs(d.Failed); err != nil {
		return Counts{}, err
	}
	return c, nil
}

func (d Dirs) processedPath(name string) string { return filepath.Join(d.Processed, name) }
func (d Dirs) failedPath(name string) string    { return filepath.Join(d.Failed, name) }

// IsPDF reports whether name has a .pdf extension, in any case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// PendingPDFs returns the PDFs waiting in the pending directory, sorted by
// name.
func (d Dirs) PendingPDFs() ([]string, error) {
	names, err := listPDFs(d.Pending)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(d.Pending, n)
	}
	return paths, nil
}

func countPDFs(dir string) (int, error) {
	names, err := listPDFs(dir)
	return len(names), err
}

// listPDFs returns PDF file names in dir. os.ReadDir sorts by name.
func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsPDF(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// moveFile renames src to dst, copying across filesystems when needed.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	return out.Close()
}
