package inventory

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// FileInfo is one file in the data directory.
type FileInfo struct {
	Name string
	Size int64
}

// Inventory is a snapshot of the data directory at scan time.
type Inventory struct {
	Files      []FileInfo
	TotalBytes int64
}

// Scan lists the regular files in dir, sorted by name.
func Scan(dir string) (*Inventory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	inv := &Inventory{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		inv.Files = append(inv.Files, FileInfo{Name: info.Name(), Size: info.Size()})
		inv.TotalBytes += info.Size()
	}

	return inv, nil
}

// TotalMB returns the aggregate size in megabytes.
func (inv *Inventory) TotalMB() float64 {
	return float64(inv.TotalBytes) / (1024 * 1024)
}

// WriteSummary prints the per-file listing and the aggregate total.
func (inv *Inventory) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "\nCITE-seq directory: %d files\n", len(inv.Files))
	fmt.Fprintf(w, "Total size: %.1f MB\n", inv.TotalMB())

	for _, f := range inv.Files {
		fmt.Fprintf(w, "  %s: %.1f MB\n", f.Name, float64(f.Size)/(1024*1024))
	}
}

// Banner writes a section header in the style of the console report.
func Banner(w io.Writer, title string) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", rule, title, rule)
}
