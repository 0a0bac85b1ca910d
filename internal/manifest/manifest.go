// Package manifest writes the bench-side CSV record of where each sample went.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Manifest is a header plus rows, written as CSV.
type Manifest struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// New creates an empty manifest with the given header.
func New(header ...string) *Manifest {
	return &Manifest{Header: header}
}

// Add appends a row. It must have as many fields as the header.
func (m *Manifest) Add(fields ...string) error {
	if len(fields) != len(m.Header) {
		return fmt.Errorf("manifest row has %d fields, header has %d", len(fields), len(m.Header))
	}
	m.Rows = append(m.Rows, fields)
	return nil
}

// Len returns the number of data rows.
func (m *Manifest) Len() int { return len(m.Rows) }

// Write encodes the manifest to w.
func (m *Manifest) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(m.Header); err != nil {
		return fmt.Errorf("failed to write manifest header: %w", err)
	}
	if err := cw.WriteAll(m.Rows); err != nil {
		return fmt.Errorf("failed to write manifest rows: %w", err)
	}
	return nil
}

// WriteFile writes the manifest to path, creating parent directories.
func (m *Manifest) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create manifest directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // path comes from the operator's flags
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	if err := m.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
