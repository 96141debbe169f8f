// Package sessionlog records per-tick control data and dumps it as CSV.
//
// Rows are buffered in memory for the duration of a session; a 30 Hz
// run of a few minutes stays small, and keeping file I/O out of the
// tick path protects the loop's timing budget.
package sessionlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Recorder accumulates labelled numeric rows. It is owned by the loop
// goroutine and not safe for concurrent use.
type Recorder struct {
	labels []string
	rows   [][]float64
}

// New creates an empty recorder.
func New() *Recorder { return &Recorder{} }

// SetLabels replaces the column labels written as the CSV header.
func (r *Recorder) SetLabels(labels []string) {
	r.labels = append([]string(nil), labels...)
}

// ExtendLabels appends further column labels.
func (r *Recorder) ExtendLabels(labels []string) {
	r.labels = append(r.labels, labels...)
}

// Store appends one row. The slice is copied.
func (r *Recorder) Store(row []float64) {
	r.rows = append(r.rows, append([]float64(nil), row...))
}

// Len returns the number of stored rows.
func (r *Recorder) Len() int { return len(r.rows) }

// Dump writes the recorded data to path. With overwrite false an
// existing file is kept and the data goes to name.1.csv, name.2.csv,
// and so on.
func (r *Recorder) Dump(path string, overwrite bool) error {
	if !overwrite {
		path = alternativeName(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sessionlog: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(r.labels) > 0 {
		if err := w.Write(r.labels); err != nil {
			return fmt.Errorf("sessionlog: %w", err)
		}
	}
	rec := make([]string, 0, 64)
	for _, row := range r.rows {
		rec = rec[:0]
		for _, v := range row {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("sessionlog: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("sessionlog: %w", err)
	}
	return nil
}

// alternativeName finds the first name.N.ext that does not exist yet.
func alternativeName(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s.%d%s", stem, n, ext)
		if _, err := os.Stat(cand); err != nil {
			return cand
		}
	}
}
