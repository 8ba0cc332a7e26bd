// Package report files the outcome of a sweep: a CSV table with one row per
// run, per-parameter statistics, an HTML chart page and PNG histograms.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/banshee-data/paramsweep/internal/dispatch"
	"github.com/banshee-data/paramsweep/internal/sweep"
)

// Row is one run of a sweep.
type Row struct {
	Index    int
	Values   []any
	Status   string
	RunDir   string
	Duration float64 // seconds
	Error    string
}

// Rows pairs every combination of s with its dispatch result, if any.
// Combinations without a result keep an empty status.
func Rows(s *sweep.Sweep, results []dispatch.Result) []Row {
	rows := make([]Row, len(s.Combinations))
	for i, c := range s.Combinations {
		rows[i] = Row{Index: i, Values: c}
	}
	for _, r := range results {
		if r.Task == nil || r.Task.Index < 0 || r.Task.Index >= len(rows) {
			continue
		}
		row := &rows[r.Task.Index]
		row.Status = r.Status
		row.RunDir = r.RunDir
		row.Duration = r.Duration.Seconds()
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
	}
	return rows
}

// ReservedColumns are the CSV columns written around the parameter values.
// A parameter cannot share one of these names.
var ReservedColumns = []string{"run", "status", "run_dir", "duration_s", "error"}

// Header returns the CSV header for a sweep over names.
func Header(names []string) []string {
	header := append([]string{ReservedColumns[0]}, names...)
	return append(header, ReservedColumns[1:]...)
}

// CheckNames returns an error if a parameter name collides with a reserved
// column.
func CheckNames(names []string) error {
	for _, n := range names {
		if slices.Contains(ReservedColumns, n) {
			return fmt.Errorf("parameter name %q is reserved for a report column", n)
		}
	}
	return nil
}

// WriteCSV writes one header line and one line per row.
func WriteCSV(w io.Writer, names []string, rows []Row) error {
	if err := CheckNames(names); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(names)); err != nil {
		return err
	}
	for _, r := range rows {
		if len(r.Values) != len(names) {
			return fmt.Errorf("run %d has %d value(s), want %d", r.Index, len(r.Values), len(names))
		}
		rec := make([]string, 0, len(names)+5)
		rec = append(rec, strconv.Itoa(r.Index))
		for _, v := range r.Values {
			rec = append(rec, sweep.Format(v))
		}
		dur := ""
		if r.Status != "" {
			dur = strconv.FormatFloat(r.Duration, 'f', 3, 64)
		}
		rec = append(rec, r.Status, r.RunDir, dur, r.Error)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
