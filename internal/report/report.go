package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/paramsweep/internal/monitoring"
)

// Output file names inside the report directory.
const (
	SweepCSV  = "sweep.csv"
	StatsCSV  = "stats.csv"
	ChartHTML = "sweep.html"
)

// Writer files reports under Dir.
type Writer struct {
	Dir   string
	Title string
	// Charts enables the HTML page and PNG histograms.
	Charts bool
}

// Files lists the paths written by Write.
type Files struct {
	CSV        string
	Stats      string
	HTML       string
	Histograms []string
}

// Write files the report for a sweep over names.
func (w *Writer) Write(names []string, rows []Row) (*Files, error) {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	files := &Files{
		CSV:   filepath.Join(w.Dir, SweepCSV),
		Stats: filepath.Join(w.Dir, StatsCSV),
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, names, rows); err != nil {
		return nil, err
	}
	if err := os.WriteFile(files.CSV, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", files.CSV, err)
	}

	stats := Summarise(names, rows)
	buf.Reset()
	if err := WriteStats(&buf, stats); err != nil {
		return nil, err
	}
	if err := os.WriteFile(files.Stats, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", files.Stats, err)
	}
	for _, s := range stats {
		monitoring.Logf("%s: mean=%.6g±%.6g range=[%g, %g] over %d run(s)", s.Name, s.Mean, s.StdDev, s.Min, s.Max, s.Count)
	}

	if !w.Charts {
		return files, nil
	}
	title := w.Title
	if title == "" {
		title = "Parameter sweep"
	}
	buf.Reset()
	if err := RenderPage(&buf, title, names, rows); err != nil {
		return nil, fmt.Errorf("rendering charts: %w", err)
	}
	files.HTML = filepath.Join(w.Dir, ChartHTML)
	if err := os.WriteFile(files.HTML, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", files.HTML, err)
	}
	hist, err := SaveHistograms(w.Dir, names, rows)
	files.Histograms = hist
	if err != nil {
		return files, err
	}
	return files, nil
}

// WriteStats writes the per-parameter statistics as CSV.
func WriteStats(w io.Writer, stats []Stat) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"parameter", "count", "mean", "stddev", "min", "max"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', 12, 64) }
	for _, s := range stats {
		if err := cw.Write([]string{s.Name, strconv.Itoa(s.Count), f(s.Mean), f(s.StdDev), f(s.Min), f(s.Max)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
