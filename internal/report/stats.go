package report

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stat summarises one numeric parameter across a sweep.
type Stat struct {
	Name   string
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Numeric returns the values of column i as float64 when every row holds
// an int or a float64.
func Numeric(rows []Row, i int) ([]float64, bool) {
	out := make([]float64, len(rows))
	for r, row := range rows {
		switch v := row.Values[i].(type) {
		case int:
			out[r] = float64(v)
		case float64:
			out[r] = v
		default:
			return nil, false
		}
	}
	return out, len(out) > 0
}

// Summarise computes statistics for every numeric column of rows. Non
// numeric columns are skipped.
func Summarise(names []string, rows []Row) []Stat {
	var out []Stat
	for i, name := range names {
		vals, ok := Numeric(rows, i)
		if !ok {
			continue
		}
		mean, std := stat.MeanStdDev(vals, nil)
		if math.IsNaN(std) {
			std = 0
		}
		out = append(out, Stat{
			Name:   name,
			Count:  len(vals),
			Mean:   mean,
			StdDev: std,
			Min:    floats.Min(vals),
			Max:    floats.Max(vals),
		})
	}
	return out
}
