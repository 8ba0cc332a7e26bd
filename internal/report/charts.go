package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/paramsweep/internal/security"
)

// statusNotRun labels combinations that were generated but not dispatched.
const statusNotRun = "generated"

// RenderPage writes an HTML page with one scatter chart per numeric
// parameter (run index against value, one series per run status) and a bar
// chart of run outcomes.
func RenderPage(w io.Writer, title string, names []string, rows []Row) error {
	page := components.NewPage()
	page.PageTitle = title

	for i, name := range names {
		vals, ok := Numeric(rows, i)
		if !ok {
			continue
		}
		byStatus := map[string][]opts.ScatterData{}
		for r, row := range rows {
			st := row.Status
			if st == "" {
				st = statusNotRun
			}
			byStatus[st] = append(byStatus[st], opts.ScatterData{Value: []interface{}{row.Index, vals[r]}})
		}

		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "480px"}),
			charts.WithTitleOpts(opts.Title{Title: name, Subtitle: fmt.Sprintf("runs=%d", len(rows))}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "run", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Name: name, NameLocation: "middle", NameGap: 40}),
		)
		for _, st := range sortedKeys(byStatus) {
			scatter.AddSeries(st, byStatus[st], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
		}
		page.AddCharts(scatter)
	}

	counts := map[string]int{}
	for _, row := range rows {
		st := row.Status
		if st == "" {
			st = statusNotRun
		}
		counts[st]++
	}
	statuses := sortedKeys(counts)
	bars := make([]opts.BarData, len(statuses))
	for i, st := range statuses {
		bars[i] = opts.BarData{Value: counts[st]}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Run outcomes"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(statuses).AddSeries("runs", bars,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	page.AddCharts(bar)

	return page.Render(w)
}

// HistogramFile returns the PNG file name used for parameter name.
func HistogramFile(name string) string {
	return "hist_" + security.SanitizeFilename(name) + ".png"
}

// SaveHistograms writes one PNG histogram per numeric parameter that takes
// at least two distinct values and returns the files written.
func SaveHistograms(dir string, names []string, rows []Row) ([]string, error) {
	var files []string
	for i, name := range names {
		vals, ok := Numeric(rows, i)
		if !ok || distinct(vals) < 2 {
			continue
		}
		p := plot.New()
		p.Title.Text = name
		p.X.Label.Text = name
		p.Y.Label.Text = "runs"

		bins := distinct(vals)
		if bins > 20 {
			bins = 20
		}
		h, err := plotter.NewHist(plotter.Values(vals), bins)
		if err != nil {
			return files, fmt.Errorf("histogram of %s: %w", name, err)
		}
		h.LineStyle.Width = vg.Points(1)
		p.Add(h)

		file := filepath.Join(dir, HistogramFile(name))
		if err := p.Save(6*vg.Inch, 4*vg.Inch, file); err != nil {
			return files, fmt.Errorf("saving histogram of %s: %w", name, err)
		}
		files = append(files, file)
	}
	return files, nil
}

func distinct(vals []float64) int {
	seen := map[float64]struct{}{}
	for _, v := range vals {
		seen[v] = struct{}{}
	}
	return len(seen)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
