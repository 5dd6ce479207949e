// Command report renders an HTML summary of a simulation run from the
// CSV telemetry the driver writes. It also fits a linear growth law to
// the mean grain volume, which for curvature-driven coarsening should
// be close to linear in time.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"

	"github.com/fennwald/polyphase/telemetry"
)

func main() {
	dir := flag.String("dir", "output", "Run output directory containing telemetry.csv")
	out := flag.String("out", "", "Report HTML path (default <dir>/report.html)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	outPath := *out
	if outPath == "" {
		outPath = filepath.Join(*dir, "report.html")
	}

	rows, err := readTelemetry(filepath.Join(*dir, "telemetry.csv"))
	if err != nil {
		slog.Error("failed to read telemetry", "error", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		slog.Error("telemetry.csv has no rows", "dir", *dir)
		os.Exit(1)
	}

	alpha, beta := growthFit(rows)
	slog.Info("mean grain volume growth fit",
		"intercept", alpha, "slope", beta, "rows", len(rows))

	page := components.NewPage()
	page.PageTitle = "polyphase run report"
	page.AddCharts(
		grainCountChart(rows),
		volumeChart(rows, alpha, beta),
		interfaceChart(rows),
		healthChart(rows),
	)

	f, err := os.Create(outPath)
	if err != nil {
		slog.Error("failed to create report", "path", outPath, "error", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		slog.Error("failed to render report", "error", err)
		os.Exit(1)
	}
	slog.Info("wrote report", "path", outPath)
}

func readTelemetry(path string) ([]telemetry.StepStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []telemetry.StepStats
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return rows, nil
}

// growthFit regresses mean grain volume against simulated time.
func growthFit(rows []telemetry.StepStats) (alpha, beta float64) {
	times := make([]float64, len(rows))
	volumes := make([]float64, len(rows))
	for i, r := range rows {
		times[i] = r.SimTime
		volumes[i] = r.MeanGrainVolume
	}
	return stat.LinearRegression(times, volumes, nil, false)
}

func steps(rows []telemetry.StepStats) []string {
	x := make([]string, len(rows))
	for i, r := range rows {
		x[i] = fmt.Sprintf("%d", r.Step)
	}
	return x
}

func line(title, subtitle string) *charts.Line {
	l := charts.NewLine()
	l.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "step"}),
	)
	return l
}

func grainCountChart(rows []telemetry.StepStats) *charts.Line {
	total := make([]opts.LineData, len(rows))
	stable := make([]opts.LineData, len(rows))
	for i, r := range rows {
		total[i] = opts.LineData{Value: r.GrainsTotal}
		stable[i] = opts.LineData{Value: r.GrainsStable}
	}
	l := line("Grain count", "total and stable grains per step")
	l.SetXAxis(steps(rows)).
		AddSeries("total", total).
		AddSeries("stable", stable)
	return l
}

func volumeChart(rows []telemetry.StepStats, alpha, beta float64) *charts.Line {
	mean := make([]opts.LineData, len(rows))
	fit := make([]opts.LineData, len(rows))
	for i, r := range rows {
		mean[i] = opts.LineData{Value: r.MeanGrainVolume}
		fit[i] = opts.LineData{Value: alpha + beta*r.SimTime}
	}
	l := line("Mean grain volume", fmt.Sprintf("linear fit V = %.3g + %.3g t", alpha, beta))
	l.SetXAxis(steps(rows)).
		AddSeries("mean volume", mean).
		AddSeries("linear fit", fit, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return l
}

func interfaceChart(rows []telemetry.StepStats) *charts.Line {
	iface := make([]opts.LineData, len(rows))
	wide := make([]opts.LineData, len(rows))
	solid := make([]opts.LineData, len(rows))
	for i, r := range rows {
		iface[i] = opts.LineData{Value: r.InterfaceCells}
		wide[i] = opts.LineData{Value: r.WideCells}
		solid[i] = opts.LineData{Value: r.SolidFraction}
	}
	l := line("Interface extent", "interface and near-interface cell counts")
	l.SetXAxis(steps(rows)).
		AddSeries("interface cells", iface).
		AddSeries("wide cells", wide).
		AddSeries("solid fraction", solid)
	return l
}

func healthChart(rows []telemetry.StepStats) *charts.Line {
	nonconv := make([]opts.LineData, len(rows))
	plaus := make([]opts.LineData, len(rows))
	maxPsi := make([]opts.LineData, len(rows))
	for i, r := range rows {
		nonconv[i] = opts.LineData{Value: r.NonConverged}
		plaus[i] = opts.LineData{Value: r.Plausibility}
		maxPsi[i] = opts.LineData{Value: r.MaxPsi}
	}
	l := line("Solver health", "normalization warnings and peak increment rate")
	l.SetXAxis(steps(rows)).
		AddSeries("nonconverged cells", nonconv).
		AddSeries("plausibility cells", plaus).
		AddSeries("max psi rate", maxPsi)
	return l
}
