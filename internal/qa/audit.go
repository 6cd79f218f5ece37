package qa

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"cmipsync/internal/completeness"
	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/types"
	"cmipsync/internal/report"
)

const (
	QualityFile   = "metricas_calidad.csv"
	AggregateFile = "metricas_agregadas.csv"
)

// Result is everything one audit computed.
type Result struct {
	Inventory    Inventory
	Completeness []completeness.Record
	Sizes        []GroupSizes
	Quality      []report.QualityRow
	MetricErrors map[string]error // keyed by file path

	QualityPath   string
	AggregatePath string
}

// Anomalies counts the size anomalies over all groups.
func (r Result) Anomalies() int {
	n := 0
	for _, g := range r.Sizes {
		n += len(g.Anomalies)
	}
	return n
}

// Auditor runs the quality audit over a canonical tree.
type Auditor struct {
	cfg       types.QAConfig
	reportDir string
	log       *logger.Logger
}

type AuditorOption func(*Auditor)

func WithLogger(l *logger.Logger) AuditorOption {
	return func(a *Auditor) {
		a.log = l
	}
}

// NewAuditor writes its reports to reportDir.
func NewAuditor(cfg types.QAConfig, reportDir string, opts ...AuditorOption) *Auditor {
	a := &Auditor{cfg: cfg, reportDir: reportDir}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.NewLogger(logger.WithName("qa"))
	}
	if a.cfg.SizeThreshold <= 0 {
		a.cfg.SizeThreshold = types.DefaultQAConfig().SizeThreshold
	}
	return a
}

// Run audits root and writes both metric tables.
func (a *Auditor) Run(ctx context.Context, root string) (Result, error) {
	var res Result

	inv, err := BuildInventory(ctx, root)
	if err != nil {
		return res, fmt.Errorf("inventory %s: %w", root, err)
	}
	res.Inventory = inv
	for _, p := range inv.Unparsed {
		a.log.Warn("Skipping file with unrecognised name", "file", p)
	}
	if len(inv.Files) == 0 {
		a.log.Warn("No data files to audit", "root", root)
	}

	res.Completeness, err = completeness.ComputeMissingYears(inv.Observations(), completeness.Range{})
	if err != nil {
		return res, err
	}
	res.Sizes = AnalyzeSizes(inv, a.cfg.SizeThreshold, a.cfg.MinFileSize)
	for _, g := range res.Sizes {
		for _, an := range g.Anomalies {
			a.log.Warn("Size anomaly",
				"file", an.File.Path,
				"size", an.File.Size.String(),
				"deviation_pct", fmt.Sprintf("%+.1f", an.DeviationPct),
				"too_small", an.TooSmall,
			)
		}
	}

	res.Quality, res.MetricErrors, err = a.quality(ctx, inv)
	if err != nil {
		return res, err
	}

	res.QualityPath = filepath.Join(a.reportDir, QualityFile)
	if err := report.WriteQualityMetrics(res.QualityPath, res.Quality); err != nil {
		return res, err
	}
	res.AggregatePath = filepath.Join(a.reportDir, AggregateFile)
	if err := report.WriteAggregateMetrics(res.AggregatePath, aggregateRows(res.Sizes)); err != nil {
		return res, err
	}

	a.summarize(res)
	return res, nil
}

// quality builds one row per model, ensemble and year from the first file
// of that year.
func (a *Auditor) quality(ctx context.Context, inv Inventory) ([]report.QualityRow, map[string]error, error) {
	type yearKey struct {
		key  completeness.GroupKey
		year int
	}
	seen := make(map[yearKey]bool)

	var (
		rows  []report.QualityRow
		paths []string
	)
	nan := math.NaN()
	for _, f := range inv.Files {
		k := yearKey{key: f.Key(), year: f.Member.InitYear}
		if seen[k] {
			continue
		}
		seen[k] = true
		rows = append(rows, report.QualityRow{
			SourceID:     f.Name.SourceID,
			VariantLabel: f.Member.Ensemble,
			InitYear:     f.Member.InitYear,
			SizeMB:       f.Size.MB(),
			MissingPct:   nan,
			Min:          nan,
			Max:          nan,
			Mean:         nan,
			Std:          nan,
			TimeSteps:    -1,
		})
		paths = append(paths, f.Path)
	}

	errs := make(map[string]error)
	if !types.Bool(a.cfg.Metrics, true) || len(paths) == 0 {
		return rows, errs, nil
	}

	metrics, readErrs := newMetricPool(a.cfg.Workers, a.log).run(ctx, paths)
	if types.Interrupted(ctx) {
		return rows, errs, ctx.Err()
	}
	for i, m := range metrics {
		if err := readErrs[i]; err != nil {
			a.log.Warn("Could not read data metrics", "file", paths[i], "error", err)
			errs[paths[i]] = err
			continue
		}
		row := &rows[i]
		row.MissingPct = m.MissingPct
		row.Min, row.Max = m.Min, m.Max
		row.Mean, row.Std = m.Mean, m.Std
		row.TimeSteps = m.TimeSteps
	}
	return rows, errs, nil
}

func aggregateRows(sizes []GroupSizes) []report.AggregateRow {
	rows := make([]report.AggregateRow, 0, len(sizes))
	for _, g := range sizes {
		rows = append(rows, report.AggregateRow{
			SourceID:     g.Key.Model,
			VariantLabel: g.Key.Ensemble,
			MinYear:      g.MinYear,
			MaxYear:      g.MaxYear,
			Files:        g.Count,
			MeanSizeMB:   g.MeanMB,
			StdSizeMB:    g.StdMB,
		})
	}
	return rows
}

func (a *Auditor) summarize(res Result) {
	complete := 0
	for _, r := range res.Completeness {
		if r.Complete() {
			complete++
		}
	}
	a.log.Info("Quality audit finished",
		"files", len(res.Inventory.Files),
		"unparsed", len(res.Inventory.Unparsed),
		"total_size", humanize.IBytes(res.Inventory.TotalSize().Bytes()),
		"groups", len(res.Sizes),
		"complete_groups", complete,
		"missing_years", completeness.TotalMissing(res.Completeness),
		"size_anomalies", res.Anomalies(),
		"metric_errors", len(res.MetricErrors),
	)
	for _, r := range res.Completeness {
		if r.Complete() {
			continue
		}
		a.log.Info("Incomplete group",
			"model", r.Model,
			"ensemble", r.Ensemble,
			"range", fmt.Sprintf("%d-%d", r.ExpectedStart, r.ExpectedEnd),
			"missing", len(r.Missing),
		)
	}
	a.log.Info("Reports written", "quality", res.QualityPath, "aggregate", res.AggregatePath)
}
