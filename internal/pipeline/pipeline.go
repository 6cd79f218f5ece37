// Package pipeline runs the acquisition and audit stages in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"cmipsync/internal/catalog"
	"cmipsync/internal/cleanup"
	"cmipsync/internal/completeness"
	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/types"
	"cmipsync/internal/download"
	"cmipsync/internal/qa"
	"cmipsync/internal/relocate"
	"cmipsync/internal/report"
	"cmipsync/internal/retry"
)

// exploreFields are the facets whose distinct combinations explore lists.
var exploreFields = []string{"variant_label", "grid_label", "sub_experiment_id", "variable_id", "table_id"}

type handler func(ctx context.Context) error

// Pipeline runs stages against one configuration.
type Pipeline struct {
	cfg      *types.Config
	catalog  catalog.Catalog
	log      *logger.Logger
	dryRun   bool
	handlers map[Name]handler
}

type Option func(*Pipeline)

func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithDryRun makes every stage report its planned actions only.
func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) {
		p.dryRun = dryRun
	}
}

// New builds a pipeline. cat may be nil when no selected stage needs the
// catalog.
func New(cfg *types.Config, cat catalog.Catalog, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, catalog: cat}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.NewLogger(logger.WithName("pipeline"))
	}
	p.handlers = map[Name]handler{
		Explore:       p.explore,
		Download:      p.download,
		Reorganize:    p.reorganize,
		PruneFX:       p.pruneFX,
		QA:            p.audit,
		DetectMissing: p.detectMissing,
		FetchMissing:  p.fetchMissing,
		QAFinal:       p.audit,
	}
	return p
}

// Run executes the planned stages in order and stops at the first failure.
// The reports cover every stage that was planned.
func (p *Pipeline) Run(ctx context.Context, selected ...Name) ([]StageReport, error) {
	plan := Plan(selected)
	reports := make([]StageReport, len(plan))
	for i, n := range plan {
		reports[i] = StageReport{Name: n, State: StatePending}
	}
	p.log.Info("Pipeline plan", "stages", fmt.Sprint(plan), "dry_run", p.dryRun)

	for i := range reports {
		r := &reports[i]
		if types.Interrupted(ctx) {
			for j := i; j < len(reports); j++ {
				reports[j].State = StateCanceled
			}
			return reports, ctx.Err()
		}

		p.log.Info(fmt.Sprintf("[%d/%d] %s", i+1, len(plan), r.Name))
		r.start()
		r.finish(p.handlers[r.Name](ctx))
		if r.Err != nil {
			p.log.Error("Stage failed", "stage", string(r.Name), "error", r.Err)
			return reports, fmt.Errorf("stage %s: %w", r.Name, r.Err)
		}
		p.log.Info("Stage finished", "stage", string(r.Name), "took", r.Duration().Round(time.Millisecond))
	}
	p.log.Info("Pipeline finished", "stages", len(plan))
	return reports, nil
}

func (p *Pipeline) named(name string) *logger.Logger {
	return p.log.Named(name)
}

func (p *Pipeline) engine() *relocate.Engine {
	return relocate.NewEngine(relocate.WithLogger(p.named("relocate")), relocate.WithDryRun(p.dryRun))
}

func (p *Pipeline) requireCatalog() (catalog.Catalog, error) {
	if p.catalog == nil {
		return nil, errors.New("no catalog configured")
	}
	return p.catalog, nil
}

func (p *Pipeline) explore(ctx context.Context) error {
	log := p.named("explore")
	criteria := catalog.CriteriaFromConfig(p.cfg.Search)
	if p.dryRun {
		log.Info("Dry run: would explore", "criteria", criteria.String())
		return nil
	}
	cat, err := p.requireCatalog()
	if err != nil {
		return err
	}

	log.Info("Exploring catalog", "catalog", cat.Name(), "criteria", criteria.String())
	rows, err := cat.Facets(ctx, criteria, exploreFields[:4])
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		relaxed := criteria
		relaxed.VariableID, relaxed.TableID = "", ""
		log.Warn("No results, retrying without variable and table", "criteria", relaxed.String())
		rows, err = cat.Facets(ctx, relaxed, exploreFields)
		if err != nil {
			return err
		}
	}
	if len(rows) == 0 {
		log.Warn("No results at all for the search")
		return nil
	}

	log.Info("Distinct facet combinations", "count", len(rows))
	for _, row := range rows {
		args := make([]any, 0, 2*len(exploreFields))
		for _, f := range exploreFields {
			if v, ok := row[f]; ok {
				args = append(args, f, v)
			}
		}
		log.Info("Available", args...)
	}
	return nil
}

func (p *Pipeline) download(ctx context.Context) error {
	var fetcher download.Fetcher
	if !p.dryRun {
		cat, err := p.requireCatalog()
		if err != nil {
			return err
		}
		fetcher = cat
	}
	stage := download.NewStage(fetcher, p.engine(), p.cfg.Paths, p.cfg.Search,
		download.WithLogger(p.named("download")),
		download.WithDryRun(p.dryRun),
	)
	_, err := stage.Run(ctx)
	return err
}

func (p *Pipeline) reorganize(ctx context.Context) error {
	log := p.named("reorganize")
	dirs, err := relocate.CacheDirs(p.cfg.Paths.BaseDir, p.cfg.Paths.CachePrefix)
	if err != nil {
		return fmt.Errorf("list caches in %s: %w", p.cfg.Paths.BaseDir, err)
	}
	if len(dirs) == 0 {
		log.Info("No cache directories to reorganize", "base_dir", p.cfg.Paths.BaseDir, "prefix", p.cfg.Paths.CachePrefix)
		return nil
	}
	s := p.engine().Sweep(ctx, dirs, p.cfg.Paths.DataDir)
	log.Info("Reorganization summary",
		"caches", len(dirs),
		"processed", s.Processed,
		"moved", s.Moved,
		"skipped", s.Skipped(),
		"errors", s.Errors,
	)
	return ctx.Err()
}

func (p *Pipeline) pruneFX(ctx context.Context) error {
	res, err := cleanup.PruneFX(ctx, p.cfg.Paths.DataDir, p.dryRun, p.named("cleanup"))
	if err != nil {
		return err
	}
	p.named("cleanup").Info("fx pruning summary",
		"dirs", len(res.Dirs),
		"files", len(res.Files),
		"errors", res.Errors,
		"dry_run", res.DryRun,
	)
	return nil
}

func (p *Pipeline) audit(ctx context.Context) error {
	log := p.named("qa")
	if p.dryRun {
		log.Info("Dry run: would audit", "root", p.cfg.Paths.DataDir, "reports", p.cfg.Paths.ReportDir)
		return nil
	}
	_, err := qa.NewAuditor(p.cfg.QA, p.cfg.Paths.ReportDir, qa.WithLogger(log)).Run(ctx, p.cfg.Paths.DataDir)
	return err
}

func (p *Pipeline) detectMissing(ctx context.Context) error {
	log := p.named("missing")
	scan, err := completeness.Scan(ctx, p.cfg.Paths.DataDir, p.cfg.Missing.ModelFilter)
	if err != nil {
		return err
	}
	records, err := completeness.ComputeMissingYears(scan.Observations, completeness.Range{
		Start: p.cfg.Missing.Start,
		End:   p.cfg.Missing.End,
	}, expectedGroups(p.cfg)...)
	if err != nil {
		return err
	}
	for _, r := range records {
		switch {
		case r.NoObservations:
			log.Warn("No files for expected group", "model", r.Model, "ensemble", r.Ensemble)
		case !r.Complete():
			log.Info("Missing years", "model", r.Model, "ensemble", r.Ensemble, "years", fmt.Sprint(r.Missing))
		}
	}
	log.Info("Completeness scan",
		"files", scan.Files,
		"unparsed", scan.Unparsed,
		"filtered", scan.Filtered,
		"groups", len(records),
		"missing_years", completeness.TotalMissing(records),
	)
	if p.dryRun {
		log.Info("Dry run: would write", "path", p.cfg.Paths.MissingCSV)
		return nil
	}
	return report.WriteMissingYears(p.cfg.Paths.MissingCSV, records)
}

// expectedGroups returns the configured model/ensemble pairs, plus the
// searched pair when the search names a single model and variant. The model
// filter applies to them as to scanned files.
func expectedGroups(cfg *types.Config) []completeness.GroupKey {
	var keys []completeness.GroupKey
	add := func(model, ensemble string) {
		model, ensemble = strings.TrimSpace(model), strings.TrimSpace(ensemble)
		if model == "" || ensemble == "" || strings.Contains(model, ",") || strings.Contains(ensemble, ",") {
			return
		}
		if f := strings.ToLower(cfg.Missing.ModelFilter); f != "" && !strings.Contains(strings.ToLower(model), f) {
			return
		}
		keys = append(keys, completeness.GroupKey{Model: model, Ensemble: ensemble})
	}
	for _, g := range cfg.Missing.Expected {
		add(g.SourceID, g.VariantLabel)
	}
	add(cfg.Search.SourceID, cfg.Search.VariantLabel)
	return keys
}

func (p *Pipeline) fetchMissing(ctx context.Context) error {
	log := p.named("retry")
	tasks, err := report.ReadMissingTasks(p.cfg.Paths.MissingCSV, p.cfg.Missing.ModelFilter)
	if p.dryRun && errors.Is(err, fs.ErrNotExist) {
		log.Info("Dry run: would read tasks", "path", p.cfg.Paths.MissingCSV)
		return nil
	}
	if err != nil {
		return err
	}

	var fetcher retry.Fetcher
	if !p.dryRun {
		cat, err := p.requireCatalog()
		if err != nil {
			return err
		}
		fetcher = cat
	}
	driver := retry.NewDriver(fetcher, p.engine(), catalog.CriteriaFromConfig(p.cfg.Search),
		p.cfg.Paths.MissingCache, p.cfg.Paths.DataDir,
		retry.WithLogger(log),
		retry.WithKeepCache(p.cfg.Paths.KeepCache),
		retry.WithDryRun(p.dryRun),
	)
	outcomes := driver.Run(ctx, tasks)
	if p.dryRun {
		for _, o := range outcomes {
			log.Info("Planned", "task", o.Task.String(), "status", string(o.Status), "detail", o.Detail)
		}
		return nil
	}
	if err := report.WriteRetryReport(p.cfg.Paths.RetryReport, outcomes); err != nil {
		return err
	}
	return ctx.Err()
}
