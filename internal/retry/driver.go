package retry

import (
	"context"
	"fmt"
	"os"

	"cmipsync/internal/catalog"
	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/types"
	"cmipsync/internal/relocate"
)

// Fetcher is the part of a catalog the retry driver needs.
type Fetcher interface {
	Search(ctx context.Context, criteria catalog.Criteria) ([]catalog.DatasetKey, error)
	Fetch(ctx context.Context, keys []catalog.DatasetKey, cacheDir string) (catalog.FetchResult, error)
}

// TaskOutcome is one row of the retry report.
type TaskOutcome struct {
	Task   DownloadTask
	Status types.TaskStatus
	Detail string
}

// TaskCriteria narrows base to the task's model, ensemble and year.
func TaskCriteria(base catalog.Criteria, task DownloadTask) catalog.Criteria {
	c := base
	c.SourceID = task.Model
	c.VariantLabel = task.Ensemble
	c.SubExperimentID = task.SubExperiment()
	return c
}

// RunTask searches and fetches one task into cacheDir. Collaborator errors
// are folded into the outcome and never returned.
func RunTask(ctx context.Context, task DownloadTask, fetcher Fetcher, base catalog.Criteria, cacheDir string) TaskOutcome {
	out := TaskOutcome{Task: task}

	keys, err := fetcher.Search(ctx, TaskCriteria(base, task))
	if err != nil {
		out.Status, out.Detail = types.TaskError, err.Error()
		return out
	}
	if len(keys) == 0 {
		out.Status, out.Detail = types.TaskNoResults, "No hay resultados en el catalogo para esa combinacion."
		return out
	}

	result, err := fetcher.Fetch(ctx, keys, cacheDir)
	if err != nil {
		out.Status, out.Detail = types.TaskError, err.Error()
		return out
	}
	if result.Retrieved.Len() == 0 {
		out.Status, out.Detail = types.TaskFetchIncomplete, "La busqueda devolvio resultados, pero no se pudo descargar."
		return out
	}
	out.Status, out.Detail = types.TaskFetched, fmt.Sprintf("Datasets descargados: %d", result.Retrieved.Len())
	return out
}

// Driver runs tasks sequentially and relocates each fetch into the canonical
// tree before the next task starts.
type Driver struct {
	fetcher   Fetcher
	engine    *relocate.Engine
	criteria  catalog.Criteria
	cacheDir  string
	destRoot  string
	keepCache bool
	dryRun    bool
	log       *logger.Logger
}

type DriverOption func(*Driver)

func WithLogger(l *logger.Logger) DriverOption {
	return func(d *Driver) {
		d.log = l
	}
}

// WithKeepCache leaves the fetch cache on disk after the run.
func WithKeepCache(keep bool) DriverOption {
	return func(d *Driver) {
		d.keepCache = keep
	}
}

// WithDryRun reports what each task would do without searching.
func WithDryRun(dryRun bool) DriverOption {
	return func(d *Driver) {
		d.dryRun = dryRun
	}
}

func NewDriver(fetcher Fetcher, engine *relocate.Engine, criteria catalog.Criteria, cacheDir, destRoot string, opts ...DriverOption) *Driver {
	d := &Driver{
		fetcher:  fetcher,
		engine:   engine,
		criteria: criteria,
		cacheDir: cacheDir,
		destRoot: destRoot,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.NewLogger(logger.WithName("retry"))
	}
	return d
}

// Run processes tasks in order and returns one outcome per task started.
// Cancellation stops the loop between tasks.
func (d *Driver) Run(ctx context.Context, tasks []DownloadTask) []TaskOutcome {
	outcomes := make([]TaskOutcome, 0, len(tasks))
	d.log.Info("Tasks to process", "count", len(tasks))

	for i, task := range tasks {
		if types.Interrupted(ctx) {
			d.log.Warn("Retry interrupted", "done", i, "remaining", len(tasks)-i)
			break
		}
		d.log.Info(fmt.Sprintf("[%d/%d] %s", i+1, len(tasks), task))
		outcomes = append(outcomes, d.runOne(ctx, task))
	}

	if !d.dryRun && !d.keepCache {
		if err := os.RemoveAll(d.cacheDir); err != nil {
			d.log.Warn("Failed to remove fetch cache", "dir", d.cacheDir, "error", err)
		}
	}

	d.logSummary(outcomes)
	return outcomes
}

func (d *Driver) runOne(ctx context.Context, task DownloadTask) TaskOutcome {
	if AlreadySatisfied(task, d.destRoot) {
		return TaskOutcome{Task: task, Status: types.TaskAlreadyExists, Detail: "Ya habia al menos un .nc en destino."}
	}
	if d.dryRun {
		return TaskOutcome{
			Task:   task,
			Status: types.TaskPlanned,
			Detail: "Busqueda planificada: " + TaskCriteria(d.criteria, task).String(),
		}
	}

	out := RunTask(ctx, task, d.fetcher, d.criteria, d.cacheDir)
	if out.Status == types.TaskError {
		d.log.Warn("Task failed", "task", task.String(), "error", out.Detail)
	}
	if out.Status.NeedsRelocation() {
		s := d.engine.Sweep(ctx, []string{d.cacheDir}, d.destRoot)
		out.Detail = fmt.Sprintf("%s | movidos=%d, omitidos=%d, errores_mov=%d",
			out.Detail, s.Moved, s.Exists, s.Unparseable+s.Errors)
	}
	return out
}

func (d *Driver) logSummary(outcomes []TaskOutcome) {
	counts := make(map[types.TaskStatus]int)
	var ok, failed int
	for _, o := range outcomes {
		counts[o.Status]++
		switch {
		case o.Status.IsSuccess():
			ok++
		case o.Status.IsFailure():
			failed++
		}
	}
	d.log.Info("Retry finished",
		"tasks", len(outcomes),
		"ok", ok,
		"failed", failed,
		"fetched", counts[types.TaskFetched],
		"already_exists", counts[types.TaskAlreadyExists],
		"no_results", counts[types.TaskNoResults],
		"fetch_incomplete", counts[types.TaskFetchIncomplete],
		"errors", counts[types.TaskError],
	)
}
