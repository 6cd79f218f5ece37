// Package download runs the main download stage: search the catalog, fetch
// every dataset into a per-model cache, log the failures and relocate the
// cache into the canonical tree.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cmipsync/internal/catalog"
	"cmipsync/internal/config"
	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/types"
	"cmipsync/internal/relocate"
	"cmipsync/internal/report"
)

// Fetcher is the part of a catalog the stage needs.
type Fetcher interface {
	Search(ctx context.Context, criteria catalog.Criteria) ([]catalog.DatasetKey, error)
	Fetch(ctx context.Context, keys []catalog.DatasetKey, cacheDir string) (catalog.FetchResult, error)
}

// Result is what one run of the stage did.
type Result struct {
	CacheDir   string
	Keys       []catalog.DatasetKey
	Fetch      catalog.FetchResult
	Failed     catalog.KeySet
	FailedLog  string // empty when nothing failed
	Relocation relocate.Summary
}

// CacheDir is the per-model fetch cache below the base directory.
func CacheDir(paths types.PathsConfig, model string) string {
	return filepath.Join(paths.BaseDir, paths.CachePrefix+"_"+strings.ToLower(model))
}

// Stage is the main download stage.
type Stage struct {
	fetcher Fetcher
	engine  *relocate.Engine
	paths   types.PathsConfig
	search  types.SearchConfig
	dryRun  bool
	log     *logger.Logger
	now     func() time.Time
}

type StageOption func(*Stage)

func WithLogger(l *logger.Logger) StageOption {
	return func(s *Stage) {
		s.log = l
	}
}

// WithDryRun logs the search that would run and stops.
func WithDryRun(dryRun bool) StageOption {
	return func(s *Stage) {
		s.dryRun = dryRun
	}
}

// WithClock overrides the timestamp written to the failure log.
func WithClock(now func() time.Time) StageOption {
	return func(s *Stage) {
		s.now = now
	}
}

func NewStage(fetcher Fetcher, engine *relocate.Engine, paths types.PathsConfig, search types.SearchConfig, opts ...StageOption) *Stage {
	s := &Stage{
		fetcher: fetcher,
		engine:  engine,
		paths:   paths,
		search:  search,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewLogger(logger.WithName("download"))
	}
	return s
}

// Run executes the stage. Invalid criteria and search failures are
// returned; per-dataset fetch failures are logged to the failure CSV.
func (s *Stage) Run(ctx context.Context) (Result, error) {
	if err := config.ValidateSearch(s.search); err != nil {
		return Result{}, err
	}
	criteria := catalog.CriteriaFromConfig(s.search)
	res := Result{CacheDir: CacheDir(s.paths, criteria.SourceID)}

	if s.dryRun {
		s.log.Info("Dry run: would search and download",
			"criteria", criteria.String(),
			"cache", res.CacheDir,
			"data_dir", s.paths.DataDir,
		)
		return res, nil
	}

	s.log.Info("Searching catalog", "criteria", criteria.String())
	keys, err := s.fetcher.Search(ctx, criteria)
	if err != nil {
		return res, fmt.Errorf("search: %w", err)
	}
	res.Keys = keys
	if len(keys) == 0 {
		s.log.Warn("No datasets found for the search", "criteria", criteria.String())
		return res, nil
	}
	s.log.Info("Datasets found", "count", len(keys))

	if err := os.MkdirAll(res.CacheDir, 0o755); err != nil {
		return res, fmt.Errorf("create cache %s: %w", res.CacheDir, err)
	}
	res.Fetch, err = s.fetcher.Fetch(ctx, keys, res.CacheDir)
	if err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}

	res.Failed = catalog.FindFailedKeys(catalog.NewKeySet(keys...), res.Fetch.Retrieved)
	if res.Failed.Len() > 0 {
		res.FailedLog = report.FailedDownloadsPath(s.paths.DataDir, criteria.SourceID)
		if err := report.AppendFailedDownloads(res.FailedLog, criteria.SourceID, res.Failed, report.DefaultFailureReason, s.now()); err != nil {
			return res, err
		}
		for _, k := range res.Failed.Sorted() {
			s.log.Warn("Dataset not downloaded", "dataset", string(k), "error", res.Fetch.Errors[k])
		}
	}
	s.log.Info("Download finished",
		"requested", len(keys),
		"retrieved", res.Fetch.Retrieved.Len(),
		"failed", res.Failed.Len(),
		"files", len(res.Fetch.Files),
		"size", res.Fetch.Bytes.String(),
		"failed_log", res.FailedLog,
	)

	if types.Interrupted(ctx) {
		return res, ctx.Err()
	}
	res.Relocation = s.engine.Sweep(ctx, []string{res.CacheDir}, s.paths.DataDir)

	if !s.paths.KeepCache {
		if err := os.RemoveAll(res.CacheDir); err != nil {
			s.log.Warn("Failed to remove fetch cache", "dir", res.CacheDir, "error", err)
		}
	}
	return res, nil
}
