package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cmipsync/internal/catalog"
	"cmipsync/internal/config"
	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/types"
	"cmipsync/internal/relocate"
)

// fakeCatalog returns one key per configured init year and materializes
// every key not marked broken as a single file in an ESGF-like layout.
type fakeCatalog struct {
	years     []int
	broken    map[int]bool
	searchErr error
	fetched   bool
}

func (f *fakeCatalog) Search(_ context.Context, c catalog.Criteria) ([]catalog.DatasetKey, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var keys []catalog.DatasetKey
	for _, y := range f.years {
		keys = append(keys, catalog.DatasetKey(fmt.Sprintf("CMIP6.%s.s%d-r1i1p1f1.v1|node", c.SourceID, y)))
	}
	return keys, nil
}

func (f *fakeCatalog) Fetch(_ context.Context, keys []catalog.DatasetKey, cacheDir string) (catalog.FetchResult, error) {
	f.fetched = true
	res := catalog.FetchResult{
		Requested: catalog.NewKeySet(keys...),
		Retrieved: catalog.NewKeySet(),
		Errors:    make(map[catalog.DatasetKey]error),
	}
	for i, k := range keys {
		year := f.years[i]
		if f.broken[year] {
			res.Errors[k] = errors.New("node offline")
			continue
		}
		member := fmt.Sprintf("s%d-r1i1p1f1", year)
		name := fmt.Sprintf("pr_Amon_MIROC6_dcppA-hindcast_%s_gn_%d11-%d12.nc", member, year, year+10)
		path := filepath.Join(cacheDir, "CMIP6", "MIROC6", member, "v1", name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return res, err
		}
		if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
			return res, err
		}
		res.Retrieved.Add(k)
		res.Files = append(res.Files, path)
		res.Bytes += 4
	}
	return res, nil
}

func testPaths(t *testing.T) types.PathsConfig {
	t.Helper()
	base := t.TempDir()
	paths := types.DefaultPathsConfig()
	paths.BaseDir = base
	paths.DataDir = filepath.Join(base, "datos")
	return paths
}

func newTestStage(f Fetcher, paths types.PathsConfig, opts ...StageOption) *Stage {
	log := logger.Discard()
	engine := relocate.NewEngine(relocate.WithLogger(log))
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	opts = append([]StageOption{WithLogger(log), WithClock(func() time.Time { return fixed })}, opts...)
	return NewStage(f, engine, paths, types.DefaultSearchConfig(), opts...)
}

func TestCacheDir(t *testing.T) {
	paths := types.PathsConfig{BaseDir: "/work", CachePrefix: "_cache_esgf"}
	if got := CacheDir(paths, "MIROC6"); got != "/work/_cache_esgf_miroc6" {
		t.Errorf("unexpected cache dir %s", got)
	}
}

func TestRunRelocatesAndLogsFailures(t *testing.T) {
	paths := testPaths(t)
	f := &fakeCatalog{years: []int{1960, 1961, 1962}, broken: map[int]bool{1961: true}}

	res, err := newTestStage(f, paths).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Fetch.Retrieved.Len() != 2 || res.Failed.Len() != 1 {
		t.Errorf("expected 2 retrieved and 1 failed, got %d and %d", res.Fetch.Retrieved.Len(), res.Failed.Len())
	}
	if res.Relocation.Moved != 2 {
		t.Errorf("expected 2 files relocated, got %d", res.Relocation.Moved)
	}
	for _, y := range []int{1960, 1962} {
		dir := filepath.Join(paths.DataDir, "MIROC6", "r1i1p1f1", fmt.Sprintf("s%d", y))
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) != 1 {
			t.Errorf("expected one file in %s, got %v (%v)", dir, entries, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(paths.DataDir, "descargas_fallidas_miroc6.csv"))
	if err != nil {
		t.Fatalf("failure log: %v", err)
	}
	if !strings.Contains(string(data), "s1961-r1i1p1f1") || !strings.Contains(string(data), "2024-03-01 10:00:00") {
		t.Errorf("unexpected failure log:\n%s", data)
	}
	if _, err := os.Stat(res.CacheDir); !os.IsNotExist(err) {
		t.Errorf("expected cache %s removed, got %v", res.CacheDir, err)
	}
}

func TestRunKeepCache(t *testing.T) {
	paths := testPaths(t)
	paths.KeepCache = true
	f := &fakeCatalog{years: []int{1960}}

	res, err := newTestStage(f, paths).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.FailedLog != "" {
		t.Errorf("expected no failure log, got %s", res.FailedLog)
	}
	if _, err := os.Stat(res.CacheDir); err != nil {
		t.Errorf("expected cache kept: %v", err)
	}
}

func TestRunNoResults(t *testing.T) {
	paths := testPaths(t)
	f := &fakeCatalog{}
	res, err := newTestStage(f, paths).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Keys) != 0 || f.fetched {
		t.Errorf("expected no fetch for an empty search, got %+v", res)
	}
}

func TestRunSearchError(t *testing.T) {
	f := &fakeCatalog{searchErr: errors.New("index down")}
	if _, err := newTestStage(f, testPaths(t)).Run(context.Background()); err == nil {
		t.Fatal("expected the search error to be returned")
	}
}

func TestRunRejectsMissingFacets(t *testing.T) {
	paths := testPaths(t)
	search := types.DefaultSearchConfig()
	search.VariableID = ""
	s := NewStage(&fakeCatalog{}, relocate.NewEngine(relocate.WithLogger(logger.Discard())), paths, search, WithLogger(logger.Discard()))

	_, err := s.Run(context.Background())
	var verr *config.ValidationError
	if !errors.As(err, &verr) || verr.Field != "search.variable_id" {
		t.Fatalf("expected a validation error for variable_id, got %v", err)
	}
}

func TestRunDryRun(t *testing.T) {
	paths := testPaths(t)
	f := &fakeCatalog{years: []int{1960}}
	res, err := newTestStage(f, paths, WithDryRun(true)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.fetched {
		t.Error("dry run must not fetch")
	}
	if _, err := os.Stat(res.CacheDir); !os.IsNotExist(err) {
		t.Errorf("dry run must not create the cache, got %v", err)
	}
}
