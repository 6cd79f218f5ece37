package relocate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cmipsync/internal/completeness"
	"cmipsync/internal/core/logger"
)

const (
	file1960 = "pr_Amon_MIROC6_dcppA-hindcast_s1960-r1i1p1f1_gn_196011-197012.nc"
	file1962 = "pr_Amon_MIROC6_dcppA-hindcast_s1962-r1i1p1f1_gn_196211-197212.nc"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func newTestEngine() *Engine {
	return NewEngine(WithLogger(logger.Discard()))
}

func TestMoveNoReplace(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "a.nc"), "a")
	dst := filepath.Join(dir, "b.nc")

	if err := MoveNoReplace(src, dst); err != nil {
		t.Fatalf("MoveNoReplace: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone after a move")
	}
	if got := readFile(t, dst); got != "a" {
		t.Errorf("unexpected destination content %q", got)
	}

	src2 := writeFile(t, filepath.Join(dir, "c.nc"), "c")
	if err := MoveNoReplace(src2, dst); !errors.Is(err, ErrDestinationExists) {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}
	if got := readFile(t, dst); got != "a" {
		t.Errorf("destination was overwritten: %q", got)
	}
	if got := readFile(t, src2); got != "c" {
		t.Errorf("source was modified: %q", got)
	}
}

func TestCopyToTemp(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "src.nc"), "payload")

	tmp, err := copyToTemp(src, dir)
	if err != nil {
		t.Fatalf("copyToTemp: %v", err)
	}
	if got := readFile(t, tmp); got != "payload" {
		t.Errorf("unexpected copy %q", got)
	}
	if got := readFile(t, src); got != "payload" {
		t.Errorf("source changed: %q", got)
	}
}

func TestRelocateUsesNameThenAncestors(t *testing.T) {
	root := t.TempDir()
	cache := filepath.Join(root, "_cache_esgf_miroc6")
	dest := filepath.Join(root, "datos")

	own := writeFile(t, filepath.Join(cache, "CMIP6", "s1999-r9i1p1f1", file1960), "own")
	// Name has no member field, the nearest ancestor decides.
	odd := writeFile(t, filepath.Join(cache, "s1970-r2i1p1f1", "v1", "s1971-r3i1p1f1", "pr_Amon_MIROC6_odd.nc"), "odd")

	summary := newTestEngine().Relocate(context.Background(), []string{own, odd}, dest)
	if summary.Moved != 2 || summary.Errors != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := readFile(t, filepath.Join(dest, "MIROC6", "r1i1p1f1", "s1960", file1960)); got != "own" {
		t.Errorf("unexpected content %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "MIROC6", "r3i1p1f1", "s1971", "pr_Amon_MIROC6_odd.nc")); got != "odd" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestRelocateUnparseable(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "datos")
	short := writeFile(t, filepath.Join(root, "cache", "s1960-r1i1p1f1", "pr_Amon.nc"), "x")
	nomember := writeFile(t, filepath.Join(root, "cache", "plain", "pr_Amon_MIROC6_x.nc"), "y")

	summary := newTestEngine().Relocate(context.Background(), []string{short, nomember}, dest)
	if summary.Processed != 2 || summary.Unparseable != 2 || summary.Moved != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, o := range summary.Outcomes {
		if o.Kind != SkippedUnparseable || o.Destination != "" {
			t.Errorf("unexpected outcome %+v", o)
		}
	}
	if readFile(t, short) != "x" || readFile(t, nomember) != "y" {
		t.Error("unparseable files must be left untouched")
	}
}

func TestRelocateRejectsEscapingNames(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "datos")
	up := writeFile(t, filepath.Join(root, "cache", "up", "pr_Amon_.._dcppA-hindcast_s1960-r1i1p1f1_gn_196011-197012.nc"), "up")
	dot := writeFile(t, filepath.Join(root, "cache", "dot", "pr_Amon_._dcppA-hindcast_s1960-r1i1p1f1_gn_196011-197012.nc"), "dot")

	summary := newTestEngine().Relocate(context.Background(), []string{up, dot}, dest)
	if summary.Processed != 2 || summary.Unparseable != 2 || summary.Moved != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if readFile(t, up) != "up" || readFile(t, dot) != "dot" {
		t.Error("rejected files must be left untouched")
	}
	if _, err := os.Stat(filepath.Join(root, "r1i1p1f1")); !os.IsNotExist(err) {
		t.Error("nothing may be created outside the destination root")
	}
}

func TestRelocateCountsFilesystemErrors(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "datos")
	// A plain file where the model directory should be.
	writeFile(t, filepath.Join(dest, "MIROC6"), "blocker")
	blocked := writeFile(t, filepath.Join(root, "cache", file1960), "blocked")
	other := "pr_Amon_EC-Earth3_dcppA-hindcast_s1960-r1i1p1f1_gr_196011-197012.nc"
	ok := writeFile(t, filepath.Join(root, "cache", other), "ok")

	summary := newTestEngine().Relocate(context.Background(), []string{blocked, ok}, dest)
	if summary.Processed != 2 || summary.Moved != 1 || summary.Errors != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Outcomes[0].Kind != Failed || summary.Outcomes[0].Err == nil {
		t.Errorf("expected the blocked file to fail, got %+v", summary.Outcomes[0])
	}
	if readFile(t, blocked) != "blocked" {
		t.Error("a failed move must leave the source in place")
	}
	if got := readFile(t, filepath.Join(dest, "EC-Earth3", "r1i1p1f1", "s1960", other)); got != "ok" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestSweepCountsUnreadableRoot(t *testing.T) {
	root := t.TempDir()
	plain := writeFile(t, filepath.Join(root, "not-a-dir"), "x")
	cache := filepath.Join(root, "_cache_esgf")
	writeFile(t, filepath.Join(cache, "s1960-r1i1p1f1", file1960), "1")

	summary := newTestEngine().Sweep(context.Background(), []string{filepath.Join(plain, "sub"), cache}, filepath.Join(root, "datos"))
	if summary.Processed != 2 || summary.Errors != 1 || summary.Moved != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Processed != summary.Moved+summary.Skipped()+summary.Errors {
		t.Errorf("totals do not add up: %+v", summary)
	}
}

func TestRelocateNeverOverwrites(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "datos")
	existing := writeFile(t, filepath.Join(dest, "MIROC6", "r1i1p1f1", "s1960", file1960), "original")
	src := writeFile(t, filepath.Join(root, "cache", "s1960-r1i1p1f1", file1960), "incoming")

	summary := newTestEngine().Relocate(context.Background(), []string{src}, dest)
	if summary.Exists != 1 || summary.Skipped() != 1 || summary.Moved != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := readFile(t, existing); got != "original" {
		t.Errorf("destination overwritten: %q", got)
	}
	if got := readFile(t, src); got != "incoming" {
		t.Errorf("source modified: %q", got)
	}
}

func TestRelocateIdempotent(t *testing.T) {
	root := t.TempDir()
	cache := filepath.Join(root, "_cache_esgf")
	dest := filepath.Join(root, "datos")
	writeFile(t, filepath.Join(cache, "s1960-r1i1p1f1", file1960), "1")
	writeFile(t, filepath.Join(cache, "s1962-r1i1p1f1", file1962), "2")

	e := newTestEngine()
	first := e.Sweep(context.Background(), []string{cache}, dest)
	if first.Moved != 2 {
		t.Fatalf("first sweep: %+v", first)
	}
	second := e.Sweep(context.Background(), []string{cache}, dest)
	if second.Processed != 0 || second.Moved != 0 || second.Errors != 0 {
		t.Fatalf("second sweep should find nothing, got %+v", second)
	}
	files, err := DataFiles(context.Background(), dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("expected 2 files in the canonical tree, got %v", files)
	}
}

func TestRelocateDryRun(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "datos")
	src := writeFile(t, filepath.Join(root, "cache", "s1960-r1i1p1f1", file1960), "1")

	e := NewEngine(WithLogger(logger.Discard()), WithDryRun(true))
	summary := e.Relocate(context.Background(), []string{src}, dest)
	if summary.Moved != 1 {
		t.Fatalf("expected a planned move, got %+v", summary)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("dry run must not create the destination tree")
	}
	if readFile(t, src) != "1" {
		t.Error("dry run must not touch the source")
	}
}

func TestRelocateStopsWhenCancelled(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, filepath.Join(root, "cache", "s1960-r1i1p1f1", file1960), "1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := newTestEngine().Relocate(ctx, []string{src}, filepath.Join(root, "datos"))
	if summary.Processed != 0 {
		t.Fatalf("expected nothing processed after cancel, got %+v", summary)
	}
}

func TestCacheDirs(t *testing.T) {
	base := t.TempDir()
	for _, d := range []string{"_cache_esgf_miroc6", "_cache_esgf_faltantes", "datos", "other_cache_esgf"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(base, "_cache_esgf_file"), "not a dir")

	dirs, err := CacheDirs(base, "_cache_esgf")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(base, "_cache_esgf_faltantes"), filepath.Join(base, "_cache_esgf_miroc6")}
	if len(dirs) != 2 || dirs[0] != want[0] || dirs[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, dirs)
	}
}

func TestEndToEndMIROC6(t *testing.T) {
	root := t.TempDir()
	cache := filepath.Join(root, "_cache_esgf_miroc6", "CMIP6", "DCPP", "MIROC", "MIROC6", "dcppA-hindcast")
	dest := filepath.Join(root, "datos")
	writeFile(t, filepath.Join(cache, "s1960-r1i1p1f1", "Amon", "pr", "gn", "v20190311", file1960), "1")
	writeFile(t, filepath.Join(cache, "s1962-r1i1p1f1", "Amon", "pr", "gn", "v20190311", file1962), "2")

	roots, err := CacheDirs(root, "_cache_esgf")
	if err != nil {
		t.Fatal(err)
	}
	summary := newTestEngine().Sweep(context.Background(), roots, dest)
	if summary.Moved != 2 || summary.Errors != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, p := range []string{
		filepath.Join(dest, "MIROC6", "r1i1p1f1", "s1960", file1960),
		filepath.Join(dest, "MIROC6", "r1i1p1f1", "s1962", file1962),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}

	scan, err := completeness.Scan(context.Background(), dest, "")
	if err != nil {
		t.Fatal(err)
	}
	records, err := completeness.ComputeMissingYears(scan.Observations, completeness.Range{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one group, got %+v", records)
	}
	if got := records[0].Missing; len(got) != 1 || got[0] != 1961 {
		t.Errorf("expected missing [1961], got %v", got)
	}
}
