package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"

	"cmipsync/internal/core/types"
)

func newParser(t *testing.T, cli *CLI) *kong.Kong {
	t.Helper()
	parser, err := kong.New(cli, kong.Vars{"version": "test", "config_file": "cmipsync.yaml"}, kong.Exit(func(int) {}))
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	return parser
}

func TestParsePipelineStages(t *testing.T) {
	var cli CLI
	if _, err := newParser(t, &cli).Parse([]string{"--dry-run", "pipeline", "download", "qa", "--source-id", "EC-Earth3"}); err != nil {
		t.Fatal(err)
	}
	if !cli.DryRun || cli.Pipeline.SourceID != "EC-Earth3" || len(cli.Pipeline.Stages) != 2 {
		t.Errorf("unexpected parse result %+v", cli)
	}
}

func TestParseDefaultsToPipeline(t *testing.T) {
	var cli CLI
	kctx, err := newParser(t, &cli).Parse([]string{"--dry-run"})
	if err != nil {
		t.Fatal(err)
	}
	if node := kctx.Selected(); node == nil || node.Name != "pipeline" {
		t.Fatalf("expected the pipeline command, got %v", node)
	}
	if !cli.DryRun || len(cli.Pipeline.Stages) != 0 {
		t.Errorf("unexpected parse result %+v", cli)
	}

	cli = CLI{}
	kctx, err = newParser(t, &cli).Parse([]string{"qa"})
	if err != nil {
		t.Fatal(err)
	}
	if node := kctx.Selected(); node == nil || node.Name != "qa" {
		t.Errorf("expected the qa command, got %v", node)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &types.Config{
		Paths:   types.DefaultPathsConfig(),
		Catalog: types.DefaultCatalogConfig(),
		Search:  types.DefaultSearchConfig(),
	}
	cfg.Paths.ReportDir = cfg.Paths.DataDir

	applyOverrides(cfg, Overrides{
		Catalog:     "s3",
		SourceID:    "EC-Earth3",
		DataDir:     "/data/cmip6",
		Start:       1960,
		KeepCache:   true,
		Concurrency: 8,
	})

	if cfg.Catalog.Type != "s3" || cfg.Search.SourceID != "EC-Earth3" {
		t.Errorf("catalog overrides not applied: %+v %+v", cfg.Catalog, cfg.Search)
	}
	if cfg.Search.VariableID != "pr" {
		t.Errorf("unset override replaced variable_id: %q", cfg.Search.VariableID)
	}
	if cfg.Paths.DataDir != "/data/cmip6" || cfg.Paths.ReportDir != "/data/cmip6" {
		t.Errorf("expected reports to follow the data dir, got %+v", cfg.Paths)
	}
	if cfg.Missing.Start == nil || *cfg.Missing.Start != 1960 || cfg.Missing.End != nil {
		t.Errorf("unexpected range %v %v", cfg.Missing.Start, cfg.Missing.End)
	}
	if !cfg.Paths.KeepCache || cfg.Catalog.Concurrency != 8 {
		t.Errorf("unexpected paths/catalog %+v %+v", cfg.Paths, cfg.Catalog)
	}
}

func TestLoadConfigRejectsInvertedRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmipsync.yaml")
	if err := os.WriteFile(path, []byte("missing:\n  start: 1970\n  end: 1960\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(&Globals{ConfigFile: path}, Overrides{}); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestInitConfigWritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out", "cmipsync.yaml")
	cmd := &InitConfigCmd{Output: out, Overrides: Overrides{SourceID: "CanESM5"}}
	cli := &CLI{Globals: Globals{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")}}
	if err := cmd.Run(cli); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(&Globals{ConfigFile: out}, Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.SourceID != "CanESM5" {
		t.Errorf("expected the override persisted, got %q", cfg.Search.SourceID)
	}
}
