package main

import (
	"os"

	"github.com/mattn/go-isatty"

	"cmipsync/internal/catalog"
	"cmipsync/internal/config"
	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/progress"
	"cmipsync/internal/core/types"
	"cmipsync/internal/pipeline"
)

type PipelineCmd struct {
	Overrides
	Stages []string `arg:"" optional:"" help:"Stages to run: explore, download, reorganize, prune-fx, qa, detect-missing, fetch-missing, qa-final"`
}

func (c *PipelineCmd) Run(cli *CLI) error {
	stages, err := pipeline.ParseNames(c.Stages)
	if err != nil {
		return err
	}
	return runStages(&cli.Globals, c.Overrides, stages...)
}

type ExploreCmd struct{ Overrides }

func (c *ExploreCmd) Run(cli *CLI) error {
	return runStages(&cli.Globals, c.Overrides, pipeline.Explore)
}

type DownloadCmd struct{ Overrides }

func (c *DownloadCmd) Run(cli *CLI) error {
	return runStages(&cli.Globals, c.Overrides, pipeline.Download)
}

type ReorganizeCmd struct{ Overrides }

func (c *ReorganizeCmd) Run(cli *CLI) error {
	return runStages(&cli.Globals, c.Overrides, pipeline.Reorganize)
}

type PruneFXCmd struct{ Overrides }

func (c *PruneFXCmd) Run(cli *CLI) error {
	return runStages(&cli.Globals, c.Overrides, pipeline.PruneFX)
}

type QACmd struct{ Overrides }

func (c *QACmd) Run(cli *CLI) error {
	return runStages(&cli.Globals, c.Overrides, pipeline.QA)
}

type DetectMissingCmd struct{ Overrides }

func (c *DetectMissingCmd) Run(cli *CLI) error {
	return runStages(&cli.Globals, c.Overrides, pipeline.DetectMissing)
}

type FetchMissingCmd struct{ Overrides }

func (c *FetchMissingCmd) Run(cli *CLI) error {
	return runStages(&cli.Globals, c.Overrides, pipeline.FetchMissing)
}

type InitConfigCmd struct {
	Overrides
	Output string `arg:"" optional:"" default:"cmipsync.yaml" help:"Destination file"`
}

func (c *InitConfigCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(&cli.Globals, c.Overrides)
	if err != nil {
		return err
	}
	if err := config.WriteConfig(c.Output, cfg); err != nil {
		return err
	}
	logger.NewLogger(logger.WithName("cmipsync")).Info("Configuration written", "path", c.Output)
	return nil
}

// loadConfig reads the config file, applies the overrides and validates
// the result.
func loadConfig(g *Globals, o Overrides) (*types.Config, error) {
	cfg, err := config.LoadConfig(config.ResolveConfigPath(g.ConfigFile))
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, o)
	if g.Debug {
		cfg.Debug = true
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *types.Config, o Overrides) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Catalog.Type, o.Catalog)
	set(&cfg.Search.SourceID, o.SourceID)
	set(&cfg.Search.ExperimentID, o.ExperimentID)
	set(&cfg.Search.VariableID, o.VariableID)
	set(&cfg.Search.TableID, o.TableID)
	set(&cfg.Search.GridLabel, o.GridLabel)
	set(&cfg.Search.VariantLabel, o.VariantLabel)
	set(&cfg.Search.SubExperimentID, o.SubExperimentID)
	set(&cfg.Paths.BaseDir, o.BaseDir)
	set(&cfg.Paths.ReportDir, o.ReportDir)
	set(&cfg.Paths.MissingCSV, o.MissingCSV)
	set(&cfg.Missing.ModelFilter, o.ModelFilter)
	if o.DataDir != "" {
		// Reports follow the data tree unless placed explicitly.
		if cfg.Paths.ReportDir == cfg.Paths.DataDir && o.ReportDir == "" {
			cfg.Paths.ReportDir = o.DataDir
		}
		cfg.Paths.DataDir = o.DataDir
	}
	if o.Start > 0 {
		cfg.Missing.Start = types.IntPtr(o.Start)
	}
	if o.End > 0 {
		cfg.Missing.End = types.IntPtr(o.End)
	}
	if o.KeepCache {
		cfg.Paths.KeepCache = true
	}
	if o.Concurrency > 0 {
		cfg.Catalog.Concurrency = o.Concurrency
	}
}

func runStages(g *Globals, o Overrides, stages ...pipeline.Name) error {
	ctx, cancel := types.DefaultSignalNotifySubContext()
	defer cancel()

	cfg, err := loadConfig(g, o)
	if err != nil {
		return err
	}
	logger.SetDebug(cfg.Debug)
	log := logger.NewLogger(logger.WithName("cmipsync"))

	prog := progress.Disabled()
	if types.Bool(cfg.Catalog.Progress, true) && isatty.IsTerminal(os.Stderr.Fd()) {
		prog = progress.NewProgress()
	}
	defer prog.Wait()

	cat, err := catalog.New(cfg.Catalog, catalog.WithLogger(log.Named("catalog")), catalog.WithProgress(prog))
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, cat, pipeline.WithLogger(log.Named("pipeline")), pipeline.WithDryRun(g.DryRun))
	_, err = p.Run(ctx, stages...)
	return err
}
