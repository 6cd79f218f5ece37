package main

import (
	"github.com/alecthomas/kong"

	"cmipsync/internal/core/logger"
)

// Globals are shared by every command.
type Globals struct {
	ConfigFile string `short:"c" long:"config" default:"${config_file}" help:"Path to config file"`
	Debug      bool   `short:"d" long:"debug" help:"Enable debug logging"`
	DryRun     bool   `short:"n" long:"dry-run" help:"Print planned actions without touching files or the network"`
}

// Overrides replace configuration values for one run.
type Overrides struct {
	Catalog         string `long:"catalog" help:"Catalog type (esgf, s3)"`
	SourceID        string `long:"source-id" help:"Model (source_id) to search"`
	ExperimentID    string `long:"experiment-id" help:"Experiment facet"`
	VariableID      string `long:"variable-id" help:"Variable facet"`
	TableID         string `long:"table-id" help:"Table facet"`
	GridLabel       string `long:"grid-label" help:"Grid facet"`
	VariantLabel    string `long:"variant-label" help:"Ensemble member facet"`
	SubExperimentID string `long:"sub-experiment-id" help:"Initialization year facet (sYYYY)"`
	BaseDir         string `long:"base-dir" help:"Directory holding the fetch caches"`
	DataDir         string `long:"data-dir" help:"Canonical data tree"`
	ReportDir       string `long:"report-dir" help:"Directory for QA reports"`
	MissingCSV      string `long:"missing-csv" help:"Missing-years report path"`
	ModelFilter     string `long:"model-filter" help:"Only consider models containing this text"`
	Start           int    `long:"start" help:"First expected initialization year"`
	End             int    `long:"end" help:"Last expected initialization year"`
	KeepCache       bool   `long:"keep-cache" help:"Keep fetch caches after relocation"`
	Concurrency     int    `long:"concurrency" help:"Concurrent file downloads"`
}

type CLI struct {
	Globals

	Version       kong.VersionFlag `short:"v" long:"version" help:"Print version and exit"`
	Pipeline      PipelineCmd      `cmd:"pipeline" default:"withargs" help:"Run stages in order (all stages when none given)"`
	Explore       ExploreCmd       `cmd:"explore" help:"List facet combinations available in the catalog"`
	Download      DownloadCmd      `cmd:"download" help:"Search, fetch and relocate datasets"`
	Reorganize    ReorganizeCmd    `cmd:"reorganize" help:"Relocate leftover fetch caches into the data tree"`
	PruneFX       PruneFXCmd       `cmd:"prune-fx" help:"Delete fixed-field (fx) data"`
	QA            QACmd            `cmd:"qa" help:"Audit the data tree and write quality metrics"`
	DetectMissing DetectMissingCmd `cmd:"detect-missing" help:"Write the missing initialization years report"`
	FetchMissing  FetchMissingCmd  `cmd:"fetch-missing" help:"Download the years listed in the missing report"`
	InitConfig    InitConfigCmd    `cmd:"init-config" help:"Write the effective configuration to a file"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(
		&cli,
		kong.Vars{
			"version":     "0.1.0",
			"config_file": "cmipsync.yaml",
		},
		kong.Name("cmipsync"),
		kong.Description("Acquire, reorganize and audit CMIP6 decadal hindcast data."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	logger.SetDebug(cli.Debug)
	kctx.FatalIfErrorf(kctx.Run(&cli))
}
