package types

import (
	"time"
)

// Config is the top-level configuration structure
type Config struct {
	Debug   bool          `yaml:"debug"`
	Paths   PathsConfig   `yaml:"paths"`
	Catalog CatalogConfig `yaml:"catalog"`
	Search  SearchConfig  `yaml:"search"`
	Missing MissingConfig `yaml:"missing"`
	QA      QAConfig      `yaml:"qa"`
}

// PathsConfig locates every directory and report a run touches.
type PathsConfig struct {
	BaseDir      string `yaml:"base_dir"`      // Directory holding the per-model fetch caches
	DataDir      string `yaml:"data_dir"`      // Canonical model/ensemble/sYEAR tree
	CachePrefix  string `yaml:"cache_prefix"`  // Name prefix that marks a fetch cache directory
	MissingCache string `yaml:"missing_cache"` // Fetch cache used while re-downloading gaps
	MissingCSV   string `yaml:"missing_csv"`   // Missing-years report
	RetryReport  string `yaml:"retry_report"`  // Per-task retry report
	ReportDir    string `yaml:"report_dir"`    // QA outputs (defaults to DataDir)
	KeepCache    bool   `yaml:"keep_cache"`    // Leave the fetch cache in place after relocation
}

// CatalogConfig selects and tunes the remote catalog collaborator.
type CatalogConfig struct {
	Type string `yaml:"type"` // esgf or s3

	// ESGF search settings
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Token   string            `yaml:"token"`

	// S3 mirror settings
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // S3-compatible endpoint, empty for AWS
	Profile  string `yaml:"profile"`
	Public   *bool  `yaml:"public"` // Anonymous credentials, default true

	// Transfer settings
	Timeout         string `yaml:"timeout"`
	Concurrency     int    `yaml:"concurrency"`
	RateLimit       Bytes  `yaml:"rate_limit"` // Bytes per second, 0 = unlimited
	MaxRetries      *int   `yaml:"max_retries"` // Extra attempts on transient errors, 0 = none
	VerifyChecksums *bool  `yaml:"verify_checksums"`
	Progress        *bool  `yaml:"progress"`
}

// SearchConfig holds the catalog search facets.
type SearchConfig struct {
	ExperimentID    string `yaml:"experiment_id"`
	TableID         string `yaml:"table_id"`
	VariableID      string `yaml:"variable_id"`
	SourceID        string `yaml:"source_id"`
	GridLabel       string `yaml:"grid_label"`
	VariantLabel    string `yaml:"variant_label"`
	SubExperimentID string `yaml:"sub_experiment_id"`
	Latest          *bool  `yaml:"latest"`
}

// MissingConfig bounds the expected initialization-year range.
type MissingConfig struct {
	Start       *int   `yaml:"start"`
	End         *int   `yaml:"end"`
	ModelFilter string `yaml:"model_filter"`

	// Expected lists model/ensemble pairs that are reported even when no
	// file of theirs is on disk. Only used with an explicit start and end.
	Expected []ExpectedGroup `yaml:"expected,omitempty"`
}

// ExpectedGroup names one model/ensemble pair.
type ExpectedGroup struct {
	SourceID     string `yaml:"source_id"`
	VariantLabel string `yaml:"variant_label"`
}

// QAConfig tunes the quality audit.
type QAConfig struct {
	SizeThreshold float64 `yaml:"size_threshold"` // Relative deviation that flags a size anomaly
	MinFileSize   Bytes   `yaml:"min_file_size"`  // Files smaller than this are always flagged
	Metrics       *bool   `yaml:"metrics"`        // Open files and compute data metrics
	Workers       int     `yaml:"workers"`        // Files read concurrently for metrics
}

// ParseDuration parses a duration string with fallback to default
func ParseDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	if dur, err := time.ParseDuration(durationStr); err == nil {
		return dur
	}
	return defaultDuration
}

// Bool dereferences an optional flag.
func Bool(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}

func BoolPtr(b bool) *bool {
	return &b
}

func IntPtr(i int) *int {
	return &i
}

// Int dereferences an optional number.
func Int(i *int, fallback int) int {
	if i == nil {
		return fallback
	}
	return *i
}

// DefaultPathsConfig mirrors the directory names the downstream QA tooling expects.
func DefaultPathsConfig() PathsConfig {
	return PathsConfig{
		BaseDir:      ".",
		DataDir:      "datos",
		CachePrefix:  "_cache_esgf",
		MissingCache: "_cache_esgf_faltantes",
		MissingCSV:   "anios_faltantes_modelo_ensamble.csv",
		RetryReport:  "reporte_descarga_faltantes.csv",
	}
}

// DefaultCatalogConfig returns default catalog configuration
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Type:            "esgf",
		URL:             "https://esgf.ceda.ac.uk/esg-search/search",
		Bucket:          "esgf-world",
		Prefix:          "CMIP6",
		Region:          "us-west-2",
		Public:          BoolPtr(true),
		Timeout:         "10m",
		Concurrency:     4,
		RateLimit:       0,
		MaxRetries:      IntPtr(5),
		VerifyChecksums: BoolPtr(true),
		Progress:        BoolPtr(true),
	}
}

// DefaultSearchConfig returns the decadal hindcast precipitation search.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		ExperimentID: "dcppA-hindcast",
		TableID:      "Amon",
		VariableID:   "pr",
		SourceID:     "MIROC6",
		GridLabel:    "gn",
		Latest:       BoolPtr(true),
	}
}

// DefaultQAConfig returns default audit configuration
func DefaultQAConfig() QAConfig {
	return QAConfig{
		SizeThreshold: 0.05,
		MinFileSize:   Bytes(1024),
		Metrics:       BoolPtr(true),
		Workers:       4,
	}
}
