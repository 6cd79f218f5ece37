package config

import (
	"fmt"
	"strings"

	"cmipsync/internal/core/types"
)

// ValidationError reports structurally invalid configuration. It is always
// fatal for the run.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

var supportedCatalogs = map[string]bool{
	"esgf": true,
	"s3":   true,
}

// Validate checks everything a run needs before it touches the network or
// the filesystem.
func Validate(cfg *types.Config) error {
	if strings.TrimSpace(cfg.Paths.DataDir) == "" {
		return &ValidationError{Field: "paths.data_dir", Reason: "must not be empty"}
	}
	if strings.TrimSpace(cfg.Paths.CachePrefix) == "" {
		return &ValidationError{Field: "paths.cache_prefix", Reason: "must not be empty"}
	}
	if !supportedCatalogs[cfg.Catalog.Type] {
		return &ValidationError{Field: "catalog.type", Reason: fmt.Sprintf("unsupported catalog type %q", cfg.Catalog.Type)}
	}
	if cfg.Catalog.Concurrency < 1 {
		return &ValidationError{Field: "catalog.concurrency", Reason: "must be at least 1"}
	}
	if types.Int(cfg.Catalog.MaxRetries, 0) < 0 {
		return &ValidationError{Field: "catalog.max_retries", Reason: "must not be negative"}
	}
	if cfg.QA.SizeThreshold <= 0 || cfg.QA.SizeThreshold >= 1 {
		return &ValidationError{Field: "qa.size_threshold", Reason: "must be between 0 and 1"}
	}
	if err := ValidateRange(cfg.Missing.Start, cfg.Missing.End); err != nil {
		return err
	}
	for i, g := range cfg.Missing.Expected {
		if strings.TrimSpace(g.SourceID) == "" || strings.TrimSpace(g.VariantLabel) == "" {
			return &ValidationError{Field: fmt.Sprintf("missing.expected[%d]", i), Reason: "source_id and variant_label are required"}
		}
	}
	return nil
}

// ValidateSearch checks the facets required for a catalog search.
func ValidateSearch(search types.SearchConfig) error {
	required := []struct {
		field, value string
	}{
		{"search.source_id", search.SourceID},
		{"search.variable_id", search.VariableID},
		{"search.experiment_id", search.ExperimentID},
		{"search.table_id", search.TableID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "must not be empty"}
		}
	}
	return nil
}

// ValidateRange rejects an explicit inverted year range up front.
func ValidateRange(start, end *int) error {
	if start != nil && end != nil && *end < *start {
		return &ValidationError{
			Field:  "missing.start/missing.end",
			Reason: fmt.Sprintf("inverted range %d-%d", *start, *end),
		}
	}
	return nil
}
