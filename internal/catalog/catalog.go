// Package catalog talks to the remote dataset catalog. A Catalog resolves
// search criteria to dataset keys and materializes datasets into a caller
// supplied cache directory; this package also reconciles what was asked
// for against what arrived.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/progress"
	"cmipsync/internal/core/types"
)

// DatasetKey identifies one dataset within a search result.
type DatasetKey string

// Criteria are the facet constraints of a search. Empty fields are not
// sent to the catalog.
type Criteria struct {
	ExperimentID    string
	TableID         string
	VariableID      string
	SourceID        string
	GridLabel       string
	VariantLabel    string
	SubExperimentID string
	Latest          bool
}

// CriteriaFromConfig converts the configured search section.
func CriteriaFromConfig(s types.SearchConfig) Criteria {
	return Criteria{
		ExperimentID:    s.ExperimentID,
		TableID:         s.TableID,
		VariableID:      s.VariableID,
		SourceID:        s.SourceID,
		GridLabel:       s.GridLabel,
		VariantLabel:    s.VariantLabel,
		SubExperimentID: s.SubExperimentID,
		Latest:          types.Bool(s.Latest, true),
	}
}

// Facet is one facet name and its constraint value.
type Facet struct {
	Name  string
	Value string
}

// Facets returns the non-empty facet constraints in a stable order.
func (c Criteria) Facets() []Facet {
	all := []Facet{
		{"experiment_id", c.ExperimentID},
		{"table_id", c.TableID},
		{"variable_id", c.VariableID},
		{"source_id", c.SourceID},
		{"grid_label", c.GridLabel},
		{"variant_label", c.VariantLabel},
		{"sub_experiment_id", c.SubExperimentID},
	}
	out := all[:0]
	for _, f := range all {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

func (c Criteria) String() string {
	parts := make([]string, 0, 8)
	for _, f := range c.Facets() {
		parts = append(parts, f.Name+"="+f.Value)
	}
	if c.Latest {
		parts = append(parts, "latest=true")
	}
	return strings.Join(parts, " ")
}

// FacetRow is one distinct combination of facet values seen in a search.
type FacetRow map[string]string

// FetchResult describes what a Fetch call materialized.
type FetchResult struct {
	Requested KeySet
	Retrieved KeySet
	Files     []string
	Bytes     types.Bytes
	Errors    map[DatasetKey]error
}

func newFetchResult(keys []DatasetKey) FetchResult {
	return FetchResult{
		Requested: NewKeySet(keys...),
		Retrieved: NewKeySet(),
		Errors:    make(map[DatasetKey]error),
	}
}

// Failed returns the requested keys that were not materialized.
func (r FetchResult) Failed() KeySet {
	return FindFailedKeys(r.Requested, r.Retrieved)
}

// Catalog is the remote collaborator. Implementations may download
// concurrently inside Fetch but return only when every key is settled.
type Catalog interface {
	Name() string
	Search(ctx context.Context, criteria Criteria) ([]DatasetKey, error)
	Fetch(ctx context.Context, keys []DatasetKey, cacheDir string) (FetchResult, error)
	Facets(ctx context.Context, criteria Criteria, fields []string) ([]FacetRow, error)
}

// Options carry the run-wide collaborators a catalog client needs.
type Options struct {
	Logger   *logger.Logger
	Progress *progress.Progress
}

type Option func(*Options)

func WithLogger(l *logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func WithProgress(p *progress.Progress) Option {
	return func(o *Options) {
		o.Progress = p
	}
}

// Factory builds a catalog client from configuration.
type Factory func(cfg types.CatalogConfig, opts Options) (Catalog, error)

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// RegisterFactory registers a catalog factory function by type
func RegisterFactory(catalogType string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[catalogType] = factory
}

// Types lists the registered catalog types.
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New creates the catalog client selected by cfg.Type.
func New(cfg types.CatalogConfig, opts ...Option) (Catalog, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("catalog type is required")
	}
	factoriesMu.RLock()
	factory, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown catalog type: %s", cfg.Type)
	}

	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logger.NewLogger(logger.WithName("catalog"))
	}
	if o.Progress == nil {
		o.Progress = progress.Disabled()
	}
	return factory(expandEnvVars(cfg), o)
}

// expandEnvVars expands ${VAR} references in credentials and headers
func expandEnvVars(cfg types.CatalogConfig) types.CatalogConfig {
	cfg.Token = os.ExpandEnv(cfg.Token)
	cfg.Profile = os.ExpandEnv(cfg.Profile)
	if cfg.Headers != nil {
		expanded := make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			expanded[k] = os.ExpandEnv(v)
		}
		cfg.Headers = expanded
	}
	return cfg
}
