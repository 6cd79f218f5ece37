package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cmipsync/internal/core/types"

	"github.com/goccy/go-yaml"
)

// LoadConfig loads configuration from a YAML file and applies defaults.
// A missing file is not an error: the defaults describe a complete run.
func LoadConfig(configFile string) (*types.Config, error) {
	config := &types.Config{}

	if configFile != "" && fileExists(configFile) {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	}

	config.Paths = mergePathsConfig(config.Paths, types.DefaultPathsConfig())
	config.Catalog = mergeCatalogConfig(config.Catalog, types.DefaultCatalogConfig())
	config.Search = mergeSearchConfig(config.Search, types.DefaultSearchConfig())
	config.QA = mergeQAConfig(config.QA, types.DefaultQAConfig())

	return config, nil
}

// WriteConfig saves cfg as YAML, creating parent directories as needed.
func WriteConfig(configFile string, cfg *types.Config) error {
	if configFile == "" {
		return fmt.Errorf("config file path is empty")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(configFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(configFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configFile, err)
	}
	return nil
}

func mergePathsConfig(loaded, defaults types.PathsConfig) types.PathsConfig {
	result := types.PathsConfig{
		BaseDir:      coalesce(loaded.BaseDir, defaults.BaseDir),
		DataDir:      coalesce(loaded.DataDir, defaults.DataDir),
		CachePrefix:  coalesce(loaded.CachePrefix, defaults.CachePrefix),
		MissingCache: coalesce(loaded.MissingCache, defaults.MissingCache),
		MissingCSV:   coalesce(loaded.MissingCSV, defaults.MissingCSV),
		RetryReport:  coalesce(loaded.RetryReport, defaults.RetryReport),
		ReportDir:    coalesce(loaded.ReportDir, defaults.ReportDir),
		KeepCache:    loaded.KeepCache,
	}
	if result.ReportDir == "" {
		result.ReportDir = result.DataDir
	}
	return result
}

func mergeCatalogConfig(loaded, defaults types.CatalogConfig) types.CatalogConfig {
	return types.CatalogConfig{
		Type:            coalesce(loaded.Type, defaults.Type),
		URL:             coalesce(loaded.URL, defaults.URL),
		Headers:         loaded.Headers,
		Token:           loaded.Token,
		Bucket:          coalesce(loaded.Bucket, defaults.Bucket),
		Prefix:          coalesce(loaded.Prefix, defaults.Prefix),
		Region:          coalesce(loaded.Region, defaults.Region),
		Endpoint:        loaded.Endpoint,
		Profile:         loaded.Profile,
		Public:          coalescePtr(loaded.Public, defaults.Public),
		Timeout:         coalesce(loaded.Timeout, defaults.Timeout),
		Concurrency:     coalesce(loaded.Concurrency, defaults.Concurrency),
		RateLimit:       coalesce(loaded.RateLimit, defaults.RateLimit),
		MaxRetries:      coalescePtr(loaded.MaxRetries, defaults.MaxRetries),
		VerifyChecksums: coalescePtr(loaded.VerifyChecksums, defaults.VerifyChecksums),
		Progress:        coalescePtr(loaded.Progress, defaults.Progress),
	}
}

func mergeSearchConfig(loaded, defaults types.SearchConfig) types.SearchConfig {
	return types.SearchConfig{
		ExperimentID:    coalesce(loaded.ExperimentID, defaults.ExperimentID),
		TableID:         coalesce(loaded.TableID, defaults.TableID),
		VariableID:      coalesce(loaded.VariableID, defaults.VariableID),
		SourceID:        coalesce(loaded.SourceID, defaults.SourceID),
		GridLabel:       coalesce(loaded.GridLabel, defaults.GridLabel),
		VariantLabel:    loaded.VariantLabel,
		SubExperimentID: loaded.SubExperimentID,
		Latest:          coalescePtr(loaded.Latest, defaults.Latest),
	}
}

func mergeQAConfig(loaded, defaults types.QAConfig) types.QAConfig {
	return types.QAConfig{
		SizeThreshold: coalesce(loaded.SizeThreshold, defaults.SizeThreshold),
		MinFileSize:   coalesce(loaded.MinFileSize, defaults.MinFileSize),
		Metrics:       coalescePtr(loaded.Metrics, defaults.Metrics),
		Workers:       coalesce(loaded.Workers, defaults.Workers),
	}
}

// Helper functions to reduce repetitive conditional logic
func coalesce[T comparable](loaded, defaultVal T) T {
	var zero T
	if loaded != zero {
		return loaded
	}
	return defaultVal
}

func coalescePtr[T any](loaded, defaultVal *T) *T {
	if loaded != nil {
		return loaded
	}
	return defaultVal
}

// fileExists checks if a file exists
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// ResolveConfigPath resolves a config file path, checking common locations
func ResolveConfigPath(configFile string) string {
	if configFile != "" {
		if filepath.IsAbs(configFile) || fileExists(configFile) {
			return configFile
		}
	}

	commonPaths := []string{
		"cmipsync.yaml",
		"cmipsync.yml",
		"config.yaml",
		"/etc/cmipsync/config.yaml",
	}

	for _, path := range commonPaths {
		if fileExists(path) {
			return path
		}
	}

	return configFile
}
