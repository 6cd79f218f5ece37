package catalog

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/progress"
	"cmipsync/internal/core/types"
	"cmipsync/internal/drs"
	"cmipsync/internal/transfer"
	"cmipsync/internal/transport"

	"github.com/aws/aws-sdk-go/service/s3"
	"golang.org/x/time/rate"
)

func init() {
	RegisterFactory("s3", NewS3Catalog)
}

// Directory levels below the prefix of a CMIP6 DRS object key:
// activity/institution/source/experiment/member/table/variable/grid/version.
const (
	levelActivity = iota
	levelInstitution
	levelSource
	levelExperiment
	levelMember
	levelTable
	levelVariable
	levelGrid
	levelVersion
	drsLevels
)

// S3Catalog reads datasets from a bucket that mirrors the CMIP6 DRS
// directory layout, such as the public esgf-world bucket.
type S3Catalog struct {
	prefix      string
	bucket      *transport.S3Transfer
	limiter     *rate.Limiter
	concurrency int
	maxRetries  int
	log         *logger.Logger
	progress    *progress.Progress
}

// NewS3Catalog creates a catalog backed by an S3 mirror.
func NewS3Catalog(cfg types.CatalogConfig, opts Options) (Catalog, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 catalog requires a bucket")
	}
	sess, err := transport.NewS3Session(cfg)
	if err != nil {
		return nil, err
	}
	return newS3Catalog(transport.NewS3Transfer(s3.New(sess), cfg.Bucket), cfg, opts), nil
}

func newS3Catalog(bucket *transport.S3Transfer, cfg types.CatalogConfig, opts Options) *S3Catalog {
	concurrency := max(cfg.Concurrency, 1)
	return &S3Catalog{
		prefix:      strings.Trim(cfg.Prefix, "/"),
		bucket:      bucket,
		limiter:     transfer.NewRateLimiter(cfg.RateLimit, concurrency),
		concurrency: concurrency,
		maxRetries:  types.Int(cfg.MaxRetries, 0),
		log:         opts.Logger,
		progress:    opts.Progress,
	}
}

func (c *S3Catalog) Name() string {
	return "s3"
}

// levelFilter returns the accepted value at each DRS level, "" for any.
func levelFilter(criteria Criteria) [drsLevels]string {
	var f [drsLevels]string
	f[levelSource] = criteria.SourceID
	f[levelExperiment] = criteria.ExperimentID
	f[levelTable] = criteria.TableID
	f[levelVariable] = criteria.VariableID
	f[levelGrid] = criteria.GridLabel
	return f
}

// memberMatches checks a member directory such as "s1960-r1i1p1f1".
func memberMatches(member string, criteria Criteria) bool {
	sub, variant := "", member
	if id, ok := drs.ParseMemberID(member); ok {
		sub, variant = id.SubExperiment(), id.Ensemble
	}
	if criteria.VariantLabel != "" && variant != criteria.VariantLabel {
		return false
	}
	if criteria.SubExperimentID != "" && sub != criteria.SubExperimentID {
		return false
	}
	return true
}

// Search walks the DRS tree level by level, listing only the branches the
// criteria allow. With Latest set only the newest version of each dataset
// is returned.
func (c *S3Catalog) Search(ctx context.Context, criteria Criteria) ([]DatasetKey, error) {
	filter := levelFilter(criteria)
	var keys []DatasetKey

	var walk func(prefix string, level int) error
	walk = func(prefix string, level int) error {
		if types.Interrupted(ctx) {
			return ctx.Err()
		}
		var children []string
		err := retryOp(ctx, c.log, c.maxRetries, prefix, func() error {
			var err error
			children, err = c.bucket.ListPrefixes(ctx, prefix)
			return err
		})
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}

		if level == levelVersion {
			sort.Strings(children)
			if criteria.Latest && len(children) > 0 {
				children = children[len(children)-1:]
			}
			for _, child := range children {
				keys = append(keys, DatasetKey(child))
			}
			return nil
		}

		for _, child := range children {
			name := path.Base(child)
			if want := filter[level]; want != "" && name != want {
				continue
			}
			if level == levelMember && !memberMatches(name, criteria) {
				continue
			}
			if err := walk(child, level+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(c.prefix, levelActivity); err != nil {
		return nil, err
	}
	c.log.Debug("Search finished", "criteria", criteria.String(), "datasets", len(keys))
	return keys, nil
}

// Facets derives facet values from the directory names of each key.
func (c *S3Catalog) Facets(ctx context.Context, criteria Criteria, fields []string) ([]FacetRow, error) {
	keys, err := c.Search(ctx, criteria)
	if err != nil {
		return nil, err
	}
	rows := make([]FacetRow, 0, len(keys))
	for _, key := range keys {
		values := c.keyFacets(key)
		row := make(FacetRow, len(fields))
		for _, f := range fields {
			row[f] = values[f]
		}
		rows = append(rows, row)
	}
	return distinctRows(rows, fields), nil
}

func (c *S3Catalog) keyFacets(key DatasetKey) map[string]string {
	rel := strings.TrimPrefix(strings.TrimPrefix(string(key), c.prefix), "/")
	parts := strings.Split(rel, "/")
	out := make(map[string]string)
	if len(parts) != drsLevels {
		return out
	}
	out["activity_id"] = parts[levelActivity]
	out["institution_id"] = parts[levelInstitution]
	out["source_id"] = parts[levelSource]
	out["experiment_id"] = parts[levelExperiment]
	out["member_id"] = parts[levelMember]
	out["table_id"] = parts[levelTable]
	out["variable_id"] = parts[levelVariable]
	out["grid_label"] = parts[levelGrid]
	out["version"] = parts[levelVersion]
	out["variant_label"] = parts[levelMember]
	if id, ok := drs.ParseMemberID(parts[levelMember]); ok {
		out["variant_label"] = id.Ensemble
		out["sub_experiment_id"] = id.SubExperiment()
	}
	return out
}

// Fetch downloads every NetCDF object below each key into
// cacheDir/<key>/. A key counts as retrieved when it has at least one data
// file and all of them arrived.
func (c *S3Catalog) Fetch(ctx context.Context, keys []DatasetKey, cacheDir string) (FetchResult, error) {
	result := newFetchResult(keys)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return result, fmt.Errorf("create cache dir: %w", err)
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		remaining = make(map[DatasetKey]int)
		failed    = make(map[DatasetKey]bool)
		fetchSem  = make(chan struct{}, c.concurrency)
	)

	for _, key := range keys {
		if types.Interrupted(ctx) {
			break
		}
		var objects []transport.S3Object
		err := retryOp(ctx, c.log, c.maxRetries, string(key), func() error {
			var err error
			objects, err = c.bucket.ListObjects(ctx, string(key))
			return err
		})
		if err != nil {
			mu.Lock()
			result.Errors[key] = err
			mu.Unlock()
			c.log.Warn("Failed to list dataset objects", "dataset", key, "error", err)
			continue
		}

		data := objects[:0]
		for _, o := range objects {
			if drs.HasExtension(o.Key) {
				data = append(data, o)
			}
		}
		if len(data) == 0 {
			mu.Lock()
			result.Errors[key] = fmt.Errorf("dataset has no data files")
			mu.Unlock()
			continue
		}

		mu.Lock()
		remaining[key] = len(data)
		mu.Unlock()

		for _, obj := range data {
			wg.Add(1)
			go func(key DatasetKey, obj transport.S3Object) {
				defer wg.Done()
				fetchSem <- struct{}{}
				defer func() { <-fetchSem }()

				dest := filepath.Join(cacheDir, filepath.FromSlash(string(key)), path.Base(obj.Key))
				n, err := c.download(ctx, obj, dest)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed[key] = true
					if _, ok := result.Errors[key]; !ok {
						result.Errors[key] = err
					}
					c.log.Warn("Download failed", "file", path.Base(obj.Key), "error", err)
					return
				}
				result.Files = append(result.Files, dest)
				result.Bytes += types.Bytes(n)
				remaining[key]--
				if remaining[key] == 0 && !failed[key] {
					result.Retrieved.Add(key)
				}
			}(key, obj)
		}
	}
	wg.Wait()
	c.progress.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (c *S3Catalog) download(ctx context.Context, obj transport.S3Object, dest string) (int64, error) {
	if info, err := os.Stat(dest); err == nil && obj.Size > 0 && info.Size() == obj.Size.Int64() {
		return 0, nil
	}
	name := path.Base(obj.Key)
	var written int64
	err := retryOp(ctx, c.log, c.maxRetries, name, func() error {
		c.progress.AddBar(dest, name, obj.Size.Int64())
		n, err := c.bucket.DownloadObject(ctx, obj.Key, dest, transfer.FileOptions{
			Limiter:  c.limiter,
			Progress: c.progress.Tracker(dest),
		})
		written = n
		if err != nil {
			c.progress.CloseBar(dest)
			return err
		}
		c.progress.CompleteBar(dest)
		return nil
	})
	return written, err
}
