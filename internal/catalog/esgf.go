package catalog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/progress"
	"cmipsync/internal/core/types"
	"cmipsync/internal/transfer"
	"cmipsync/internal/transport"

	"golang.org/x/time/rate"
)

func init() {
	RegisterFactory("esgf", NewESGFCatalog)
}

// ESGFCatalog queries an ESGF index node's search API and downloads files
// from the data nodes it points to.
type ESGFCatalog struct {
	searchURL   string
	http        *transport.HTTPTransfer
	limiter     *rate.Limiter
	concurrency int
	maxRetries  int
	verify      bool
	log         *logger.Logger
	progress    *progress.Progress
}

// NewESGFCatalog creates an ESGF search client.
func NewESGFCatalog(cfg types.CatalogConfig, opts Options) (Catalog, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("esgf catalog requires a search url")
	}
	timeout := types.ParseDuration(cfg.Timeout, transport.DefaultRequestTimeout)
	concurrency := max(cfg.Concurrency, 1)

	return &ESGFCatalog{
		searchURL: cfg.URL,
		http: transport.NewHTTPTransfer(
			transport.HTTPWithClient(transport.DefaultHTTPClient(timeout)),
			transport.HTTPWithHeaders(cfg.Headers),
			transport.HTTPWithToken(cfg.Token),
		),
		limiter:     transfer.NewRateLimiter(cfg.RateLimit, concurrency),
		concurrency: concurrency,
		maxRetries:  types.Int(cfg.MaxRetries, 0),
		verify:      types.Bool(cfg.VerifyChecksums, true),
		log:         opts.Logger,
		progress:    opts.Progress,
	}, nil
}

func (c *ESGFCatalog) Name() string {
	return "esgf"
}

func (c *ESGFCatalog) retry(ctx context.Context, what string, op func() error) error {
	return retryOp(ctx, c.log, c.maxRetries, what, op)
}

// query pages through a search and hands every document to visit.
func (c *ESGFCatalog) query(ctx context.Context, docType string, criteria Criteria, fields []string, extra map[string]string, visit func(raw []byte) error) error {
	for offset := 0; ; {
		q := searchQuery(docType, criteria, fields, offset)
		for k, v := range extra {
			q.Set(k, v)
		}

		var page searchResponse
		err := c.retry(ctx, "search", func() error {
			page = searchResponse{}
			return c.http.Get(ctx, c.searchURL, func(resp *http.Response) error {
				return json.NewDecoder(resp.Body).Decode(&page)
			}, transport.HTTPRequestQuery(q))
		})
		if err != nil {
			return fmt.Errorf("esgf search: %w", err)
		}

		for _, doc := range page.Response.Docs {
			if err := visit(doc); err != nil {
				return err
			}
		}
		offset += len(page.Response.Docs)
		if len(page.Response.Docs) == 0 || offset >= page.Response.NumFound {
			return nil
		}
	}
}

// Search returns one key per dataset instance. Replicas of an instance on
// other data nodes are dropped; the first node listed wins.
func (c *ESGFCatalog) Search(ctx context.Context, criteria Criteria) ([]DatasetKey, error) {
	var keys []DatasetKey
	seen := make(map[string]bool)
	err := c.query(ctx, "Dataset", criteria, []string{"id", "instance_id", "data_node"}, nil, func(raw []byte) error {
		var d datasetDoc
		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("decode dataset: %w", err)
		}
		instance := d.InstanceID
		if instance == "" {
			instance = datasetInstance(DatasetKey(d.ID))
		}
		if d.ID == "" || seen[instance] {
			return nil
		}
		seen[instance] = true
		keys = append(keys, DatasetKey(d.ID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug("Search finished", "criteria", criteria.String(), "datasets", len(keys))
	return keys, nil
}

// Facets returns the distinct value combinations of fields across the
// datasets matching criteria.
func (c *ESGFCatalog) Facets(ctx context.Context, criteria Criteria, fields []string) ([]FacetRow, error) {
	var rows []FacetRow
	err := c.query(ctx, "Dataset", criteria, fields, nil, func(raw []byte) error {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode dataset: %w", err)
		}
		row := make(FacetRow, len(fields))
		for _, f := range fields {
			row[f] = facetValue(doc[f])
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return distinctRows(rows, fields), nil
}

type fileJob struct {
	key      DatasetKey
	url      string
	dest     string
	size     int64
	checksum *transfer.Checksum
}

// files lists the downloadable files of one dataset.
func (c *ESGFCatalog) files(ctx context.Context, key DatasetKey, cacheDir string) ([]fileJob, error) {
	dir := filepath.Join(append([]string{cacheDir}, strings.Split(datasetInstance(key), ".")...)...)
	fields := []string{"id", "instance_id", "dataset_id", "title", "size", "url", "checksum", "checksum_type"}

	var jobs []fileJob
	err := c.query(ctx, "File", Criteria{}, fields, map[string]string{"dataset_id": string(key)}, func(raw []byte) error {
		var f fileDoc
		if err := json.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("decode file: %w", err)
		}
		u, ok := f.httpURL()
		if !ok || f.Title == "" {
			c.log.Debug("File has no HTTP endpoint", "dataset", key, "file", f.ID)
			return nil
		}
		job := fileJob{key: key, url: u, dest: filepath.Join(dir, filepath.Base(f.Title)), size: f.Size}
		if typ, sum := f.checksum(); c.verify && sum != "" {
			job.checksum = &transfer.Checksum{Type: typ, Value: sum}
		}
		jobs = append(jobs, job)
		return nil
	})
	return jobs, err
}

// Fetch downloads every file of every key into cacheDir, laid out by the
// dataset instance id. A dataset counts as retrieved only when all of its
// files are present.
func (c *ESGFCatalog) Fetch(ctx context.Context, keys []DatasetKey, cacheDir string) (FetchResult, error) {
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
		jobs, err := c.files(ctx, key, cacheDir)
		if err != nil {
			mu.Lock()
			result.Errors[key] = err
			mu.Unlock()
			c.log.Warn("Failed to list dataset files", "dataset", key, "error", err)
			continue
		}
		if len(jobs) == 0 {
			mu.Lock()
			result.Errors[key] = fmt.Errorf("dataset has no downloadable files")
			mu.Unlock()
			continue
		}
		mu.Lock()
		remaining[key] = len(jobs)
		mu.Unlock()

		for _, job := range jobs {
			wg.Add(1)
			go func(job fileJob) {
				defer wg.Done()
				fetchSem <- struct{}{}
				defer func() { <-fetchSem }()

				n, err := c.download(ctx, job)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed[job.key] = true
					if _, ok := result.Errors[job.key]; !ok {
						result.Errors[job.key] = err
					}
					c.log.Warn("Download failed", "file", filepath.Base(job.dest), "error", err)
					return
				}
				result.Files = append(result.Files, job.dest)
				result.Bytes += types.Bytes(n)
				remaining[job.key]--
				if remaining[job.key] == 0 && !failed[job.key] {
					result.Retrieved.Add(job.key)
				}
			}(job)
		}
	}
	wg.Wait()
	c.progress.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// download fetches one file unless a copy of the expected size is already
// in the cache. It returns the number of bytes written.
func (c *ESGFCatalog) download(ctx context.Context, job fileJob) (int64, error) {
	if info, err := os.Stat(job.dest); err == nil && job.size > 0 && info.Size() == job.size {
		return 0, nil
	}

	name := filepath.Base(job.dest)
	var written int64
	err := c.retry(ctx, name, func() error {
		c.progress.AddBar(job.dest, name, job.size)
		err := c.http.Get(ctx, job.url, func(resp *http.Response) error {
			n, err := transfer.ToFile(ctx, resp.Body, job.dest, transfer.FileOptions{
				Limiter:  c.limiter,
				Progress: c.progress.Tracker(job.dest),
				Checksum: job.checksum,
			})
			written = n
			return err
		})
		if err != nil {
			c.progress.CloseBar(job.dest)
			return err
		}
		c.progress.CompleteBar(job.dest)
		return nil
	})
	return written, err
}
