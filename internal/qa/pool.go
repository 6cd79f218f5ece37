package qa

import (
	"context"
	"sync"

	"cmipsync/internal/core/logger"
)

const defaultWorkers = 4

type metricJob struct {
	index int
	path  string
}

// metricPool reads data metrics on a fixed number of workers. Results are
// stored by job index so callers keep their own ordering.
type metricPool struct {
	workers int
	log     *logger.Logger
	read    func(path string) (Metrics, error)
}

func newMetricPool(workers int, log *logger.Logger) *metricPool {
	if workers < 1 {
		workers = defaultWorkers
	}
	return &metricPool{workers: workers, log: log, read: ReadMetrics}
}

// run reads every path. Paths not reached before ctx is cancelled carry
// the context error.
func (p *metricPool) run(ctx context.Context, paths []string) ([]Metrics, []error) {
	metrics := make([]Metrics, len(paths))
	errs := make([]error, len(paths))
	jobs := make(chan metricJob)

	var wg sync.WaitGroup
	wg.Add(p.workers)
	for range p.workers {
		go func() {
			defer wg.Done()
			for job := range jobs {
				p.log.Debug("Reading metrics", "file", job.path)
				metrics[job.index], errs[job.index] = p.read(job.path)
			}
		}()
	}

	next := 0
submit:
	for ; next < len(paths); next++ {
		select {
		case <-ctx.Done():
			break submit
		case jobs <- metricJob{index: next, path: paths[next]}:
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(paths); i++ {
		errs[i] = ctx.Err()
	}
	return metrics, errs
}
