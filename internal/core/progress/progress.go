package progress

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Progress is a multi-progress bar group, one bar per file in flight.
// A disabled Progress accepts every call and draws nothing.
type Progress struct {
	mu        sync.Mutex
	opts      []mpb.ContainerOption
	container *mpb.Progress
	bars      map[string]*mpb.Bar
	disabled  bool
}

// WithOutput sets the output for the progress container.
func WithOutput(w io.Writer) func() mpb.ContainerOption {
	return func() mpb.ContainerOption {
		return mpb.WithOutput(w)
	}
}

// NewProgress creates a new progress container.
func NewProgress(opts ...func() mpb.ContainerOption) *Progress {
	containerOpts := DefaultContainerOptions()
	for _, opt := range opts {
		containerOpts = append(containerOpts, opt())
	}
	return &Progress{
		opts:      containerOpts,
		container: mpb.New(containerOpts...),
		bars:      make(map[string]*mpb.Bar),
	}
}

// Disabled returns a Progress that never renders.
func Disabled() *Progress {
	return &Progress{disabled: true, bars: make(map[string]*mpb.Bar)}
}

// DefaultContainerOptions returns the default container options for the progress container.
func DefaultContainerOptions() []mpb.ContainerOption {
	return []mpb.ContainerOption{
		mpb.WithOutput(os.Stderr),
		mpb.WithRefreshRate(150 * time.Millisecond),
	}
}

// DefaultBarOptions returns the default bar options for the progress container.
func DefaultBarOptions(description string) []mpb.BarOption {
	return []mpb.BarOption{
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Spinner(spinner, decor.WCSyncSpaceR),
			decor.Name(description, decor.WCSyncSpaceR),
			decor.CountersKibiByte("%.2f/%.2f", decor.WCSyncSpace),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.EwmaSpeed(decor.SizeB1024(0), "%.2f", 30, decor.WCSyncSpace),
			decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WCSyncSpace),
		),
	}
}

// AddBar adds a bar for the given id. A size of 0 means unknown.
func (g *Progress) AddBar(id, description string, size int64) {
	if g.disabled {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.bars[id] = g.container.AddBar(size, DefaultBarOptions(description)...)
}

// Tracker returns a callback that advances the bar for id by n bytes.
func (g *Progress) Tracker(id string) func(n int64) {
	last := time.Now()
	return func(n int64) {
		now := time.Now()
		g.IncrementBar(id, n, now.Sub(last))
		last = now
	}
}

// IncrementBar increments the bar for the given id in the progress container.
func (g *Progress) IncrementBar(id string, n int64, duration time.Duration) {
	if g.disabled {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if bar, ok := g.bars[id]; ok {
		bar.EwmaIncrInt64(n, duration)
	}
}

// CompleteBar marks the bar done, fixing its total at what was transferred.
func (g *Progress) CompleteBar(id string) {
	if g.disabled {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if bar, ok := g.bars[id]; ok {
		bar.SetTotal(-1, true)
		delete(g.bars, id)
	}
}

// CloseBar aborts the bar for the given id in the progress container.
func (g *Progress) CloseBar(id string) {
	if g.disabled {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if bar, ok := g.bars[id]; ok {
		bar.Abort(true)
		delete(g.bars, id)
	}
}

// Wait aborts any bars still open and waits for rendering to finish. The
// group can be reused afterwards.
func (g *Progress) Wait() {
	if g.disabled {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, bar := range g.bars {
		bar.Abort(true)
		bar.Wait()
	}
	g.container.Wait()
	g.bars = make(map[string]*mpb.Bar)
	g.container = mpb.New(g.opts...)
}
