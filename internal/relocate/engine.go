// Package relocate moves data files from catalog cache layouts into the
// canonical model/ensemble/sYEAR tree.
package relocate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cmipsync/internal/core/logger"
	"cmipsync/internal/core/types"
	"cmipsync/internal/drs"
)

// Kind classifies what happened to one file.
type Kind int

const (
	Moved Kind = iota
	SkippedExists
	SkippedUnparseable
	Failed
)

func (k Kind) String() string {
	switch k {
	case Moved:
		return "moved"
	case SkippedExists:
		return "skipped-exists"
	case SkippedUnparseable:
		return "skipped-unparseable"
	case Failed:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result for one source file. Destination is empty when
// the file could not be classified.
type Outcome struct {
	Source      string
	Destination string
	Kind        Kind
	Err         error
}

// Summary aggregates the outcomes of one batch.
type Summary struct {
	Processed   int
	Moved       int
	Exists      int
	Unparseable int
	Errors      int
	Outcomes    []Outcome
}

// Skipped counts files left in place for any reason other than an error.
func (s Summary) Skipped() int {
	return s.Exists + s.Unparseable
}

func (s *Summary) add(o Outcome) {
	s.Processed++
	switch o.Kind {
	case Moved:
		s.Moved++
	case SkippedExists:
		s.Exists++
	case SkippedUnparseable:
		s.Unparseable++
	case Failed:
		s.Errors++
	}
	s.Outcomes = append(s.Outcomes, o)
}

// Merge adds the counts and outcomes of other to s.
func (s *Summary) Merge(other Summary) {
	for _, o := range other.Outcomes {
		s.add(o)
	}
}

// Engine relocates files. The zero value is not usable; use NewEngine.
type Engine struct {
	log    *logger.Logger
	dryRun bool
}

type EngineOption func(*Engine)

func WithLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithDryRun resolves destinations without touching the filesystem.
func WithDryRun(dryRun bool) EngineOption {
	return func(e *Engine) {
		e.dryRun = dryRun
	}
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.NewLogger(logger.WithName("relocate"))
	}
	return e
}

// Destination resolves where path belongs below destRoot.
func Destination(path, destRoot string) (string, error) {
	model, member, err := drs.ResolveFile(path)
	if err != nil {
		return "", err
	}
	return drs.CanonicalPath(destRoot, model, member, filepath.Base(path)), nil
}

// Relocate moves each file to its canonical destination under destRoot.
// Per-file failures are recorded in the summary and never stop the batch.
// Cancellation is checked between files only.
func (e *Engine) Relocate(ctx context.Context, files []string, destRoot string) Summary {
	var summary Summary
	for _, src := range files {
		if types.Interrupted(ctx) {
			e.log.Warn("Relocation interrupted", "remaining", len(files)-summary.Processed)
			break
		}
		summary.add(e.relocateOne(src, destRoot))
	}
	e.log.Info("Relocation finished",
		"processed", summary.Processed,
		"moved", summary.Moved,
		"skipped", summary.Skipped(),
		"errors", summary.Errors,
	)
	return summary
}

func (e *Engine) relocateOne(src, destRoot string) Outcome {
	dst, err := Destination(src, destRoot)
	if err != nil {
		e.log.Warn("Skipping unrecognised file", "file", src, "error", err)
		return Outcome{Source: src, Kind: SkippedUnparseable, Err: err}
	}
	out := Outcome{Source: src, Destination: dst}

	if e.dryRun {
		if _, err := os.Lstat(dst); err == nil {
			out.Kind = SkippedExists
			return out
		}
		e.log.Info("Would move", "from", src, "to", dst)
		out.Kind = Moved
		return out
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		e.log.Error("Failed to create destination directory", "dir", filepath.Dir(dst), "error", err)
		out.Kind, out.Err = Failed, err
		return out
	}

	err = MoveNoReplace(src, dst)
	switch {
	case err == nil:
		e.log.Debug("Moved", "from", src, "to", dst)
		out.Kind = Moved
	case errors.Is(err, ErrDestinationExists):
		e.log.Warn("Destination already exists, leaving source in place", "file", dst)
		out.Kind, out.Err = SkippedExists, err
	default:
		e.log.Error("Failed to move file", "from", src, "to", dst, "error", err)
		out.Kind, out.Err = Failed, err
	}
	return out
}
