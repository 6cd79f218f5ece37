package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Name identifies a pipeline stage.
type Name string

const (
	Explore       Name = "explore"
	Download      Name = "download"
	Reorganize    Name = "reorganize"
	PruneFX       Name = "prune-fx"
	QA            Name = "qa"
	DetectMissing Name = "detect-missing"
	FetchMissing  Name = "fetch-missing"
	QAFinal       Name = "qa-final"
)

// Order is the fixed execution order of all stages.
var Order = []Name{Explore, Download, Reorganize, PruneFX, QA, DetectMissing, FetchMissing, QAFinal}

// ParseNames validates stage names given on the command line.
func ParseNames(names []string) ([]Name, error) {
	valid := make(map[Name]bool, len(Order))
	for _, n := range Order {
		valid[n] = true
	}
	out := make([]Name, 0, len(names))
	for _, raw := range names {
		n := Name(strings.TrimSpace(raw))
		if !valid[n] {
			return nil, fmt.Errorf("unknown stage %q", raw)
		}
		out = append(out, n)
	}
	return out, nil
}

// Plan returns the selected stages in execution order. No selection means
// every stage.
func Plan(selected []Name) []Name {
	if len(selected) == 0 {
		return append([]Name(nil), Order...)
	}
	want := make(map[Name]bool, len(selected))
	for _, n := range selected {
		want[n] = true
	}
	plan := make([]Name, 0, len(selected))
	for _, n := range Order {
		if want[n] {
			plan = append(plan, n)
		}
	}
	return plan
}

// State is the lifecycle of one stage run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// StageReport records how one stage went.
type StageReport struct {
	Name      Name
	State     State
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
}

func (r StageReport) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

func (r *StageReport) start() {
	r.State = StateRunning
	r.StartedAt = time.Now()
}

func (r *StageReport) finish(err error) {
	r.EndedAt = time.Now()
	r.Err = err
	if err != nil {
		r.State = StateFailed
		return
	}
	r.State = StateSucceeded
}
