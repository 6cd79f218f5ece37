// Package completeness finds missing initialization years per model and
// ensemble.
package completeness

import (
	"fmt"
	"sort"
)

// Observation is one (model, ensemble, year) seen on disk.
type Observation struct {
	Model    string
	Ensemble string
	Year     int
}

// GroupKey identifies a model/ensemble combination.
type GroupKey struct {
	Model    string
	Ensemble string
}

func (k GroupKey) String() string {
	return k.Model + "/" + k.Ensemble
}

// Range is an optional explicit inclusive year range. A nil bound is
// inferred from the observed years of each group.
type Range struct {
	Start *int
	End   *int
}

// Record is the completeness result for one group.
type Record struct {
	Model    string
	Ensemble string
	Observed []int // sorted, distinct

	// Observed bounds; zero when NoObservations is set.
	ObservedMin int
	ObservedMax int

	ExpectedStart int
	ExpectedEnd   int
	Missing       []int // sorted

	// NoObservations marks a seeded group with an explicit range but no
	// files. No missing years are reported for it.
	NoObservations bool
}

// Key returns the group key of the record.
func (r Record) Key() GroupKey {
	return GroupKey{Model: r.Model, Ensemble: r.Ensemble}
}

// ExpectedCount is the size of the expected range.
func (r Record) ExpectedCount() int {
	if r.NoObservations {
		return 0
	}
	return r.ExpectedEnd - r.ExpectedStart + 1
}

// Complete reports whether no year is missing.
func (r Record) Complete() bool {
	return len(r.Missing) == 0
}

// InvalidRangeError is returned when the expected range of a group would
// end before it starts.
type InvalidRangeError struct {
	Group GroupKey
	Start int
	End   int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid year range for %s: start=%d, end=%d", e.Group, e.Start, e.End)
}

// ComputeMissingYears groups observations by model and ensemble and returns
// one record per group, sorted by model then ensemble. Seeded groups without
// observations are only reported when both bounds are explicit.
func ComputeMissingYears(observations []Observation, rng Range, seed ...GroupKey) ([]Record, error) {
	groups := make(map[GroupKey]map[int]struct{})
	for _, key := range seed {
		if _, ok := groups[key]; !ok {
			groups[key] = make(map[int]struct{})
		}
	}
	for _, o := range observations {
		key := GroupKey{Model: o.Model, Ensemble: o.Ensemble}
		years, ok := groups[key]
		if !ok {
			years = make(map[int]struct{})
			groups[key] = years
		}
		years[o.Year] = struct{}{}
	}

	keys := make([]GroupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Model != keys[j].Model {
			return keys[i].Model < keys[j].Model
		}
		return keys[i].Ensemble < keys[j].Ensemble
	})

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		record, ok, err := computeGroup(key, groups[key], rng)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func computeGroup(key GroupKey, years map[int]struct{}, rng Range) (Record, bool, error) {
	record := Record{Model: key.Model, Ensemble: key.Ensemble}

	if len(years) == 0 {
		if rng.Start == nil || rng.End == nil {
			return Record{}, false, nil
		}
		if *rng.End < *rng.Start {
			return Record{}, false, &InvalidRangeError{Group: key, Start: *rng.Start, End: *rng.End}
		}
		record.ExpectedStart = *rng.Start
		record.ExpectedEnd = *rng.End
		record.NoObservations = true
		return record, true, nil
	}

	observed := make([]int, 0, len(years))
	for y := range years {
		observed = append(observed, y)
	}
	sort.Ints(observed)
	record.Observed = observed
	record.ObservedMin = observed[0]
	record.ObservedMax = observed[len(observed)-1]

	record.ExpectedStart = record.ObservedMin
	if rng.Start != nil {
		record.ExpectedStart = *rng.Start
	}
	record.ExpectedEnd = record.ObservedMax
	if rng.End != nil {
		record.ExpectedEnd = *rng.End
	}
	if record.ExpectedEnd < record.ExpectedStart {
		return Record{}, false, &InvalidRangeError{Group: key, Start: record.ExpectedStart, End: record.ExpectedEnd}
	}

	record.Missing = []int{}
	for y := record.ExpectedStart; y <= record.ExpectedEnd; y++ {
		if _, ok := years[y]; !ok {
			record.Missing = append(record.Missing, y)
		}
	}
	return record, true, nil
}

// TotalMissing sums the missing years over all records.
func TotalMissing(records []Record) int {
	n := 0
	for _, r := range records {
		n += len(r.Missing)
	}
	return n
}
