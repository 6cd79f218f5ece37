// Package retry turns missing-year records into download tasks and drives
// them through the catalog one at a time.
package retry

import (
	"fmt"
	"os"

	"cmipsync/internal/completeness"
	"cmipsync/internal/drs"
)

// DownloadTask asks for one initialization year of one model and ensemble.
type DownloadTask struct {
	Model    string
	Ensemble string
	Year     int
}

// SubExperiment is the catalog's sub_experiment_id for the task's year.
func (t DownloadTask) SubExperiment() string {
	return drs.YearDir(t.Year)
}

func (t DownloadTask) String() string {
	return fmt.Sprintf("%s | %s | %s", t.Model, t.Ensemble, t.SubExperiment())
}

// DeriveTasks flattens the missing years of records, keeping record order
// and the ascending year order within each record.
func DeriveTasks(records []completeness.Record) []DownloadTask {
	var tasks []DownloadTask
	for _, r := range records {
		for _, year := range r.Missing {
			tasks = append(tasks, DownloadTask{Model: r.Model, Ensemble: r.Ensemble, Year: year})
		}
	}
	return tasks
}

// AlreadySatisfied reports whether the canonical directory of task holds at
// least one data file.
func AlreadySatisfied(task DownloadTask, destRoot string) bool {
	entries, err := os.ReadDir(drs.CanonicalDir(destRoot, task.Model, task.Ensemble, task.Year))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && drs.HasExtension(e.Name()) {
			return true
		}
	}
	return false
}
