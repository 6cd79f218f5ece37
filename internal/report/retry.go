package report

import (
	"strconv"

	"cmipsync/internal/retry"
)

var retryHeader = []string{"modelo", "ensamble", "anio", "estado", "detalle"}

// WriteRetryReport writes one row per outcome in the order given.
func WriteRetryReport(path string, outcomes []retry.TaskOutcome) error {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{
			o.Task.Model,
			o.Task.Ensemble,
			strconv.Itoa(o.Task.Year),
			string(o.Status),
			o.Detail,
		})
	}
	return WriteTable(path, retryHeader, rows)
}
