package types

// TaskStatus is the outcome recorded for one retry task. The string values
// are written verbatim to the retry report's estado column.
type TaskStatus string

const (
	TaskFetched         TaskStatus = "descargado"
	TaskNoResults       TaskStatus = "sin_resultados"
	TaskFetchIncomplete TaskStatus = "sin_descarga"
	TaskError           TaskStatus = "error"
	TaskAlreadyExists   TaskStatus = "ya_existe"
	TaskPlanned         TaskStatus = "planificado"
)

// IsSuccess returns true if the task left data in the canonical tree
func (s TaskStatus) IsSuccess() bool {
	return s == TaskFetched || s == TaskAlreadyExists
}

// IsFailure returns true if the task produced nothing usable
func (s TaskStatus) IsFailure() bool {
	return s == TaskError || s == TaskFetchIncomplete || s == TaskNoResults
}

// NeedsRelocation reports whether the fetch cache should be swept after a
// task with this status. Partial fetches may still leave usable files, so
// only a search that found nothing is skipped.
func (s TaskStatus) NeedsRelocation() bool {
	switch s {
	case TaskFetched, TaskFetchIncomplete, TaskError:
		return true
	default:
		return false
	}
}
