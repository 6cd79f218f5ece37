package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cmipsync/internal/catalog"
)

// DefaultFailureReason is recorded for datasets the catalog listed but
// could not deliver.
const DefaultFailureReason = "Nodo offline o sin información de acceso"

const attemptTimeFormat = "2006-01-02 15:04:05"

var failedHeader = []string{"clave_dataset", "source_id", "fecha_intento", "motivo"}

// FailedDownloadsPath is the per-model failure log inside dir.
func FailedDownloadsPath(dir, model string) string {
	return filepath.Join(dir, fmt.Sprintf("descargas_fallidas_%s.csv", strings.ToLower(model)))
}

// AppendFailedDownloads logs each key as a failed download of model. An
// empty set writes nothing, not even a header.
func AppendFailedDownloads(path, model string, keys catalog.KeySet, reason string, at time.Time) error {
	if keys.Len() == 0 {
		return nil
	}
	if reason == "" {
		reason = DefaultFailureReason
	}
	stamp := at.Format(attemptTimeFormat)
	rows := make([][]string, 0, keys.Len())
	for _, k := range keys.Sorted() {
		rows = append(rows, []string{string(k), model, stamp, reason})
	}
	return AppendTable(path, failedHeader, rows)
}
