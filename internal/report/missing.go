package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"cmipsync/internal/completeness"
	"cmipsync/internal/drs"
	"cmipsync/internal/retry"
)

var missingHeader = []string{
	"modelo",
	"ensamble",
	"anio_min_detectado",
	"anio_max_detectado",
	"anio_inicio_esperado",
	"anio_fin_esperado",
	"anios_presentes",
	"anios_esperados",
	"anios_faltantes",
	"lista_anios_faltantes",
}

var missingRequired = []string{"modelo", "ensamble", "lista_anios_faltantes"}

// MissingColumnsError is returned when a missing-years CSV lacks a
// required column.
type MissingColumnsError struct {
	Path    string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("invalid CSV %s: missing required columns %v", e.Path, e.Columns)
}

// WriteMissingYears writes one row per record. Records without
// observations leave the detected and expected bounds empty.
func WriteMissingYears(path string, records []completeness.Record) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := []string{r.Model, r.Ensemble, "", "", "", "", "0", "0", "0", ""}
		if !r.NoObservations {
			row[2] = strconv.Itoa(r.ObservedMin)
			row[3] = strconv.Itoa(r.ObservedMax)
			row[4] = strconv.Itoa(r.ExpectedStart)
			row[5] = strconv.Itoa(r.ExpectedEnd)
			row[6] = strconv.Itoa(len(r.Observed))
			row[7] = strconv.Itoa(r.ExpectedCount())
			row[8] = strconv.Itoa(len(r.Missing))
			row[9] = joinYears(r.Missing)
		}
		rows = append(rows, row)
	}
	return WriteTable(path, missingHeader, rows)
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ",")
}

// ReadMissingTasks reads a missing-years CSV back into download tasks.
// Rows without model or ensemble are skipped; modelFilter keeps only models
// containing it, case insensitive.
func ReadMissingTasks(path, modelFilter string) ([]retry.DownloadTask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readMissingTasks(f, path, modelFilter)
}

func readMissingTasks(r io.Reader, path, modelFilter string) ([]retry.DownloadTask, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &MissingColumnsError{Path: path, Columns: missingRequired}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var absent []string
	for _, name := range missingRequired {
		if _, ok := col[name]; !ok {
			absent = append(absent, name)
		}
	}
	if len(absent) > 0 {
		return nil, &MissingColumnsError{Path: path, Columns: absent}
	}

	field := func(rec []string, name string) string {
		if i := col[name]; i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	filter := strings.ToLower(modelFilter)
	var tasks []retry.DownloadTask
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		model, ensemble := field(rec, "modelo"), field(rec, "ensamble")
		if model == "" || ensemble == "" {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(model), filter) {
			continue
		}
		if !drs.SafeSegment(model) || !drs.SafeSegment(ensemble) {
			return nil, fmt.Errorf("%s line %d: model %q or ensemble %q is not a directory name", path, line, model, ensemble)
		}
		years, err := parseYears(field(rec, "lista_anios_faltantes"))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		for _, y := range years {
			tasks = append(tasks, retry.DownloadTask{Model: model, Ensemble: ensemble, Year: y})
		}
	}
	return tasks, nil
}

func parseYears(s string) ([]int, error) {
	var years []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		years = append(years, y)
	}
	return years, nil
}
