package report

import (
	"math"
	"strconv"
)

var qualityHeader = []string{
	"source_id",
	"variant_label",
	"anio_inicializacion",
	"tamano_archivo_mb",
	"porcentaje_valores_faltantes",
	"valor_dato_min",
	"valor_dato_max",
	"valor_dato_media",
	"valor_dato_std",
	"pasos_temporales",
}

var aggregateHeader = []string{
	"source_id",
	"variant_label",
	"anio_init_min",
	"anio_init_max",
	"numero_archivos",
	"tamano_medio_mb",
	"desv_est_tamano_mb",
}

// QualityRow is one line of the per-year quality metrics. Metric fields
// are NaN when the file could not be read. TimeSteps is negative then.
type QualityRow struct {
	SourceID     string
	VariantLabel string
	InitYear     int
	SizeMB       float64
	MissingPct   float64
	Min          float64
	Max          float64
	Mean         float64
	Std          float64
	TimeSteps    int
}

// AggregateRow summarises one (source_id, variant_label) group.
type AggregateRow struct {
	SourceID     string
	VariantLabel string
	MinYear      int
	MaxYear      int
	Files        int
	MeanSizeMB   float64
	StdSizeMB    float64
}

// WriteQualityMetrics writes metricas_calidad.csv style output.
func WriteQualityMetrics(path string, rows []QualityRow) error {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		steps := ""
		if r.TimeSteps >= 0 {
			steps = strconv.Itoa(r.TimeSteps)
		}
		out = append(out, []string{
			r.SourceID,
			r.VariantLabel,
			strconv.Itoa(r.InitYear),
			formatFloat(r.SizeMB),
			formatFloat(r.MissingPct),
			formatFloat(r.Min),
			formatFloat(r.Max),
			formatFloat(r.Mean),
			formatFloat(r.Std),
			steps,
		})
	}
	return WriteTable(path, qualityHeader, out)
}

// WriteAggregateMetrics writes metricas_agregadas.csv style output.
func WriteAggregateMetrics(path string, rows []AggregateRow) error {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.SourceID,
			r.VariantLabel,
			strconv.Itoa(r.MinYear),
			strconv.Itoa(r.MaxYear),
			strconv.Itoa(r.Files),
			formatFloat(r.MeanSizeMB),
			formatFloat(r.StdSizeMB),
		})
	}
	return WriteTable(path, aggregateHeader, out)
}

// formatFloat writes NaN as an empty cell.
func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 4, 64)
}
