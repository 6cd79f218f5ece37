package qa

import (
	"math"

	"cmipsync/internal/completeness"
	"cmipsync/internal/core/types"
)

// SizeAnomaly is a file whose size strays from its group's mean.
type SizeAnomaly struct {
	File         FileInfo
	DeviationPct float64 // signed, relative to the group mean
	TooSmall     bool    // below the configured minimum file size
}

// GroupSizes summarises file sizes of one group.
type GroupSizes struct {
	Key       completeness.GroupKey
	Count     int
	MinYear   int
	MaxYear   int
	MeanMB    float64
	StdMB     float64 // sample standard deviation, NaN for a single file
	Anomalies []SizeAnomaly
}

// AnalyzeSizes flags files outside mean*(1±threshold) within each group, and
// any file smaller than minSize.
func AnalyzeSizes(inv Inventory, threshold float64, minSize types.Bytes) []GroupSizes {
	keys, groups := inv.Groups()
	out := make([]GroupSizes, 0, len(keys))
	for _, k := range keys {
		files := groups[k]
		sizes := make([]float64, len(files))
		for i, f := range files {
			sizes[i] = f.Size.MB()
		}
		mean, std := meanStd(sizes, 1)

		g := GroupSizes{Key: k, Count: len(files), MeanMB: mean, StdMB: std, MinYear: files[0].Member.InitYear, MaxYear: files[0].Member.InitYear}
		for i, f := range files {
			g.MinYear = min(g.MinYear, f.Member.InitYear)
			g.MaxYear = max(g.MaxYear, f.Member.InitYear)

			outside := sizes[i] < mean*(1-threshold) || sizes[i] > mean*(1+threshold)
			tooSmall := minSize > 0 && f.Size < minSize
			if !outside && !tooSmall {
				continue
			}
			dev := 0.0
			if mean > 0 {
				dev = (sizes[i] - mean) / mean * 100
			}
			g.Anomalies = append(g.Anomalies, SizeAnomaly{File: f, DeviationPct: dev, TooSmall: tooSmall})
		}
		out = append(out, g)
	}
	return out
}

// meanStd returns the mean and standard deviation of xs with ddof degrees
// of freedom removed. The deviation is NaN when len(xs) <= ddof.
func meanStd(xs []float64, ddof int) (float64, float64) {
	if len(xs) == 0 {
		return math.NaN(), math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) <= ddof {
		return mean, math.NaN()
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)-ddof))
}
