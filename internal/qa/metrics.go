package qa

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// coordinateVars are never treated as the data variable of a file.
var coordinateVars = map[string]bool{
	"time": true, "lat": true, "lon": true, "latitude": true, "longitude": true,
	"bnds": true, "time_bnds": true, "lat_bnds": true, "lon_bnds": true,
	"height": true, "lev": true, "lev_bnds": true, "plev": true,
}

// recordChunk is how many records of the data variable are read at once.
const recordChunk = 64

// Metrics are computed over the first floating point data variable.
type Metrics struct {
	Variable   string
	Values     int
	MissingPct float64
	Min        float64
	Max        float64
	Mean       float64
	Std        float64 // population standard deviation
	TimeSteps  int
}

// ReadMetrics opens a NetCDF file, classic or NetCDF-4/HDF5, and computes
// data metrics.
func ReadMetrics(path string) (m Metrics, err error) {
	// The HDF5 decoder can panic on truncated files.
	defer func() {
		if r := recover(); r != nil {
			m, err = Metrics{}, fmt.Errorf("read %s: %v", path, r)
		}
	}()

	nc, err := netcdf.Open(path)
	if err != nil {
		return Metrics{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer nc.Close()

	for _, v := range nc.ListVariables() {
		if coordinateVars[v] {
			continue
		}
		vg, err := nc.GetVarGetter(v)
		if err != nil {
			return Metrics{}, fmt.Errorf("read %s in %s: %w", v, path, err)
		}
		if !isFloat(vg.GoType()) {
			continue
		}
		data, err := readFloatVar(vg)
		if err != nil {
			return Metrics{}, fmt.Errorf("read %s in %s: %w", v, path, err)
		}
		res := summarize(data)
		res.Variable = v
		res.TimeSteps = timeSteps(nc)
		return res, nil
	}
	return Metrics{}, fmt.Errorf("%s: no floating point data variable", path)
}

func isFloat(goType string) bool {
	return strings.HasSuffix(goType, "float32") || strings.HasSuffix(goType, "float64")
}

// readFloatVar reads the whole of vg as float64, recordChunk records at a
// time, with fill and missing values replaced by NaN.
func readFloatVar(vg api.VarGetter) ([]float64, error) {
	var data []float64
	if len(vg.Shape()) == 0 {
		vals, err := vg.Values()
		if err != nil {
			return nil, err
		}
		data = appendFloats(data, reflect.ValueOf(vals))
	} else {
		n := vg.Len()
		for begin := int64(0); begin < n; begin += recordChunk {
			vals, err := vg.GetSlice(begin, min(begin+recordChunk, n))
			if err != nil {
				return nil, err
			}
			data = appendFloats(data, reflect.ValueOf(vals))
		}
	}

	for _, attr := range []string{"_FillValue", "missing_value"} {
		fill, ok := floatAttr(vg.Attributes(), attr)
		if !ok {
			continue
		}
		for i, d := range data {
			if d == fill {
				data[i] = math.NaN()
			}
		}
	}
	return data, nil
}

// appendFloats flattens a nested slice of floats into dst.
func appendFloats(dst []float64, v reflect.Value) []float64 {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		switch x := v.Interface().(type) {
		case []float32:
			for _, f := range x {
				dst = append(dst, float64(f))
			}
			return dst
		case []float64:
			return append(dst, x...)
		}
		for i := 0; i < v.Len(); i++ {
			dst = appendFloats(dst, v.Index(i))
		}
	case reflect.Float32, reflect.Float64:
		dst = append(dst, v.Float())
	case reflect.Interface:
		dst = appendFloats(dst, v.Elem())
	}
	return dst
}

// floatAttr reads a numeric attribute, stored either as a scalar or as a
// one element slice.
func floatAttr(attrs api.AttributeMap, name string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	raw, ok := attrs.Get(name)
	if !ok {
		return 0, false
	}
	switch a := raw.(type) {
	case float32:
		return float64(a), true
	case float64:
		return a, true
	case []float32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []float64:
		if len(a) > 0 {
			return a[0], true
		}
	}
	return 0, false
}

// timeSteps is the length of the time axis, 0 without one.
func timeSteps(nc api.Group) int {
	if vg, err := nc.GetVarGetter("time"); err == nil {
		if len(vg.Shape()) == 0 {
			return 1
		}
		return int(vg.Len())
	}
	if n, ok := nc.GetDimension("time"); ok {
		return int(n)
	}
	return 0
}

func summarize(data []float64) Metrics {
	m := Metrics{Values: len(data)}
	valid := make([]float64, 0, len(data))
	for _, d := range data {
		if math.IsNaN(d) {
			continue
		}
		valid = append(valid, d)
	}
	if len(data) > 0 {
		m.MissingPct = float64(len(data)-len(valid)) / float64(len(data)) * 100
	}
	if len(valid) == 0 {
		m.Min, m.Max = math.NaN(), math.NaN()
		m.Mean, m.Std = math.NaN(), math.NaN()
		return m
	}
	m.Min, m.Max = valid[0], valid[0]
	for _, d := range valid {
		m.Min = math.Min(m.Min, d)
		m.Max = math.Max(m.Max, d)
	}
	m.Mean, m.Std = meanStd(valid, 0)
	return m
}
