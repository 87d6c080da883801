// Package sweep runs one simulation per point of a parameter grid and
// writes per-run and per-point CSV tables.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxValues bounds generated ranges and cartesian products.
const maxValues = 10000

// RangeSpec is an inclusive "min:max:step" range.
type RangeSpec[T int | float64] struct {
	Min  T
	Max  T
	Step T
}

func parseRange[T int | float64](s string, parse func(string) (T, error)) (RangeSpec[T], error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec[T]{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}
	var vals [3]T
	for i, name := range []string{"min", "max", "step"} {
		v, err := parse(strings.TrimSpace(parts[i]))
		if err != nil {
			return RangeSpec[T]{}, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		vals[i] = v
	}
	if vals[2] <= 0 {
		return RangeSpec[T]{}, fmt.Errorf("step must be positive, got %v", vals[2])
	}
	return RangeSpec[T]{Min: vals[0], Max: vals[1], Step: vals[2]}, nil
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// ParseRangeSpec parses a float "min:max:step".
func ParseRangeSpec(s string) (RangeSpec[float64], error) { return parseRange(s, parseFloat) }

// ParseIntRangeSpec parses an integer "min:max:step".
func ParseIntRangeSpec(s string) (RangeSpec[int], error) { return parseRange(s, strconv.Atoi) }

// Values expands the range, max included. Float values are rounded to
// 1e-9 to absorb accumulated step error. A range with more than
// maxValues values, or with min > max, yields nil.
func (r RangeSpec[T]) Values() []T {
	if r.Step <= 0 || r.Min > r.Max {
		return nil
	}
	count := int(float64(r.Max-r.Min)/float64(r.Step)) + 1
	if count > maxValues || count < 0 {
		return nil
	}
	out := make([]T, 0, count+1)
	for i := 0; i <= count; i++ {
		v := r.Min + T(i)*r.Step
		if f, ok := any(v).(float64); ok {
			v = T(math.Round(f*1e9) / 1e9)
		}
		if v > r.Max {
			break
		}
		out = append(out, v)
	}
	return out
}

func parseCSV[T any](s string, parse func(string) (T, error)) ([]T, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]T, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := parse(p)
		if err != nil {
			return nil, fmt.Errorf("invalid value '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseCSVFloat64s parses "a,b,c". Empty input yields nil.
func ParseCSVFloat64s(s string) ([]float64, error) { return parseCSV(s, parseFloat) }

// ParseCSVInts parses "a,b,c". Empty input yields nil.
func ParseCSVInts(s string) ([]int, error) { return parseCSV(s, strconv.Atoi) }

// ParseParamList accepts either "min:max:step" or a comma-separated list.
func ParseParamList(s string) ([]float64, error) {
	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		return spec.Values(), nil
	}
	return ParseCSVFloat64s(s)
}

// ParseIntParamList is ParseParamList for integers.
func ParseIntParamList(s string) ([]int, error) {
	if strings.Contains(s, ":") {
		spec, err := ParseIntRangeSpec(s)
		if err != nil {
			return nil, err
		}
		return spec.Values(), nil
	}
	return ParseCSVInts(s)
}

// ParseAssignment splits "name=values" and expands the values with
// ParseParamList.
func ParseAssignment(s string) (string, []float64, error) {
	name, spec, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("invalid parameter %q: expected name=values", s)
	}
	vals, err := ParseParamList(strings.TrimSpace(spec))
	if err != nil {
		return "", nil, fmt.Errorf("parameter %s: %w", name, err)
	}
	if len(vals) == 0 {
		return "", nil, fmt.Errorf("parameter %s: no values", name)
	}
	return name, vals, nil
}

// ExpandRanges returns the cartesian product of the given value lists,
// last list varying fastest. An empty list contributes a single zero.
func ExpandRanges(lists ...[]float64) ([][]float64, error) {
	if len(lists) == 0 {
		return nil, nil
	}
	vals := make([][]float64, len(lists))
	total := 1
	for i, l := range lists {
		vals[i] = l
		if len(l) == 0 {
			vals[i] = []float64{0}
		}
		total *= len(vals[i])
		if total > maxValues {
			return nil, fmt.Errorf("parameter combinations would exceed safe limit of %d", maxValues)
		}
	}

	out := make([][]float64, total)
	for i := range out {
		out[i] = make([]float64, len(lists))
	}
	repeat := 1
	for dim := len(lists) - 1; dim >= 0; dim-- {
		dimVals := vals[dim]
		for i := range out {
			out[i][dim] = dimVals[(i/repeat)%len(dimVals)]
		}
		repeat *= len(dimVals)
	}
	return out, nil
}
