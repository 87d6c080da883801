package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/avalanche/internal/engine"
)

// Column names of the observation table.
const (
	ColumnAvalancheSize = "avalanche_size"
	ColumnIterations    = "number_of_iterations"
	ColumnReleases      = "releases"
)

// Columns lists the table columns in CSV order.
var Columns = []string{ColumnAvalancheSize, ColumnIterations, ColumnReleases}

// canonicalColumn maps the accepted spellings onto a column name.
func canonicalColumn(name string) (string, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", ""))
	switch key {
	case "avalanchesize", "size":
		return ColumnAvalancheSize, nil
	case "numberofiterations", "iterations":
		return ColumnIterations, nil
	case "releases", "numberofreleases":
		return ColumnReleases, nil
	}
	return "", fmt.Errorf("unknown column %q (known: %s)", name, strings.Join(Columns, ", "))
}

// Column extracts one column of recs as float64.
func Column(recs []engine.Observables, name string) ([]float64, error) {
	col, err := canonicalColumn(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(recs))
	for i, r := range recs {
		switch col {
		case ColumnAvalancheSize:
			out[i] = float64(r.AvalancheSize)
		case ColumnIterations:
			out[i] = float64(r.Iterations)
		case ColumnReleases:
			if !r.HasReleases {
				return nil, fmt.Errorf("record %d has no release count", i)
			}
			out[i] = float64(r.Releases)
		}
	}
	return out, nil
}

// WriteCSV writes recs with a header row. Releases are left empty for
// records that do not track them.
func WriteCSV(w io.Writer, recs []engine.Observables) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	row := make([]string, len(Columns))
	for _, r := range recs {
		row[0] = strconv.Itoa(r.AvalancheSize)
		row[1] = strconv.Itoa(r.Iterations)
		row[2] = ""
		if r.HasReleases {
			row[2] = strconv.Itoa(r.Releases)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table written by WriteCSV. Columns may appear in any
// order; releases may be absent.
func ReadCSV(r io.Reader) ([]engine.Observables, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty table: %w", ErrNoData)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	pos := map[string]int{}
	for i, h := range header {
		if col, err := canonicalColumn(h); err == nil {
			pos[col] = i
		}
	}
	for _, required := range []string{ColumnAvalancheSize, ColumnIterations} {
		if _, ok := pos[required]; !ok {
			return nil, fmt.Errorf("table is missing column %q", required)
		}
	}
	relIdx, hasRel := pos[ColumnReleases]

	var out []engine.Observables
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var o engine.Observables
		if o.AvalancheSize, err = strconv.Atoi(rec[pos[ColumnAvalancheSize]]); err != nil {
			return nil, fmt.Errorf("line %d: avalanche_size: %w", line, err)
		}
		if o.Iterations, err = strconv.Atoi(rec[pos[ColumnIterations]]); err != nil {
			return nil, fmt.Errorf("line %d: number_of_iterations: %w", line, err)
		}
		if hasRel && rec[relIdx] != "" {
			if o.Releases, err = strconv.Atoi(rec[relIdx]); err != nil {
				return nil, fmt.Errorf("line %d: releases: %w", line, err)
			}
			o.HasReleases = true
		}
		out = append(out, o)
	}
}

// Summary describes a sample.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Max    float64 `json:"max"`
}

// Describe summarises values; the zero Summary is returned for an empty slice.
func Describe(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{N: len(values), Max: floats.Max(values)}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		s.StdDev = 0
	}
	return s
}
