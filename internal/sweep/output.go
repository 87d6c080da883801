package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/avalanche/internal/analysis"
)

// CSVWriter writes one raw row per run and one summary row per point.
// Either writer may be nil.
type CSVWriter struct {
	Summary *csv.Writer
	Raw     *csv.Writer
}

// NewCSVWriter wraps the given outputs; a nil output disables that table.
func NewCSVWriter(summary, raw io.Writer) *CSVWriter {
	c := &CSVWriter{}
	if summary != nil {
		c.Summary = csv.NewWriter(summary)
	}
	if raw != nil {
		c.Raw = csv.NewWriter(raw)
	}
	return c
}

func pointHeader(params []Param) []string {
	h := []string{"model", "l"}
	for _, p := range params {
		h = append(h, p.Name)
	}
	return h
}

// SummaryHeader returns the summary column names.
func SummaryHeader(params []Param) []string {
	return append(pointHeader(params),
		"runs", "fitted", "exponent_mean", "exponent_stddev", "r_squared_mean",
		"size_mean", "size_stddev", "size_max", "iterations_mean")
}

// RawHeader returns the raw column names.
func RawHeader(params []Param) []string {
	return append(pointHeader(params),
		"repeat", "seed", "steps", "kept", "elapsed_ms",
		"size_mean", "size_max", "iterations_mean",
		"exponent", "intercept", "r_squared", "fit_start", "fit_end", "fit_error")
}

// WriteHeaders writes both headers.
func (c *CSVWriter) WriteHeaders(params []Param) error {
	if c.Summary != nil {
		c.Summary.Write(SummaryHeader(params))
	}
	if c.Raw != nil {
		c.Raw.Write(RawHeader(params))
	}
	return c.Flush()
}

func f6(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func pointRow(pt Point) []string {
	row := []string{pt.Model, strconv.Itoa(pt.L)}
	for _, v := range pt.Values {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return row
}

// WriteRawRow writes one run.
func (c *CSVWriter) WriteRawRow(r Result) error {
	if c.Raw == nil {
		return nil
	}
	row := append(pointRow(r.Point),
		strconv.Itoa(r.Repeat),
		strconv.FormatUint(r.Seed, 10),
		strconv.Itoa(r.Run.Steps),
		strconv.Itoa(r.Run.Kept),
		strconv.FormatInt(r.Run.Elapsed.Milliseconds(), 10),
		f6(r.Size.Mean),
		strconv.FormatFloat(r.Size.Max, 'f', 0, 64),
		f6(r.Iterations.Mean),
	)
	if r.FitErr != nil {
		row = append(row, "", "", "", "", "", r.FitErr.Error())
	} else {
		row = append(row,
			f6(r.Fit.Exponent),
			f6(r.Fit.Intercept),
			f6(r.Fit.RSquared),
			strconv.Itoa(r.Fit.Start),
			strconv.Itoa(r.Fit.End),
			"",
		)
	}
	c.Raw.Write(row)
	c.Raw.Flush()
	return c.Raw.Error()
}

// WriteSummary aggregates the repeats of one point.
func (c *CSVWriter) WriteSummary(results []Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to summarise")
	}
	if c.Summary == nil {
		return nil
	}
	var exps, r2s, sizes, iters []float64
	maxSize := 0.0
	for _, r := range results {
		sizes = append(sizes, r.Size.Mean)
		iters = append(iters, r.Iterations.Mean)
		maxSize = max(maxSize, r.Size.Max)
		if r.FitErr == nil {
			exps = append(exps, r.Fit.Exponent)
			r2s = append(r2s, r.Fit.RSquared)
		}
	}
	exp := analysis.Describe(exps)
	size := analysis.Describe(sizes)

	row := append(pointRow(results[0].Point),
		strconv.Itoa(len(results)),
		strconv.Itoa(len(exps)),
	)
	if len(exps) > 0 {
		row = append(row, f6(exp.Mean), f6(exp.StdDev), f6(analysis.Describe(r2s).Mean))
	} else {
		row = append(row, "", "", "")
	}
	row = append(row,
		f6(size.Mean),
		f6(size.StdDev),
		strconv.FormatFloat(maxSize, 'f', 0, 64),
		f6(analysis.Describe(iters).Mean),
	)
	c.Summary.Write(row)
	c.Summary.Flush()
	return c.Summary.Error()
}

// Flush flushes both writers and returns the first error.
func (c *CSVWriter) Flush() error {
	for _, w := range []*csv.Writer{c.Summary, c.Raw} {
		if w == nil {
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
	}
	return nil
}
