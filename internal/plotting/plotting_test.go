package plotting

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/avalanche/internal/analysis"
	"github.com/banshee-data/avalanche/internal/engine"
)

func pngHeader(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(b), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), b[:8])
}

func sampleFit(t *testing.T) analysis.Fit {
	t.Helper()
	values := make([]float64, 0, 5000)
	for i := 1; i <= 5000; i++ {
		values = append(values, 5000/float64(i))
	}
	f, err := analysis.FitValues(values, analysis.FitOptions{Bins: 20, SmoothWidth: 5, Cutoffs: &[2]int{0, 10}})
	require.NoError(t, err)
	return f
}

func TestSaveHistogramPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "hist.png")
	require.NoError(t, SaveHistogramPNG(path, "btw L=8", sampleFit(t)))
	pngHeader(t, path)
}

func TestSaveHistogramPNG_Empty(t *testing.T) {
	err := SaveHistogramPNG(filepath.Join(t.TempDir(), "x.png"), "", analysis.Fit{})
	assert.ErrorIs(t, err, analysis.ErrNoData)
}

func TestFrameGrid_Orientation(t *testing.T) {
	// 2x2 interior [[1 2] [3 4]] inside a zero frame
	frame := []float64{
		0, 0, 0, 0,
		0, 1, 2, 0,
		0, 3, 4, 0,
		0, 0, 0, 0,
	}
	fg, err := newFrameGrid(frame, false)
	require.NoError(t, err)
	c, r := fg.Dims()
	assert.Equal(t, 2, c)
	assert.Equal(t, 2, r)
	assert.Equal(t, 3.0, fg.Z(0, 0), "bottom-left is the last interior row")
	assert.Equal(t, 2.0, fg.Z(1, 1), "top-right is the first interior row")
	assert.Equal(t, 1.0, fg.Min())
	assert.Equal(t, 4.0, fg.Max())

	fg, err = newFrameGrid(frame, true)
	require.NoError(t, err)
	c, _ = fg.Dims()
	assert.Equal(t, 4, c)
	assert.Equal(t, 0.0, fg.Min())
}

func TestSaveGridPNG(t *testing.T) {
	frame := make([]float64, 36)
	for i := range frame {
		frame[i] = float64(i % 5)
	}
	dir := t.TempDir()
	for _, withBoundary := range []bool{false, true} {
		path := filepath.Join(dir, "grid.png")
		require.NoError(t, SaveGridPNG(path, "state", frame, withBoundary))
		pngHeader(t, path)
	}

	// a constant grid still has a usable colour range
	require.NoError(t, SaveGridPNG(filepath.Join(dir, "flat.png"), "", make([]float64, 16), false))

	assert.Error(t, SaveGridPNG(filepath.Join(dir, "bad.png"), "", make([]float64, 7), false))
}

func TestWriteGridPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGridPNG(&buf, "state", make([]float64, 25), true))
	require.Greater(t, buf.Len(), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), buf.Bytes()[:8])

	assert.Error(t, WriteGridPNG(&buf, "", make([]float64, 5), false))
}

func TestWriteReportHTML(t *testing.T) {
	f := sampleFit(t)
	frame := make([]float64, 25)
	frame[12] = 3
	recs := make([]engine.Observables, 12_000)
	for i := range recs {
		recs[i] = engine.Observables{AvalancheSize: i % 17}
	}

	var buf bytes.Buffer
	err := WriteReportHTML(&buf, Report{
		Title:    "btw report",
		Subtitle: "L=3",
		Final:    frame,
		Records:  recs,
		Hist:     &f.Histogram,
	})
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "btw report")
	assert.Contains(t, html, "Final lattice")
	assert.Contains(t, html, "Avalanche size histogram")
	assert.Regexp(t, `stride(=|\\u003d)3`, html)
}

func TestWriteReportHTML_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteReportHTML(&buf, Report{}), analysis.ErrNoData)
	assert.Error(t, WriteReportHTML(&buf, Report{Final: make([]float64, 5)}))
}
