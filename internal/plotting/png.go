// Package plotting renders avalanche statistics and lattice frames as PNG
// images (gonum/plot) and interactive HTML reports (go-echarts).
package plotting

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/avalanche/internal/analysis"
	"github.com/banshee-data/avalanche/internal/lattice"
)

// Image sizes.
var (
	HistogramWidth  = 8 * vg.Inch
	HistogramHeight = 6 * vg.Inch
	GridSide        = 7 * vg.Inch
)

// SaveHistogramPNG draws the non-empty histogram bins on log-log axes with
// the fitted power law over its scaling region.
func SaveHistogramPNG(path, title string, f analysis.Fit) error {
	if len(f.AllX) == 0 {
		return fmt.Errorf("histogram plot: %w", analysis.ErrNoData)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "avalanche size"
	p.Y.Label.Text = "probability density"
	p.X.Scale = plot.LogScale{}
	p.Y.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(f.AllX))
	for i := range f.AllX {
		pts[i] = plotter.XY{X: f.AllX[i], Y: f.AllY[i]}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("histogram scatter: %w", err)
	}
	sc.GlyphStyle.Radius = vg.Points(2.5)
	p.Add(sc)
	p.Legend.Add("histogram", sc)

	if len(f.X) >= 2 {
		fitPts := plotter.XYs{
			{X: f.X[0], Y: f.Predict(f.X[0])},
			{X: f.X[len(f.X)-1], Y: f.Predict(f.X[len(f.X)-1])},
		}
		line, err := plotter.NewLine(fitPts)
		if err != nil {
			return fmt.Errorf("fit line: %w", err)
		}
		line.Width = vg.Points(1.5)
		line.Color = color.RGBA{R: 200, A: 255}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("slope %.3f (R² %.3f)", f.Exponent, f.RSquared), line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(HistogramWidth, HistogramHeight, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// frameGrid adapts a bordered frame to plotter.GridXYZ. Row 0 of the
// lattice is drawn at the top.
type frameGrid struct {
	g   *lattice.Grid[float64]
	off int // first drawn row/column
	n   int // drawn rows/columns
}

func newFrameGrid(frame []float64, withBoundary bool) (frameGrid, error) {
	g, err := lattice.FromFlat(frame)
	if err != nil {
		return frameGrid{}, err
	}
	if withBoundary {
		return frameGrid{g: g, off: 0, n: g.Width()}, nil
	}
	return frameGrid{g: g, off: lattice.BoundarySize, n: g.L()}, nil
}

func (f frameGrid) Dims() (c, r int) { return f.n, f.n }
func (f frameGrid) X(c int) float64  { return float64(c) }
func (f frameGrid) Y(r int) float64  { return float64(r) }
func (f frameGrid) Z(c, r int) float64 {
	return f.g.At(f.off+f.n-1-r, f.off+c)
}

func (f frameGrid) Min() float64 {
	lo := math.Inf(1)
	for r := 0; r < f.n; r++ {
		for c := 0; c < f.n; c++ {
			lo = math.Min(lo, f.Z(c, r))
		}
	}
	return lo
}

func (f frameGrid) Max() float64 {
	hi := math.Inf(-1)
	for r := 0; r < f.n; r++ {
		for c := 0; c < f.n; c++ {
			hi = math.Max(hi, f.Z(c, r))
		}
	}
	return hi
}

func gridPlot(title string, frame []float64, withBoundary bool) (*plot.Plot, error) {
	fg, err := newFrameGrid(frame, withBoundary)
	if err != nil {
		return nil, fmt.Errorf("grid plot: %w", err)
	}

	hm := plotter.NewHeatMap(fg, moreland.SmoothBlueRed().Palette(255))
	if hm.Min == hm.Max {
		hm.Min -= 0.5
		hm.Max += 0.5
	}

	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(hm)
	return p, nil
}

// SaveGridPNG draws a lattice frame as a heat map. The guard frame is
// included only when withBoundary is set.
func SaveGridPNG(path, title string, frame []float64, withBoundary bool) error {
	p, err := gridPlot(title, frame, withBoundary)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(GridSide, GridSide, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// WriteGridPNG is SaveGridPNG onto a writer.
func WriteGridPNG(w io.Writer, title string, frame []float64, withBoundary bool) error {
	p, err := gridPlot(title, frame, withBoundary)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(GridSide, GridSide, "png")
	if err != nil {
		return fmt.Errorf("grid plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
