package plotting

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/avalanche/internal/analysis"
	"github.com/banshee-data/avalanche/internal/engine"
	"github.com/banshee-data/avalanche/internal/lattice"
)

// DefaultMaxPoints caps the avalanche time series in a report.
const DefaultMaxPoints = 5000

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Report is the content of an HTML run report.
type Report struct {
	Title    string
	Subtitle string

	// Final is the last bordered frame; only its interior is drawn.
	Final   []float64
	Records []engine.Observables
	Hist    *analysis.Histogram

	// MaxPoints caps the time series; zero means DefaultMaxPoints.
	MaxPoints  int
	AssetsHost string
}

// WriteReportHTML renders the final lattice, the avalanche-size histogram
// and the avalanche-size time series as one go-echarts page. Sections
// without data are skipped.
func WriteReportHTML(w io.Writer, r Report) error {
	page := components.NewPage()
	page.SetPageTitle(r.Title)
	if r.AssetsHost != "" {
		page.SetAssetsHost(r.AssetsHost)
	}

	n := 0
	if len(r.Final) > 0 {
		hm, err := gridHeatMap(r)
		if err != nil {
			return err
		}
		page.AddCharts(hm)
		n++
	}
	if r.Hist != nil && len(r.Hist.Counts) > 0 {
		page.AddCharts(histogramBar(r))
		n++
	}
	if len(r.Records) > 0 {
		page.AddCharts(sizeSeries(r))
		n++
	}
	if n == 0 {
		return fmt.Errorf("report: %w", analysis.ErrNoData)
	}
	return page.Render(w)
}

func (r Report) initOpts(height string) opts.Initialization {
	return opts.Initialization{PageTitle: r.Title, Width: "900px", Height: height, AssetsHost: r.AssetsHost}
}

func gridHeatMap(r Report) (*charts.HeatMap, error) {
	g, err := lattice.FromFlat(r.Final)
	if err != nil {
		return nil, fmt.Errorf("report grid: %w", err)
	}
	in := g.Interior()
	axis := make([]string, in.Size())
	for i := range axis {
		axis[i] = strconv.Itoa(i)
	}
	data := make([]opts.HeatMapData, 0, in.Size()*in.Size())
	lo, hi := math.Inf(1), math.Inf(-1)
	in.Each(func(row, col int, v float64) {
		// echarts puts y=0 at the bottom
		data = append(data, opts.HeatMapData{Value: [3]interface{}{col, in.Size() - 1 - row, v}})
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	})
	if lo == hi {
		hi = lo + 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(r.initOpts("900px")),
		charts.WithTitleOpts(opts.Title{Title: "Final lattice", Subtitle: r.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: axis, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: axis, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.SetXAxis(axis).AddSeries("value", data)
	return hm, nil
}

func histogramBar(r Report) *charts.Bar {
	centers := r.Hist.Centers()
	x := make([]string, 0, len(centers))
	y := make([]opts.BarData, 0, len(centers))
	for i, c := range r.Hist.Counts {
		if c == 0 {
			continue
		}
		x = append(x, strconv.FormatFloat(centers[i], 'g', 3, 64))
		y = append(y, opts.BarData{Value: c})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(r.initOpts("500px")),
		charts.WithTitleOpts(opts.Title{Title: "Avalanche size histogram", Subtitle: fmt.Sprintf("%d log bins, %d dropped", len(r.Hist.Counts), r.Hist.Dropped)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "size", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count", Type: "log"}),
	)
	bar.SetXAxis(x).AddSeries("count", y)
	return bar
}

func sizeSeries(r Report) *charts.Line {
	maxPoints := r.MaxPoints
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	stride := 1
	if len(r.Records) > maxPoints {
		stride = int(math.Ceil(float64(len(r.Records)) / float64(maxPoints)))
	}

	x := make([]int, 0, len(r.Records)/stride+1)
	y := make([]opts.LineData, 0, len(r.Records)/stride+1)
	for i := 0; i < len(r.Records); i += stride {
		x = append(x, i)
		y = append(y, opts.LineData{Value: r.Records[i].AvalancheSize})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(r.initOpts("400px")),
		charts.WithTitleOpts(opts.Title{Title: "Avalanche size over time", Subtitle: fmt.Sprintf("records=%d stride=%d", len(r.Records), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "record", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "size"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).AddSeries("avalanche_size", y, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}
