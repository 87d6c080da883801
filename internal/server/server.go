// Package server exposes a directory of snapshot stores over HTTP: run
// listings, frames, observation downloads, exponent fits and HTML reports.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/avalanche/internal/analysis"
	"github.com/banshee-data/avalanche/internal/httputil"
	"github.com/banshee-data/avalanche/internal/monitoring"
	"github.com/banshee-data/avalanche/internal/plotting"
	"github.com/banshee-data/avalanche/internal/security"
	"github.com/banshee-data/avalanche/internal/simulation"
	"github.com/banshee-data/avalanche/internal/snapshot"
)

// StoreExt is the file extension of a snapshot store.
const StoreExt = ".db"

// Server serves the stores found directly inside Dir.
type Server struct {
	Dir        string
	AssetsHost string // passed to the HTML reports
}

// NewServer returns a Server for dir.
func NewServer(dir string) *Server {
	return &Server{Dir: dir}
}

// ServeMux returns the API and report routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stores", s.listStores)
	mux.HandleFunc("GET /api/stores/{store}/runs", s.listRuns)
	mux.HandleFunc("GET /api/stores/{store}/runs/{run}", s.showRun)
	mux.HandleFunc("GET /api/stores/{store}/runs/{run}/observations.csv", s.downloadObservations)
	mux.HandleFunc("GET /api/stores/{store}/runs/{run}/frames/{index}", s.showFrame)
	mux.HandleFunc("GET /api/stores/{store}/runs/{run}/fit", s.showFit)
	mux.HandleFunc("GET /stores/{store}/runs/{run}/report", s.showReport)
	mux.HandleFunc("GET /stores/{store}/runs/{run}/grid.png", s.showGrid)
	return mux
}

// StoreInfo is one entry of the store listing.
type StoreInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Stores lists the stores in Dir by name.
func (s *Server) Stores() ([]StoreInfo, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}
	var out []StoreInfo
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), StoreExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, StoreInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// storePath resolves a store name from a URL to a file inside Dir.
func (s *Server) storePath(name string) (string, error) {
	if name != security.SanitizeFilename(name) || !strings.EqualFold(filepath.Ext(name), StoreExt) {
		return "", fmt.Errorf("invalid store name %q: %w", name, security.ErrPathEscape)
	}
	path := filepath.Join(s.Dir, name)
	if err := security.ValidatePathWithinDirectory(path, s.Dir); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Server) openRun(r *http.Request) (*snapshot.Inspection, error) {
	path, err := s.storePath(r.PathValue("store"))
	if err != nil {
		return nil, err
	}
	run := r.PathValue("run")
	if run == "latest" {
		return snapshot.OpenLatest(path)
	}
	return snapshot.Open(path, run)
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, security.ErrPathEscape):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, analysis.ErrNoData):
		httputil.Unprocessable(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.Stores()
	if err != nil {
		writeError(w, err)
		return
	}
	if stores == nil {
		stores = []StoreInfo{}
	}
	httputil.WriteJSONOK(w, stores)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	path, err := s.storePath(r.PathValue("store"))
	if err != nil {
		writeError(w, err)
		return
	}
	runs, err := snapshot.ListRuns(path)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []snapshot.RunSummary{}
	}
	httputil.WriteJSONOK(w, runs)
}

// RunInfo is the detail view of one run.
type RunInfo struct {
	RunID         string           `json:"run_id"`
	Model         string           `json:"model"`
	DType         string           `json:"dtype"`
	L             int              `json:"l"`
	Boundary      int              `json:"boundary"`
	SaveEvery     int              `json:"save_every"`
	Frames        int              `json:"frames"`
	Params        json.RawMessage  `json:"params,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	SchemaVersion uint             `json:"schema_version"`
	Observations  int              `json:"observations"`
	Size          analysis.Summary `json:"avalanche_size"`
	Iterations    analysis.Summary `json:"iterations"`
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	in, err := s.openRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer in.Close()
	obs, err := in.Observations()
	if err != nil {
		writeError(w, err)
		return
	}
	recs := simulation.ObservablesFrom(obs)

	info := RunInfo{
		RunID:         in.RunID,
		Model:         in.Model,
		DType:         in.DType,
		L:             in.L,
		Boundary:      in.Boundary,
		SaveEvery:     in.SaveEvery,
		Frames:        in.Frames,
		CreatedAt:     in.CreatedAt,
		SchemaVersion: in.SchemaVersion,
		Observations:  len(obs),
	}
	if json.Valid([]byte(in.ParamsJSON)) {
		info.Params = json.RawMessage(in.ParamsJSON)
	}
	if v, err := analysis.Column(recs, analysis.ColumnAvalancheSize); err == nil {
		info.Size = analysis.Describe(v)
	}
	if v, err := analysis.Column(recs, analysis.ColumnIterations); err == nil {
		info.Iterations = analysis.Describe(v)
	}
	httputil.WriteJSONOK(w, info)
}

func (s *Server) downloadObservations(w http.ResponseWriter, r *http.Request) {
	in, err := s.openRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer in.Close()
	obs, err := in.Observations()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Attachment(w, "text/csv", in.RunID+".csv")
	if err := analysis.WriteCSV(w, simulation.ObservablesFrom(obs)); err != nil {
		monitoring.Logf("write observations of run %s: %v", in.RunID, err)
	}
}

// Frame is one snapshot in row-major order, guard frame included.
type Frame struct {
	RunID  string    `json:"run_id"`
	Index  int       `json:"index"`
	Step   int       `json:"step"`
	Width  int       `json:"width"`
	Values []float64 `json:"values"`
}

func (s *Server) showFrame(w http.ResponseWriter, r *http.Request) {
	in, err := s.openRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer in.Close()

	var i int
	if idx := r.PathValue("index"); idx == "last" {
		i = in.Frames - 1
	} else if i, err = strconv.Atoi(idx); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid frame index %q", idx))
		return
	}
	values, err := in.Frame(i)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, Frame{
		RunID:  in.RunID,
		Index:  i,
		Step:   i * in.SaveEvery,
		Width:  in.Width(),
		Values: values,
	})
}

// FitResult is the JSON form of an exponent fit.
type FitResult struct {
	Column    string    `json:"column"`
	Exponent  float64   `json:"exponent"`
	Intercept float64   `json:"intercept"`
	RSquared  float64   `json:"r_squared"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	X         []float64 `json:"x"`
	Y         []float64 `json:"y"`
}

// fitOptions reads bins, smooth_width, d2_cutoff, column and cutoffs
// (start,end) from the query string.
func fitOptions(r *http.Request) (analysis.FitOptions, error) {
	q := r.URL.Query()
	opts := analysis.DefaultFitOptions()
	ints := map[string]*int{"bins": &opts.Bins, "smooth_width": &opts.SmoothWidth}
	for name, dst := range ints {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return opts, fmt.Errorf("invalid %s %q", name, v)
			}
			*dst = n
		}
	}
	if v := q.Get("d2_cutoff"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return opts, fmt.Errorf("invalid d2_cutoff %q", v)
		}
		opts.D2Cutoff = f
	}
	if v := q.Get("column"); v != "" {
		opts.Column = v
	}
	if v := q.Get("cutoffs"); v != "" {
		a, b, ok := strings.Cut(v, ",")
		start, err1 := strconv.Atoi(strings.TrimSpace(a))
		end, err2 := strconv.Atoi(strings.TrimSpace(b))
		if !ok || err1 != nil || err2 != nil {
			return opts, fmt.Errorf("invalid cutoffs %q: expected start,end", v)
		}
		opts.Cutoffs = &[2]int{start, end}
	}
	return opts, nil
}

func (s *Server) showFit(w http.ResponseWriter, r *http.Request) {
	opts, err := fitOptions(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	in, err := s.openRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer in.Close()
	obs, err := in.Observations()
	if err != nil {
		writeError(w, err)
		return
	}
	fit, err := analysis.FitExponent(simulation.ObservablesFrom(obs), opts)
	if err != nil {
		if errors.Is(err, analysis.ErrNoData) {
			writeError(w, err)
		} else {
			httputil.BadRequest(w, err.Error())
		}
		return
	}
	httputil.WriteJSONOK(w, FitResult{
		Column:    opts.Column,
		Exponent:  fit.Exponent,
		Intercept: fit.Intercept,
		RSquared:  fit.RSquared,
		Start:     fit.Start,
		End:       fit.End,
		X:         fit.X,
		Y:         fit.Y,
	})
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	in, err := s.openRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer in.Close()
	obs, err := in.Observations()
	if err != nil {
		writeError(w, err)
		return
	}
	recs := simulation.ObservablesFrom(obs)

	report := plotting.Report{
		Title:      fmt.Sprintf("%s L=%d", in.Model, in.L),
		Subtitle:   "run " + in.RunID,
		Final:      in.Final,
		Records:    recs,
		AssetsHost: s.AssetsHost,
	}
	if sizes, err := analysis.Column(recs, analysis.ColumnAvalancheSize); err == nil {
		if h, err := analysis.NewHistogram(sizes, analysis.DefaultBins); err == nil {
			report.Hist = &h
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := plotting.WriteReportHTML(w, report); err != nil {
		writeError(w, err)
	}
}

func (s *Server) showGrid(w http.ResponseWriter, r *http.Request) {
	in, err := s.openRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer in.Close()
	if in.Final == nil {
		writeError(w, fmt.Errorf("run %s has no snapshots: %w", in.RunID, snapshot.ErrNotFound))
		return
	}
	withBoundary := r.URL.Query().Get("boundary") == "true"
	w.Header().Set("Content-Type", "image/png")
	if err := plotting.WriteGridPNG(w, fmt.Sprintf("%s L=%d", in.Model, in.L), in.Final, withBoundary); err != nil {
		monitoring.Logf("grid png for run %s: %v", in.RunID, err)
	}
}

// ListenAndServe runs srv until ctx is cancelled, then shuts it down
// within shutdownTimeout.
func ListenAndServe(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return <-errc
}
