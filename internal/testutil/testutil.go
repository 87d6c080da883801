// Package testutil provides shared test helpers: HTTP request shortcuts
// and store fixtures.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/avalanche/internal/snapshot"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// Get serves a GET request for path through h.
func Get(t testing.TB, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// DecodeJSON decodes the recorded body into a T, failing the test on error.
func DecodeJSON[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// Run is the content of one fixture run.
type Run struct {
	Meta         snapshot.Meta
	Frames       [][]float64
	Observations []snapshot.Observation
}

// WriteStore writes runs into a SQLite store at path and returns their ids
// in order.
func WriteStore(t testing.TB, path string, runs ...Run) []string {
	t.Helper()
	s, err := snapshot.OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		if err := s.Begin(r.Meta); err != nil {
			t.Fatalf("begin run: %v", err)
		}
		for i, f := range r.Frames {
			if err := s.Put(i, f); err != nil {
				t.Fatalf("put frame %d: %v", i, err)
			}
		}
		for _, o := range r.Observations {
			if err := s.Observe(o); err != nil {
				t.Fatalf("observe step %d: %v", o.Step, err)
			}
		}
		ids = append(ids, s.Meta().RunID)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	return ids
}

// Frame returns a width×width frame whose cell i holds base+i.
func Frame(width int, base float64) []float64 {
	f := make([]float64, width*width)
	for i := range f {
		f[i] = base + float64(i)
	}
	return f
}
