package simulation

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/avalanche/internal/engine"
	"github.com/banshee-data/avalanche/internal/models"
	"github.com/banshee-data/avalanche/internal/snapshot"
	"github.com/banshee-data/avalanche/internal/timeutil"
)

func newBTW(t *testing.T, l int, seed uint64) models.Model {
	t.Helper()
	m, err := models.New("btw", models.DefaultParams(l), models.NewRand(seed))
	require.NoError(t, err)
	return m
}

// hookedModel runs a callback before every drive.
type hookedModel struct {
	models.Model
	drives  int
	onDrive func(n int)
}

func (h *hookedModel) Drive() {
	h.drives++
	if h.onDrive != nil {
		h.onDrive(h.drives)
	}
	h.Model.Drive()
}

func TestRun_InvalidSaveEvery(t *testing.T) {
	m := newBTW(t, 5, 1)
	sim := New(m, Options{SaveEvery: 4, WaitForNIters: 3})

	_, err := sim.Run(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSaveEvery))
	assert.Contains(t, err.Error(), "13")
	assert.Contains(t, err.Error(), "save_every=4")
	assert.Zero(t, sim.Steps(), "no work before validation")
	assert.Zero(t, frameSum(m), "grid untouched")
	assert.Zero(t, sim.Store().(*snapshot.MemoryStore).Len())
}

func frameSum(m models.Model) float64 {
	s := 0.0
	for _, v := range m.Frame(nil) {
		s += v
	}
	return s
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		saveEvery int
		wait      int
		n         int
		wantErr   bool
	}{
		{"divisible", 5, 5, 20, false},
		{"disabled", 0, 3, 7, false},
		{"not divisible", 3, 0, 10, true},
		{"negative n", 1, 0, -1, true},
		{"negative wait", 1, -1, 5, true},
		{"negative save_every", -2, 0, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := New(newBTW(t, 3, 1), Options{SaveEvery: tt.saveEvery, WaitForNIters: tt.wait})
			err := sim.Validate(tt.n)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%d) error = %v, wantErr %v", tt.n, err, tt.wantErr)
			}
		})
	}
}

func TestRun_DiscardsWarmup(t *testing.T) {
	const wait, n = 40, 200

	ref := engine.New(newBTW(t, 6, 9), 6)
	var want []engine.Observables
	for i := 0; i < wait+n; i++ {
		obs, err := ref.Step()
		require.NoError(t, err)
		if i >= wait {
			want = append(want, obs)
		}
	}

	sim := New(newBTW(t, 6, 9), Options{WaitForNIters: wait})
	sum, err := sim.Run(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, Summary{Steps: wait + n, Kept: n, Elapsed: sum.Elapsed}, sum)
	if diff := cmp.Diff(want, sim.Records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, sim.Store(), "no snapshots requested")
}

func TestRun_SnapshotCadence(t *testing.T) {
	const saveEvery, wait, n = 5, 10, 40

	refModel := newBTW(t, 4, 2)
	ref := engine.New(refModel, 4)
	var want [][]float64
	for i := 0; i < wait+n; i++ {
		_, err := ref.Step()
		require.NoError(t, err)
		if i%saveEvery == 0 {
			want = append(want, refModel.Frame(nil))
		}
	}

	sim := New(newBTW(t, 4, 2), Options{SaveEvery: saveEvery, WaitForNIters: wait})
	sum, err := sim.Run(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, (wait+n)/saveEvery, sum.Frames)

	store := sim.Store().(*snapshot.MemoryStore)
	require.Equal(t, len(want), store.Len())
	for i := range want {
		got, err := store.Frame(i)
		require.NoError(t, err)
		if diff := cmp.Diff(want[i], got); diff != "" {
			t.Errorf("frame %d (step %d) mismatch:\n%s", i, i*saveEvery, diff)
		}
	}
	meta := store.Meta()
	assert.Equal(t, "btw", meta.Model)
	assert.Equal(t, 4, meta.L)
	assert.Equal(t, 1, meta.Boundary)
	assert.Equal(t, saveEvery, meta.SaveEvery)
	assert.Equal(t, (wait+n)/saveEvery, meta.TotalFrames)
	assert.Len(t, store.Observations(), n)
	assert.Equal(t, wait, store.Observations()[0].Step)
}

func TestRun_RecordsAccumulateAcrossRuns(t *testing.T) {
	sim := New(newBTW(t, 3, 4), Options{})
	_, err := sim.Run(context.Background(), 10)
	require.NoError(t, err)
	_, err = sim.Run(context.Background(), 15)
	require.NoError(t, err)
	assert.Len(t, sim.Records(), 25)
	assert.Equal(t, 25, sim.Steps())
}

func TestRun_SQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	store, err := snapshot.OpenSQLite(path, nil)
	require.NoError(t, err)

	p := models.DefaultParams(5)
	m, err := models.New("ofc", p, models.NewRand(3))
	require.NoError(t, err)
	sim := New(m, Options{SaveEvery: 10, WaitForNIters: 20, Store: store, Params: p})
	_, err = sim.Run(context.Background(), 230)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	in, err := snapshot.OpenLatest(path)
	require.NoError(t, err)
	defer in.Close()

	assert.Equal(t, "ofc", in.Model)
	assert.Equal(t, "float64", in.DType)
	assert.Equal(t, 5, in.L)
	assert.Equal(t, 25, in.Frames)
	assert.Contains(t, in.ParamsJSON, "conservation_level")

	obs, err := in.Observations()
	require.NoError(t, err)
	if diff := cmp.Diff(sim.Records(), ObservablesFrom(obs)); diff != "" {
		t.Errorf("stored observations differ (-mem +db):\n%s", diff)
	}
	// OFC frames are stored relative to the firing threshold.
	for i, v := range in.Final {
		r, c := i/in.Width(), i%in.Width()
		if r >= 1 && r <= in.L && c >= 1 && c <= in.L && v >= 0 {
			t.Errorf("interior (%d,%d) = %g, want negative after relaxation", r, c, v)
		}
	}
}

func TestRun_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := &hookedModel{Model: newBTW(t, 4, 1)}
	m.onDrive = func(n int) {
		if n == 7 {
			cancel()
		}
	}
	sim := New(m, Options{SaveEvery: 1})
	sum, err := sim.Run(ctx, 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 7, sum.Steps, "the step in flight completes")
	assert.Len(t, sim.Records(), 7)
	assert.Equal(t, 7, sim.Store().(*snapshot.MemoryStore).Len())
}

func TestRun_RelaxationLimit(t *testing.T) {
	m, err := models.New("ofc", models.DefaultParams(4), models.NewRand(5))
	require.NoError(t, err)
	m.(*models.OFC).MaxIterations = 0

	_, err = New(m, Options{}).Run(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrRelaxationLimit))
	assert.True(t, strings.HasPrefix(err.Error(), "step 0:"), err.Error())
}

func TestRun_ProgressLogging(t *testing.T) {
	var diag bytes.Buffer
	SetLogWriters(nil, &diag, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	m := &hookedModel{Model: newBTW(t, 3, 1)}
	m.onDrive = func(int) { clock.Advance(time.Second) }

	sim := New(m, Options{Clock: clock, ProgressInterval: 10 * time.Second})
	sum, err := sim.Run(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 25*time.Second, sum.Elapsed)

	out := diag.String()
	assert.Contains(t, out, "[simulation] ")
	assert.Contains(t, out, "btw: step 10/25 (1 steps/s)")
	assert.Contains(t, out, "btw: step 20/25")
	assert.Contains(t, out, "25 records kept")
}
