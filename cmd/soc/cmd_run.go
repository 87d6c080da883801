package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/avalanche/internal/analysis"
	"github.com/banshee-data/avalanche/internal/engine"
	"github.com/banshee-data/avalanche/internal/models"
	"github.com/banshee-data/avalanche/internal/monitoring"
	"github.com/banshee-data/avalanche/internal/simulation"
	"github.com/banshee-data/avalanche/internal/snapshot"
	"github.com/banshee-data/avalanche/internal/timeutil"
)

// runReport is the result of soc run, printed as text or JSON.
type runReport struct {
	RunID       string           `json:"run_id,omitempty"`
	Model       string           `json:"model"`
	L           int              `json:"l"`
	Seed        uint64           `json:"seed"`
	Steps       int              `json:"steps"`
	Kept        int              `json:"kept"`
	Frames      int              `json:"frames"`
	ElapsedMS   int64            `json:"elapsed_ms"`
	Interrupted bool             `json:"interrupted,omitempty"`
	Store       string           `json:"store,omitempty"`
	CSV         string           `json:"csv,omitempty"`
	Size        analysis.Summary `json:"avalanche_size"`
	Iterations  analysis.Summary `json:"iterations"`
	Exponent    *float64         `json:"exponent,omitempty"`
	RSquared    *float64         `json:"r_squared,omitempty"`
	FitError    string           `json:"fit_error,omitempty"`
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [model]",
		Short: "Run a simulation and fit its avalanche-size exponent",
		Long: `Run drives the chosen model (btw, manna, ofc or forest) for --wait
warm-up steps plus --n kept steps. Snapshots every --save-every steps and
the kept avalanche records go to an SQLite store; --csv also exports the
records. Ctrl-C stops between steps and keeps what was recorded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(a, cmd, args)
			if err != nil {
				return err
			}
			fitOpts, err := fitOptions(cmd)
			if err != nil {
				return err
			}
			noStore, _ := cmd.Flags().GetBool("no-store")
			csvPath, _ := cmd.Flags().GetString("csv")

			seed := cfg.GetSeed()
			if seed == 0 {
				if seed, err = models.NewSeed(); err != nil {
					return err
				}
			}
			params := cfg.ModelParams()
			m, err := models.New(cfg.GetModel(), params, models.NewRand(seed))
			if err != nil {
				return err
			}

			rep := runReport{Model: m.Name(), L: m.L(), Seed: seed}
			opts := simulation.Options{
				SaveEvery:     cfg.GetSaveEvery(),
				WaitForNIters: cfg.GetWaitForNIters(),
				Params:        runParams{Params: params, Seed: seed},
			}
			if !noStore {
				path := cfg.GetStore()
				if path == "" {
					path = defaultStorePath(m.Name(), time.Now())
				}
				if dir := filepath.Dir(path); dir != "." {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return fmt.Errorf("create store directory: %w", err)
					}
				}
				store, err := snapshot.OpenSQLite(path, timeutil.RealClock{})
				if err != nil {
					return err
				}
				defer store.Close()
				opts.Store = store
				rep.Store = path
			}

			sim := simulation.New(m, opts)
			if err := sim.Validate(cfg.GetSteps()); err != nil {
				return err
			}
			sum, err := sim.Run(cmd.Context(), cfg.GetSteps())
			switch {
			case errors.Is(err, context.Canceled):
				rep.Interrupted = true
			case err != nil:
				return err
			}
			if st, ok := opts.Store.(*snapshot.SQLiteStore); ok {
				rep.RunID = st.Meta().RunID
				if err := st.Close(); err != nil {
					return fmt.Errorf("close store: %w", err)
				}
			}
			rep.Steps, rep.Kept, rep.Frames = sum.Steps, sum.Kept, sum.Frames
			rep.ElapsedMS = sum.Elapsed.Milliseconds()

			recs := sim.Records()
			if csvPath != "" {
				if err := writeRecordsCSV(csvPath, recs); err != nil {
					return err
				}
				rep.CSV = csvPath
			}
			describeRecords(&rep, recs, fitOpts)

			if jsonOutput(cmd) {
				return writeJSON(cmd, rep)
			}
			printRunReport(cmd, rep)
			return nil
		},
	}

	f := cmd.Flags()
	f.Int("n", 10000, "Kept driving steps")
	f.Int("save-every", 100, "Steps between snapshots, 0 disables them")
	f.Int("wait", 1000, "Warm-up steps discarded before recording")
	f.Uint64("seed", 0, "Random seed, 0 draws one")
	f.String("store", "", "SQLite store path (default array_<model>_<timestamp>.db)")
	f.Bool("no-store", false, "Keep snapshots in memory only")
	f.String("csv", "", "Write the avalanche records to this CSV file")
	addModelFlags(cmd)
	addFitFlags(cmd)
	return cmd
}

// runParams is recorded with each stored run.
type runParams struct {
	models.Params
	Seed uint64 `json:"seed"`
}

// defaultStorePath names a store after the model and the start time.
func defaultStorePath(model string, now time.Time) string {
	return fmt.Sprintf("array_%s_%s.db", model, now.Format("20060102T150405"))
}

func writeRecordsCSV(path string, recs []engine.Observables) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := analysis.WriteCSV(f, recs); err != nil {
		f.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}

// describeRecords fills the summary and exponent fields of rep. A failed
// fit is reported rather than returned: short runs rarely have a scaling
// region.
func describeRecords(rep *runReport, recs []engine.Observables, opts analysis.FitOptions) {
	if sizes, err := analysis.Column(recs, analysis.ColumnAvalancheSize); err == nil {
		rep.Size = analysis.Describe(sizes)
	}
	if iters, err := analysis.Column(recs, analysis.ColumnIterations); err == nil {
		rep.Iterations = analysis.Describe(iters)
	}
	fit, err := analysis.FitExponent(recs, opts)
	if err != nil {
		rep.FitError = err.Error()
		monitoring.Logf("fit %s: %v", rep.Model, err)
		return
	}
	rep.Exponent, rep.RSquared = &fit.Exponent, &fit.RSquared
}

func printRunReport(cmd *cobra.Command, rep runReport) {
	out := cmd.OutOrStdout()
	if rep.Interrupted {
		fmt.Fprintln(out, "Interrupted: results cover the steps completed so far.")
	}
	fmt.Fprintf(out, "%s L=%d seed=%d: %d steps, %d kept, %d snapshots in %dms\n",
		rep.Model, rep.L, rep.Seed, rep.Steps, rep.Kept, rep.Frames, rep.ElapsedMS)
	if rep.Store != "" {
		fmt.Fprintf(out, "Store: %s (run %s)\n", rep.Store, rep.RunID)
	}
	if rep.CSV != "" {
		fmt.Fprintf(out, "Records: %s\n", rep.CSV)
	}
	fmt.Fprintf(out, "Avalanche size: mean %.3f, stddev %.3f, max %.0f\n", rep.Size.Mean, rep.Size.StdDev, rep.Size.Max)
	if rep.Exponent != nil {
		fmt.Fprintf(out, "Exponent: %.4f (R² %.4f)\n", *rep.Exponent, *rep.RSquared)
	} else {
		fmt.Fprintf(out, "Exponent: not fitted (%s)\n", rep.FitError)
	}
}
