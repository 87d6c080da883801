package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/avalanche/internal/analysis"
	"github.com/banshee-data/avalanche/internal/config"
	"github.com/banshee-data/avalanche/internal/snapshot"
	"github.com/banshee-data/avalanche/internal/sweep"
)

// addModelFlags registers the flags that override model parameters.
func addModelFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("L", config.DefaultL, "Interior lattice size")
	f.Int("particles", 1, "Grains added per drive (btw, manna)")
	f.Float64("critical-value", 1, "Critical value (manna, ofc)")
	f.Bool("abelian", true, "Abelian toppling (manna)")
	f.Float64("conservation", 0.25, "Conservation level in (0, 0.25] (ofc)")
	f.Int("max-iterations", 0, "Relaxation pass limit, 0 keeps the model default (ofc)")
	f.Float64("p", 0.05, "Tree growth probability (forest)")
	f.Float64("f", 0, "Lightning probability (forest)")
}

// addFitFlags registers the exponent-fitting flags.
func addFitFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("bins", analysis.DefaultBins, "Histogram bins")
	f.Int("smooth-width", analysis.DefaultSmoothWidth, "Second-derivative kernel width")
	f.Float64("d2-cutoff", analysis.DefaultD2Cutoff, "Largest |d2| inside the fitted region")
	f.String("cutoffs", "", "Fixed fit region as start,end bin indices (skips auto-detection)")
	f.String("column", analysis.ColumnAvalancheSize, "Observable to fit")
}

// flagConfig collects the model and run flags the user actually set, so
// unset flags leave the file and environment values alone.
func flagConfig(cmd *cobra.Command) *config.SimConfig {
	f := cmd.Flags()
	o := &config.SimConfig{}
	o.L = changedInt(cmd, "L")
	o.Steps = changedInt(cmd, "n")
	o.SaveEvery = changedInt(cmd, "save-every")
	o.WaitForNIters = changedInt(cmd, "wait")
	o.NumParticles = changedInt(cmd, "particles")
	o.MaxIterations = changedInt(cmd, "max-iterations")
	o.CriticalValue = changedFloat(cmd, "critical-value")
	o.ConservationLevel = changedFloat(cmd, "conservation")
	o.P = changedFloat(cmd, "p")
	o.F = changedFloat(cmd, "f")
	if f.Lookup("abelian") != nil && f.Changed("abelian") {
		v, _ := f.GetBool("abelian")
		o.Abelian = &v
	}
	if f.Lookup("seed") != nil && f.Changed("seed") {
		v, _ := f.GetUint64("seed")
		o.Seed = &v
	}
	if f.Lookup("store") != nil && f.Changed("store") {
		v, _ := f.GetString("store")
		o.Store = &v
	}
	return o
}

func changedInt(cmd *cobra.Command, name string) *int {
	f := cmd.Flags()
	if f.Lookup(name) == nil || !f.Changed(name) {
		return nil
	}
	v, _ := f.GetInt(name)
	return &v
}

func changedFloat(cmd *cobra.Command, name string) *float64 {
	f := cmd.Flags()
	if f.Lookup(name) == nil || !f.Changed(name) {
		return nil
	}
	v, _ := f.GetFloat64(name)
	return &v
}

// resolveConfig layers the command's flags and optional model argument
// over the file and environment config.
func resolveConfig(a *app, cmd *cobra.Command, args []string) (*config.SimConfig, error) {
	cfg := &config.SimConfig{}
	cfg.Merge(a.cfg)
	cfg.Merge(flagConfig(cmd))
	if len(args) > 0 {
		model := args[0]
		cfg.Model = &model
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

// fitOptions reads the fitting flags.
func fitOptions(cmd *cobra.Command) (analysis.FitOptions, error) {
	f := cmd.Flags()
	opts := analysis.DefaultFitOptions()
	opts.Bins, _ = f.GetInt("bins")
	opts.SmoothWidth, _ = f.GetInt("smooth-width")
	opts.D2Cutoff, _ = f.GetFloat64("d2-cutoff")
	opts.Column, _ = f.GetString("column")

	if s, _ := f.GetString("cutoffs"); s != "" {
		v, err := sweep.ParseCSVInts(s)
		if err != nil {
			return opts, fmt.Errorf("--cutoffs: %w", err)
		}
		if len(v) != 2 {
			return opts, fmt.Errorf("--cutoffs wants start,end, got %d values", len(v))
		}
		opts.Cutoffs = &[2]int{v[0], v[1]}
	}
	return opts, nil
}

// openRun reopens runID in path, or the newest run when runID is empty.
func openRun(path, runID string) (*snapshot.Inspection, error) {
	if runID != "" {
		return snapshot.Open(path, runID)
	}
	return snapshot.OpenLatest(path)
}
