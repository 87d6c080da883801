package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/avalanche/internal/sweep"
)

func newSweepCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "Run a model over a grid of sizes and parameters",
		Long: `Sweep runs one simulation per combination of --sizes and every --param,
--repeats times each, and fits the avalanche-size exponent of every run.

Values are either a comma-separated list or min:max:step, for example

  soc sweep ofc --sizes 16,32,64 --param conservation_level=0.1:0.25:0.05

The summary table (one row per combination) goes to stdout unless
--summary names a file; --raw adds a table with one row per run.`,
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
			f := cmd.Flags()
			plan := sweep.Plan{
				Model: cfg.GetModel(),
				Base:  cfg.ModelParams(),
				Steps: cfg.GetSteps(),
				Wait:  cfg.GetWaitForNIters(),
				Seed:  cfg.GetSeed(),
				Fit:   fitOpts,
			}
			plan.Repeats, _ = f.GetInt("repeats")

			if s, _ := f.GetString("sizes"); s != "" {
				if plan.Sizes, err = sweep.ParseIntParamList(s); err != nil {
					return fmt.Errorf("--sizes: %w", err)
				}
			}
			assignments, _ := f.GetStringArray("param")
			for _, s := range assignments {
				name, values, err := sweep.ParseAssignment(s)
				if err != nil {
					return fmt.Errorf("--param: %w", err)
				}
				plan.Params = append(plan.Params, sweep.Param{Name: name, Values: values})
			}

			summaryPath, _ := f.GetString("summary")
			rawPath, _ := f.GetString("raw")
			var summary, raw io.Writer = cmd.OutOrStdout(), nil
			if summaryPath != "" {
				sf, err := os.Create(summaryPath)
				if err != nil {
					return fmt.Errorf("create summary: %w", err)
				}
				defer sf.Close()
				summary = sf
			}
			if rawPath != "" {
				rf, err := os.Create(rawPath)
				if err != nil {
					return fmt.Errorf("create raw table: %w", err)
				}
				defer rf.Close()
				raw = rf
			}

			out := sweep.NewCSVWriter(summary, raw)
			results, err := sweep.Run(cmd.Context(), plan, out)
			if ferr := out.Flush(); err == nil {
				err = ferr
			}
			if err != nil {
				return err
			}
			if summaryPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%d runs written to %s\n", len(results), summaryPath)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Int("n", 10000, "Kept driving steps per run")
	f.Int("wait", 1000, "Warm-up steps per run")
	f.Uint64("seed", 0, "Base seed; run k uses seed+k, 0 draws one")
	f.String("sizes", "", "Lattice sizes as a list or min:max:step (default: --L)")
	f.StringArray("param", nil, "Swept parameter as name=values, repeatable")
	f.Int("repeats", 1, "Runs per combination")
	f.String("summary", "", "Write the summary table here instead of stdout")
	f.String("raw", "", "Also write one row per run to this file")
	addModelFlags(cmd)
	addFitFlags(cmd)
	return cmd
}
