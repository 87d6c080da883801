package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/avalanche/internal/analysis"
	"github.com/banshee-data/avalanche/internal/simulation"
	"github.com/banshee-data/avalanche/internal/snapshot"
)

type inspectReport struct {
	RunID         string           `json:"run_id"`
	Model         string           `json:"model"`
	DType         string           `json:"dtype"`
	L             int              `json:"l"`
	Boundary      int              `json:"boundary"`
	SaveEvery     int              `json:"save_every"`
	Frames        int              `json:"frames"`
	Params        string           `json:"params"`
	CreatedAt     time.Time        `json:"created_at"`
	SchemaVersion uint             `json:"schema_version"`
	Observations  int              `json:"observations"`
	Size          analysis.Summary `json:"avalanche_size"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <store>",
		Short: "Show the runs held in a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			list, _ := cmd.Flags().GetBool("list")
			if list {
				runs, err := snapshot.ListRuns(path)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs.")
					return nil
				}
				for _, r := range runs {
					fmt.Fprintf(out, "%s  %-6s L=%-4d save_every=%-5d frames=%-6d %s\n",
						r.RunID, r.Model, r.L, r.SaveEvery, r.Frames, r.CreatedAt.Format(time.RFC3339))
				}
				return nil
			}

			runID, _ := cmd.Flags().GetString("run")
			in, err := openRun(path, runID)
			if err != nil {
				return err
			}
			defer in.Close()

			obs, err := in.Observations()
			if err != nil {
				return err
			}
			rep := inspectReport{
				RunID:         in.RunID,
				Model:         in.Model,
				DType:         in.DType,
				L:             in.L,
				Boundary:      in.Boundary,
				SaveEvery:     in.SaveEvery,
				Frames:        in.Frames,
				Params:        in.ParamsJSON,
				CreatedAt:     in.CreatedAt,
				SchemaVersion: in.SchemaVersion,
				Observations:  len(obs),
			}
			if sizes, err := analysis.Column(simulation.ObservablesFrom(obs), analysis.ColumnAvalancheSize); err == nil {
				rep.Size = analysis.Describe(sizes)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd, rep)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:          %s\n", rep.RunID)
			fmt.Fprintf(out, "Model:        %s (%s)\n", rep.Model, rep.DType)
			fmt.Fprintf(out, "Lattice:      %dx%d, boundary %d\n", rep.L, rep.L, rep.Boundary)
			fmt.Fprintf(out, "Snapshots:    %d every %d steps\n", rep.Frames, rep.SaveEvery)
			fmt.Fprintf(out, "Observations: %d (mean size %.3f, max %.0f)\n", rep.Observations, rep.Size.Mean, rep.Size.Max)
			fmt.Fprintf(out, "Params:       %s\n", rep.Params)
			fmt.Fprintf(out, "Created:      %s\n", rep.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Schema:       v%d\n", rep.SchemaVersion)
			return nil
		},
	}
	cmd.Flags().String("run", "", "Run ID (default: the newest run)")
	cmd.Flags().Bool("list", false, "List every run in the store")
	return cmd
}
