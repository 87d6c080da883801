package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/avalanche/internal/analysis"
	"github.com/banshee-data/avalanche/internal/monitoring"
	"github.com/banshee-data/avalanche/internal/plotting"
	"github.com/banshee-data/avalanche/internal/security"
	"github.com/banshee-data/avalanche/internal/simulation"
)

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot <store>",
		Short: "Render the exponent fit, final lattice and an HTML report",
		Long: `Plot writes three files for a stored run into --out:

  <run>_histogram.png  log-log avalanche-size density with the fitted line
  <run>_grid.png       heat map of the final snapshot
  <run>_report.html    interactive report with both and the size series`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("run")
			outDir, _ := cmd.Flags().GetString("out")
			withBoundary, _ := cmd.Flags().GetBool("with-boundary")
			assets, _ := cmd.Flags().GetString("assets-host")
			opts, err := fitOptions(cmd)
			if err != nil {
				return err
			}

			in, err := openRun(args[0], runID)
			if err != nil {
				return err
			}
			defer in.Close()
			obs, err := in.Observations()
			if err != nil {
				return err
			}
			recs := simulation.ObservablesFrom(obs)

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			title := fmt.Sprintf("%s L=%d", in.Model, in.L)
			base := security.SanitizeFilename(in.RunID)
			var written []string

			report := plotting.Report{
				Title:      title,
				Subtitle:   "run " + in.RunID,
				Final:      in.Final,
				Records:    recs,
				AssetsHost: assets,
			}

			fit, err := analysis.FitExponent(recs, opts)
			switch {
			case err == nil:
				p := filepath.Join(outDir, base+"_histogram.png")
				if err := plotting.SaveHistogramPNG(p, title, fit); err != nil {
					return err
				}
				written = append(written, p)
				report.Hist = &fit.Histogram
			case len(fit.AllX) > 0:
				// the histogram is still worth showing without a fit
				monitoring.Logf("fit %s: %v", in.RunID, err)
				report.Hist = &fit.Histogram
			default:
				monitoring.Logf("fit %s: %v", in.RunID, err)
			}

			if in.Final != nil {
				p := filepath.Join(outDir, base+"_grid.png")
				if err := plotting.SaveGridPNG(p, title, in.Final, withBoundary); err != nil {
					return err
				}
				written = append(written, p)
			}

			p := filepath.Join(outDir, base+"_report.html")
			if err := writeReport(p, report); err != nil {
				if !errors.Is(err, analysis.ErrNoData) {
					return err
				}
				monitoring.Logf("report %s: %v", in.RunID, err)
			} else {
				written = append(written, p)
			}

			if len(written) == 0 {
				return fmt.Errorf("run %s has nothing to plot: %w", in.RunID, analysis.ErrNoData)
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, map[string][]string{"files": written})
			}
			for _, w := range written {
				fmt.Fprintln(cmd.OutOrStdout(), w)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("run", "", "Run ID (default: the newest run)")
	f.String("out", ".", "Output directory")
	f.Bool("with-boundary", false, "Include the guard frame in the lattice image")
	f.String("assets-host", "", "Override the ECharts assets host in the HTML report")
	addFitFlags(cmd)
	return cmd
}

func writeReport(path string, r plotting.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := plotting.WriteReportHTML(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
