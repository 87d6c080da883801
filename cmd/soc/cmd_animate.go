package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/avalanche/internal/snapshot"
	"github.com/banshee-data/avalanche/internal/tui"
)

func newAnimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "animate <store>",
		Short: "Play back the snapshots of a run in the terminal",
		Long: `Animate steps through the stored snapshots of a run. Space or p plays
and pauses, the arrow keys step one snapshot, home and end jump, q quits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("run")
			interval, _ := cmd.Flags().GetDuration("interval")
			withBoundary, _ := cmd.Flags().GetBool("with-boundary")
			autoplay, _ := cmd.Flags().GetBool("autoplay")

			in, err := openRun(args[0], runID)
			if err != nil {
				return err
			}
			defer in.Close()
			if in.Frames == 0 {
				return fmt.Errorf("run %s has no snapshots: %w", in.RunID, snapshot.ErrNotFound)
			}
			return tui.Run(in, tui.Options{
				Count:        in.Frames,
				SaveEvery:    in.SaveEvery,
				Interval:     interval,
				WithBoundary: withBoundary,
				Autoplay:     autoplay,
			})
		},
	}
	f := cmd.Flags()
	f.String("run", "", "Run ID (default: the newest run)")
	f.Duration("interval", 30*time.Millisecond, "Delay between frames while playing")
	f.Bool("with-boundary", false, "Show the guard frame")
	f.Bool("autoplay", true, "Start playing immediately")
	return cmd
}
