// Command soc drives self-organised criticality lattice simulations and
// analyses their avalanche statistics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/avalanche/internal/config"
	"github.com/banshee-data/avalanche/internal/monitoring"
	"github.com/banshee-data/avalanche/internal/simulation"
	"github.com/banshee-data/avalanche/internal/snapshot"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	cfg     *config.SimConfig
	stderr  io.Writer
	logFile *os.File
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "soc:", err)
		os.Exit(1)
	}
}

// execute builds a fresh command tree and runs it with args.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stderr: stderr}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "soc",
		Short: "Self-organised criticality lattice simulator",
		Long: `soc runs sandpile, stress and forest-fire models on a square lattice,
records every avalanche and fits the power-law exponent of their sizes.

Settings come from an optional --config file (.json, .yaml or .hcl), then
SOC_* environment variables, then command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (.json, .yaml, .yml or .hcl)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: quiet, ops, diag or trace")
	rootCmd.PersistentFlags().String("log-file", "", "Also append log output to this file")

	rootCmd.AddCommand(
		newRunCmd(a),
		newInspectCmd(),
		newFitCmd(),
		newPlotCmd(),
		newAnimateCmd(),
		newSweepCmd(a),
		newServeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// setup resolves the layered config and points the package loggers at
// stderr and, if requested, a log file.
func (a *app) setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Resolve(path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	levelName := cfg.GetLogLevel()
	if cmd.Flags().Changed("log-level") {
		levelName, _ = cmd.Flags().GetString("log-level")
	}
	level, err := monitoring.ParseLevel(levelName)
	if err != nil {
		return err
	}

	w := a.stderr
	if logPath, _ := cmd.Flags().GetString("log-file"); logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		w = io.MultiWriter(a.stderr, f)
	}

	ops, diag, trace := monitoring.Streams(level, w)
	simulation.SetLogWriters(ops, diag, trace)
	snapshot.SetLogWriters(ops, diag, trace)
	if diag != nil {
		monitoring.SetLogger(log.New(diag, "[soc] ", log.LstdFlags|log.Lmicroseconds).Printf)
	} else {
		monitoring.SetLogger(nil)
	}
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
