package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/avalanche/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if jsonOutput(cmd) {
				return writeJSON(cmd, info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "soc version %s\n", info)
			return nil
		},
	}
}
