package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/avalanche/internal/monitoring"
	"github.com/banshee-data/avalanche/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [dir]",
		Short: "Serve the stores in a directory over HTTP",
		Long: `Serve exposes every *.db store in dir (default ".") as a JSON API with
CSV downloads, exponent fits, grid PNGs and HTML reports:

  GET /api/stores
  GET /api/stores/{store}/runs
  GET /api/stores/{store}/runs/{run}            run may be "latest"
  GET /api/stores/{store}/runs/{run}/frames/{i} i may be "last"
  GET /api/stores/{store}/runs/{run}/observations.csv
  GET /api/stores/{store}/runs/{run}/fit?bins=&smooth_width=&d2_cutoff=&column=&cutoffs=
  GET /stores/{store}/runs/{run}/report
  GET /stores/{store}/runs/{run}/grid.png

Debug pages, including a SQL console over the stores, live under /debug/.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if info, err := os.Stat(dir); err != nil {
				return err
			} else if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			listen, _ := cmd.Flags().GetString("listen")

			s := server.NewServer(dir)
			s.AssetsHost, _ = cmd.Flags().GetString("assets-host")
			mux := s.ServeMux()
			admin, err := s.AttachAdminRoutes(mux)
			if err != nil {
				return err
			}
			defer admin.Close()

			srv := &http.Server{
				Addr:              listen,
				Handler:           server.LoggingMiddleware(mux),
				ReadHeaderTimeout: 10 * time.Second,
			}
			monitoring.Logf("serving %s on http://%s", dir, listen)
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", dir, listen)
			return server.ListenAndServe(cmd.Context(), srv, shutdownTimeout)
		},
	}
	cmd.Flags().String("listen", "localhost:8080", "Address to listen on")
	cmd.Flags().String("assets-host", "", "Alternative host for the echarts assets of reports")
	return cmd
}
