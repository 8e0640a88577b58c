package main

import (
	"github.com/spf13/cobra"

	"github.com/stitch-works/stitch/internal/config"
	"github.com/stitch-works/stitch/internal/jobs"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a standalone job worker",
	Long: `Run a background job worker without the HTTP server.

Workers claim jobs from the shared job table, so any number of worker
processes can run against the same database. A job whose worker dies
is reclaimed after the stale window passes.

Examples:
  stitch serve --no-worker   # API process
  stitch worker              # one or more worker processes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		services, err := buildServices(ctx, cfg, logger)
		if err != nil {
			return err
		}

		w := jobs.NewWorker(jobs.Deps{
			Store:       services.Store,
			Reconciler:  services.Reconciler,
			Connections: services.Connections,
			Ingester:    services.Ingester,
		}, workerConfig(cfg), logger)

		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
