package main

import (
	"document-index/internal/worker"

	"github.com/spf13/cobra"
)

func workerCMD() *cobra.Command {
	var concurrency int
	run := &cobra.Command{
		Use:   "worker",
		Short: "Consume queued documents from Redis and ingest them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m := startMetrics(ctx)
			ing, err := openIngestion(ctx, m)
			if err != nil {
				return err
			}
			defer ing.close()

			client, err := newRedis(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			wcfg := cfg.Worker
			if concurrency > 0 {
				wcfg.Concurrency = concurrency
			}
			return worker.New(client, wcfg, worker.IngestHandler(ing.pipeline, ing.vectors)).Run(ctx)
		},
	}
	run.Flags().IntVar(&concurrency, "concurrency", 0, "jobs processed at once (default is worker.concurrency)")
	return run
}
