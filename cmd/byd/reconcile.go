package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/reconcile"
)

func newReconcileCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-dispatch builds whose tasks were never published",
		Long:  "Runs one reconcile sweep: queued builds with no dispatch time older than reconcile.grace get their tasks re-published.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Buildyard config file")
	return cmd
}

func runReconcile(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	ctx := context.Background()
	q, closeQueue, err := newQueue(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeQueue()

	n, err := newNotifier(cfg)
	if err != nil {
		return err
	}

	report, err := reconcile.Sweep(ctx, gormDB, q, reconcile.Opts{
		Grace:    cfg.Reconcile.Grace,
		Limit:    cfg.Reconcile.Limit,
		Notifier: n,
		Log:      log,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d, repaired %d, failed %d\n", report.Scanned, len(report.Repaired), len(report.Failed))
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d build(s) could not be dispatched", len(report.Failed))
	}
	return nil
}
