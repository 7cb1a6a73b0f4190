package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/reconcile"
	"github.com/zulandar/buildyard/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath  string
		port        int
		noReconcile bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the build API and the reconcile scheduler",
		Long:  "Serves the build submission API and runs the reconcile sweep on its cron schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, noReconcile)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Buildyard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default: http.port from config)")
	cmd.Flags().BoolVar(&noReconcile, "no-reconcile", false, "do not run the reconcile scheduler")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, noReconcile bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)
	if port <= 0 {
		port = cfg.HTTP.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	q, closeQueue, err := newQueue(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeQueue()

	n, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	d, err := newDispatcher(ctx, cfg, gormDB, q, n, log)
	if err != nil {
		return err
	}

	if !noReconcile {
		sched := &reconcile.Scheduler{
			DB:       gormDB,
			Queue:    q,
			Schedule: cfg.Reconcile.Schedule,
			Opts: reconcile.Opts{
				Grace:    cfg.Reconcile.Grace,
				Limit:    cfg.Reconcile.Limit,
				Notifier: n,
				Log:      log,
			},
		}
		go func() {
			if err := sched.Run(ctx); err != nil {
				log.Error("reconcile scheduler stopped", "error", err)
			}
		}()
	}

	return server.Start(ctx, server.StartOpts{
		DB:        gormDB,
		Submitter: d,
		Port:      port,
		Out:       cmd.OutOrStdout(),
		Log:       log,
	})
}
