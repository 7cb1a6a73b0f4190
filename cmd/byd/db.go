package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Buildyard database",
		Long:  "Migrates all tables and seeds the repository, project and plan catalog from config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Buildyard config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedCatalog(gormDB, cfg.Repositories); err != nil {
		return err
	}
	projects := 0
	for _, r := range cfg.Repositories {
		projects += len(r.Projects)
	}
	fmt.Fprintf(out, "Seeded %d repositories and %d projects\n", len(cfg.Repositories), projects)

	fmt.Fprintln(out, "\nBuildyard database initialized successfully.")
	return nil
}
