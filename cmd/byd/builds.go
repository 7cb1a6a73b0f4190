package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/models"
	"github.com/zulandar/buildyard/internal/server"
)

func newBuildsCmd() *cobra.Command {
	var (
		configPath string
		collection string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List recent builds or the builds of one submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			var builds []models.Build
			if collection != "" {
				builds, err = server.CollectionBuilds(gormDB, collection)
			} else {
				builds, err = server.RecentBuilds(gormDB, limit)
			}
			if err != nil {
				return fmt.Errorf("list builds: %w", err)
			}
			if len(builds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No builds found.")
				return nil
			}
			printBuilds(cmd.OutOrStdout(), builds)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Buildyard config file")
	cmd.Flags().StringVar(&collection, "collection", "", "show every build of this collection id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of builds to list")
	return cmd
}
