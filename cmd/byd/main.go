package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "buildyard.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "byd",
		Short:        "Buildyard: build dispatch for multi-project repositories",
		Long:         "Buildyard resolves commits, fans submissions out into per-project builds and queues their jobs.",
		SilenceUsage: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newSubmitCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newBuildsCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "byd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
