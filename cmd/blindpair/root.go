package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var dbFlag string

	ctx := newCommandContext(&dbFlag)

	rootCmd := &cobra.Command{
		Use:           "blindpair",
		Short:         "Seed, simulate and report on blind comparison studies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig(cmd.ErrOrStderr())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (defaults to BLINDPAIR_DB_PATH)")

	rootCmd.AddCommand(newSeedCommand(ctx))
	rootCmd.AddCommand(newSimulateCommand(ctx))
	rootCmd.AddCommand(newRankingsCommand(ctx))
	rootCmd.AddCommand(newReportCommand(ctx))
	rootCmd.AddCommand(newDriveCommand())

	return rootCmd
}
