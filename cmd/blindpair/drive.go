package main

import (
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/okian/blindpair/internal/loadtest"
)

func newDriveCommand() *cobra.Command {
	cfg := loadtest.Config{}

	cmd := &cobra.Command{
		Use:   "drive <studyID>",
		Short: "Drive a running server over HTTP with simulated reviewers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.StudyID = args[0]
			stats, err := loadtest.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s votes in %d sessions (%d completed) over %s\n",
				humanize.Comma(int64(stats.Votes)), stats.Sessions, stats.SessionsCompleted,
				stats.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "Flagged: %d  Duplicates rejected: %d  Failed: %d\n",
				stats.Flagged, stats.DuplicatesRejected, stats.Failed)

			ids := make([]string, 0, len(stats.Agreement))
			for id := range stats.Agreement {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, []string{id, fmt.Sprintf("%.3f", stats.Agreement[id])})
			}
			fmt.Fprint(out, renderTable([]string{"Category", "Spearman"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.BaseURL, "url", loadtest.DefaultBaseURL, "Base URL of the service")
	cmd.Flags().IntVar(&cfg.Reviewers, "reviewers", 10, "Number of simulated reviewers")
	cmd.Flags().IntVar(&cfg.Workers, "workers", runtime.NumCPU()*2, "Reviewers voting at the same time")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", loadtest.DefaultTimeout, "HTTP request timeout")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 1, "Random seed")
	cmd.Flags().Float64Var(&cfg.Noise, "noise", 0.5, "Standard deviation of per-judgement noise")
	cmd.Flags().IntVar(&cfg.ResponseMs, "response-ms", loadtest.DefaultResponseMs, "Reported response time per vote")
	cmd.Flags().IntVar(&cfg.DuplicateEvery, "duplicate-every", 0, "Resend every n-th vote and expect a duplicate rejection")

	return cmd
}
