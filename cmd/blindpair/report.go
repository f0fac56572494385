package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	service "github.com/okian/blindpair/internal/app"
)

func newRankingsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rankings <categoryID>",
		Short: "Show a category leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), false, func(svc *service.Service) error {
				rankings, err := svc.Rankings(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rankings) == 0 {
					fmt.Fprintln(out, "No items in category")
					return nil
				}
				fmt.Fprint(out, renderRankings(rankings, nil))
				return nil
			})
		},
	}
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "report <categoryID>",
		Short: "Show publishability and consistency for a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), false, func(svc *service.Service) error {
				if _, err := svc.AnalyzeCategory(cmd.Context(), args[0]); err != nil {
					return err
				}
				report, err := svc.Report(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

// renderRankings prints a leaderboard. trueRank, when set, adds a column
// with the rank an item should have had.
func renderRankings(rankings []service.Ranking, trueRank map[string]int) string {
	headers := []string{"Rank", "Item", "Rating", "Comparisons", "W-L", "Win rate", "CI95"}
	aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}
	if trueRank != nil {
		headers = append(headers, "True rank")
		aligns = append(aligns, alignRight)
	}

	rows := make([][]string, 0, len(rankings))
	for _, r := range rankings {
		name := r.ItemID
		if r.Title != "" && r.Title != r.ItemID {
			name = fmt.Sprintf("%s (%s)", r.Title, r.ItemID)
		}
		ci := "-"
		if r.CI95 != nil {
			ci = fmt.Sprintf("±%.1f", *r.CI95)
		}
		row := []string{
			strconv.Itoa(r.Rank),
			name,
			fmt.Sprintf("%.1f", r.EloRating),
			humanize.Comma(int64(r.ComparisonCount)),
			fmt.Sprintf("%d-%d", r.WinCount, r.LossCount),
			fmt.Sprintf("%.0f%%", r.WinRate*100),
			ci,
		}
		if trueRank != nil {
			row = append(row, strconv.Itoa(trueRank[r.ItemID]))
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

func printReport(out io.Writer, r service.CategoryReport) {
	th := r.Threshold

	fmt.Fprintf(out, "Category:     %s (%s)\n", r.Category.Name, r.Category.ID)
	fmt.Fprintf(out, "Items:        %s\n", humanize.Comma(int64(r.ItemCount)))
	fmt.Fprintf(out, "Comparisons:  %s total, %s valid, %s flagged, %s test\n",
		humanize.Comma(int64(r.TotalComparisons)),
		humanize.Comma(int64(r.ValidComparisons)),
		humanize.Comma(int64(r.FlaggedComparisons)),
		humanize.Comma(int64(r.TestComparisons)))
	fmt.Fprintf(out, "Status:       %s\n", th.Status)

	rows := [][]string{
		{"Exposure", fmt.Sprintf("min %d of %d", th.MinExposure, th.RequiredExposures), yesNo(th.ExposureMet)},
		{"Volume", fmt.Sprintf("%s of %s", humanize.Comma(int64(th.TotalComparisons)), humanize.Comma(int64(th.RequiredComparisons))), yesNo(th.VolumeMet)},
		{"Connected", fmt.Sprintf("%d component(s)", th.Connectivity.ComponentCount), yesNo(th.ConnectedMet)},
	}
	fmt.Fprint(out, renderTable([]string{"Check", "Evidence", "Met"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft}))

	if len(th.ItemsBelowMinimum) > 0 {
		fmt.Fprintf(out, "Below minimum: %s\n", strings.Join(th.ItemsBelowMinimum, ", "))
	}
	if len(th.Connectivity.IsolatedItems) > 0 {
		fmt.Fprintf(out, "Isolated:      %s\n", strings.Join(th.Connectivity.IsolatedItems, ", "))
	}

	switch t := r.Transitivity; {
	case t == nil:
		fmt.Fprintln(out, "Transitivity: pending")
	case !t.Computed():
		fmt.Fprintln(out, "Transitivity: skipped (category too large)")
	default:
		fmt.Fprintf(out, "Transitivity: %.3f (%s circular of %s triads, %s)\n",
			t.TransitivityIndex,
			humanize.Comma(int64(t.CircularTriadCount)),
			humanize.Comma(int64(t.TotalTriads)),
			humanize.Time(t.ComputedAt))
	}
}
