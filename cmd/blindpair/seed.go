package main

import (
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/blindpair/internal/app"
	"github.com/okian/blindpair/internal/studyfile"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <study.yaml>",
		Short: "Create a study, its categories and items from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := studyfile.Load(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), false, func(svc *service.Service) error {
				sum, err := studyfile.Apply(cmd.Context(), svc.Store(), def, ctx.config.ApplyStudyDefaults)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded study %s: %d categories, %d items\n", sum.StudyID, sum.Categories, sum.Items)
				return nil
			})
		},
	}
}
