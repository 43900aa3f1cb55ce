package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create catalog plans from a YAML file",
	Long:  "Create every plan in the file whose name is not in the catalog yet. Existing plans are left untouched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			f, err := os.Open(seedFile)
			if err != nil {
				return err
			}
			defer f.Close()

			plans, err := subscription.LoadPlanSeed(f)
			if err != nil {
				return err
			}
			n, err := a.svc.Catalog.Seed(ctx, plans)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d of %d plans\n", n, len(plans))
			return nil
		})
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "plans.yaml", "plan seed file")
}
