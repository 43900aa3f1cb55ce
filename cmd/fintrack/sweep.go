package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepReconcile bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Finalize ended cancellations and send reminders once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			res, err := a.svc.Sweeper.Run(ctx, time.Now().UTC())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "finalized: %d\ntrial reminders: %d\nrenewal reminders: %d\n",
				res.Finalized, res.TrialReminders, res.RenewalReminders)
			if err != nil {
				return err
			}

			if !sweepReconcile {
				return nil
			}
			n, err := a.svc.Projector.ReconcileAll(ctx)
			fmt.Fprintf(out, "reconciled profiles: %d\n", n)
			return err
		})
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepReconcile, "reconcile", false, "also rebuild every user's subscription projection")
}
