package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"donations/internal/cli"
	"donations/internal/core"
	"donations/internal/export"
	"donations/internal/services"
)

var errNotConfirmed = errors.New("refusing to clear the ledger without --yes")

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME AMOUNT",
		Short: "Record a donation",
		Long: `Record a donation and print the updated summary. A blank name is
recorded as Anonymous. The amount accepts either decimal separator.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			if !amount.IsPositive() {
				return errors.New("amount must be greater than 0")
			}

			ctx := cmd.Context()
			rt, err := a.open(ctx, cmd, cli.WithEventPublishing())
			if err != nil {
				return err
			}
			defer rt.Close()

			receipt, err := rt.Manager.Record(ctx, args[0], amount)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Donation received from %s of %s!\n", receipt.Donation.Name(), a.money(receipt.Donation.Amount()))
			fmt.Fprintf(out, "Thank you for donating %s!\n", a.money(receipt.Donation.Amount()))
			if receipt.CrossedGoal {
				fmt.Fprintf(out, "We've reached our goal of %s!\n", a.money(rt.Manager.Goal()))
			}
			fmt.Fprintln(out)
			return a.printSummary(ctx, out, rt.Manager)
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every donation oldest first with the total raised",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return a.printSummary(ctx, cmd.OutOrStdout(), rt.Manager)
		},
	}
}

// printSummary writes each donation followed by the total raised
func (a *app) printSummary(ctx context.Context, out io.Writer, m *services.DonationManager) error {
	fmt.Fprintln(out, "--- Donation Summary ---")
	for d, err := range m.Donations(ctx) {
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s donated %s\n", d.Name(), a.money(d.Amount()))
	}
	fmt.Fprintln(out, "------------------------")
	fmt.Fprintf(out, "Total Raised: %s\n", a.money(m.Total()))
	return nil
}

func newTotalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Show the total raised against the goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			m := rt.Manager
			out := cmd.OutOrStdout()
			if m.HasReachedGoal() {
				fmt.Fprintf(out, "Goal Reached! Total: %s\n", a.money(m.Total()))
			} else {
				fmt.Fprintf(out, "Total raised: %s / %s\n", a.money(m.Total()), a.money(m.Goal()))
			}
			fmt.Fprintf(out, "Progress: %.0f%%\n", m.Progress()*100)
			return nil
		},
	}
}

func newFeedCmd(a *app) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the most recent donation messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.open(ctx, cmd, cli.WithFeedReplay())
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.Feed.SetFilter(filter)
			out := cmd.OutOrStdout()
			view := rt.Feed.CurrentView()
			if len(view) == 0 {
				fmt.Fprintln(out, "No recent activity.")
				return nil
			}
			for _, entry := range view {
				fmt.Fprintln(out, entry)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Only show entries containing this text, ignoring case")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every donation from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errNotConfirmed
			}
			ctx := cmd.Context()
			rt, err := a.open(ctx, cmd, cli.WithEventPublishing())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Manager.ClearAll(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All donations cleared.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deleting every donation")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			rt, err := a.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			defer func() {
				if cerr := f.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			summary, err := export.WriteXLSX(ctx, f, rt.Manager.Donations(ctx), rt.Logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d donations (%s) to %s\n", summary.Rows, a.money(summary.Total), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "donations.xlsx", "Output file")
	return cmd
}
