package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"donations/internal/cli"
	"donations/internal/feed"
	applog "donations/internal/log"
)

// app holds the global flags shared by every command
type app struct {
	cfgFile string
	verbose bool

	money feed.MoneyFormatter
}

func newRootCmd() *cobra.Command {
	a := &app{money: feed.NewMoneyFormatter(language.English, "$")}

	root := &cobra.Command{
		Use:   "donations",
		Short: "Record donations and track progress toward the fundraising goal",
		Long: `donations keeps a ledger of donations and reports the running total
against the fundraising goal.

The ledger backend, goal and feed size come from the environment, an
optional .env file and an optional YAML file given with --config.

Example Usage:
  donations add "Jane Doe" 25.50      # record a donation
  donations list                      # every donation and the total raised
  donations feed --filter jane        # recent activity, filtered
  donations export --out ledger.xlsx  # spreadsheet export`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Path to an optional YAML configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output for debugging")

	root.AddCommand(
		newAddCmd(a),
		newListCmd(a),
		newTotalCmd(a),
		newFeedCmd(a),
		newClearCmd(a),
		newExportCmd(a),
		newVersionCmd(),
	)
	return root
}

// open loads the configuration and bootstraps the ledger, manager and
// feed. Logs go to stderr so stdout only carries command output. The
// caller closes the runtime.
func (a *app) open(ctx context.Context, cmd *cobra.Command, opts ...cli.RuntimeOption) (*cli.Runtime, error) {
	cfg, err := cli.LoadConfig(a.cfgFile)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	logger := applog.New(applog.Config{
		Level:     level,
		Component: applog.ComponentCLI,
		Output:    cmd.ErrOrStderr(),
	})

	return cli.Bootstrap(ctx, cfg, logger, opts...)
}
