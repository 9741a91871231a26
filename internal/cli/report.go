package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/results"
	"github.com/kuitang/persona-e2e/internal/runner"
)

var (
	reportResults string
	reportList    bool
)

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Show the results of a run",
	Long: `Show the results of a recorded run, the latest one by default.

With --list, print every recorded run instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportResults, "results", "", "Results database path")
	reportCmd.Flags().BoolVar(&reportList, "list", false, "List recorded runs")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(config.Flags{Results: reportResults})
	if err != nil {
		return err
	}
	store, err := results.Open(cfg.ResultsPath)
	if err != nil {
		return err
	}
	defer store.Close()
	out := cmd.OutOrStdout()

	if reportList {
		runs, err := store.Runs()
		if err != nil {
			return err
		}
		t := runner.NewTable(out,
			runner.Column{Header: "RUN", Width: 36},
			runner.Column{Header: "STARTED", Width: 20},
			runner.Column{Header: "ENVS", Width: 16},
			runner.Column{Header: "TESTS"},
		)
		t.PrintHeader()
		for _, r := range runs {
			t.PrintRow(nil, r.ID, r.Started.Local().Format("2006-01-02 15:04:05"), fmt.Sprint(r.Envs), r.Pattern)
		}
		return nil
	}

	var (
		run   results.Run
		found bool
	)
	if len(args) == 1 {
		run, found, err = store.Run(args[0])
	} else {
		run, found, err = store.Latest()
	}
	if err != nil {
		return err
	}
	if !found {
		if len(args) == 1 {
			return errs.Newf(errs.NotFound, "no run %q in %s", args[0], cfg.ResultsPath)
		}
		return errs.Newf(errs.NotFound, "no runs recorded in %s", cfg.ResultsPath)
	}
	outcomes, err := store.Outcomes(run.ID)
	if err != nil {
		return err
	}
	runner.WriteReport(out, run, outcomes)
	return nil
}
