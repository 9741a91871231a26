// Package cli implements the persona-e2e command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/obs"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "persona-e2e",
	Short: "Browser-driven end-to-end tests for Persona",
	Long: `persona-e2e drives real browsers through the Persona sign-in
dialog, the identity provider's own pages and the 123done and
myfavoritebeer relying parties.

Verification mail is read back from restmail. Every failure leaves a
screenshot, the page HTML and a metadata record behind.

Examples:
  persona-e2e run                          # every scenario, prod, chromium
  persona-e2e run -e stage -t 'new-user/*' # sign-up scenarios on stage
  persona-e2e run --everywhere -p 4        # every browser, every environment
  persona-e2e run -e fake                  # against the in-process fake
  persona-e2e report                       # last run's results`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			obs.SetLevel(slog.LevelDebug)
		}
	},
}

// ErrScenariosFailed reports a run that completed with failing scenarios.
var ErrScenariosFailed = errors.New("one or more scenarios failed")

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, ErrScenariosFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// ExitCode maps an Execute error to a process exit status: 1 for failed
// scenarios, 2 for configuration problems and 3 for anything else.
func ExitCode(err error) int {
	var validation *config.ValidationError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrScenariosFailed):
		return 1
	case errors.As(err, &validation), errs.Is(err, errs.Configuration), errs.Is(err, errs.InvalidArgument):
		return 2
	default:
		return 3
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every wait and request")
}
