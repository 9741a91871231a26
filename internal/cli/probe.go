package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/email"
	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/ratelimit"
	"github.com/kuitang/persona-e2e/internal/restmail"
	"github.com/kuitang/persona-e2e/internal/runner"
	"github.com/kuitang/persona-e2e/internal/testuser"
)

var probeDomain string

var probeMailCmd = &cobra.Command{
	Use:   "probe-mail",
	Short: "Check that mail sent now reaches restmail",
	Long: `Send one message through Resend to a fresh restmail address and wait
for it to arrive. A failing probe means scenario mail timeouts are a
delivery problem rather than a Persona one.

Needs RESEND_API_KEY and a RESEND_FROM_EMAIL verified in Resend.`,
	RunE: runProbeMail,
}

func init() {
	rootCmd.AddCommand(probeMailCmd)

	probeMailCmd.Flags().StringVar(&probeDomain, "domain", testuser.DefaultDomain, "Mailbox domain")
}

func runProbeMail(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(config.Flags{})
	if err != nil {
		return err
	}
	if cfg.ResendAPIKey == "" {
		return errs.New(errs.Configuration, "RESEND_API_KEY is not set")
	}
	limiter := ratelimit.NewRateLimiter(cfg.MailRateLimit)
	defer limiter.Stop()

	mailer := email.NewResendMailer(cfg.ResendAPIKey, cfg.ResendFromEmail)
	mail := restmail.NewClient(cfg.RestmailURL, limiter)
	_, err = probeMail(cmd.Context(), cmd.OutOrStdout(), mailer, mail, probeDomain, cfg.RestmailTimeout)
	return err
}

// probeMail sends a probe to a fresh address on domain and returns how long
// it took to show up in the mailbox.
func probeMail(ctx context.Context, out io.Writer, mailer email.Mailer, mail *restmail.Client, domain string, timeout time.Duration) (time.Duration, error) {
	addr := testuser.Address("probe", domain)
	start := time.Now()
	data := email.ProbeData{RunID: uuid.NewString(), SentAt: start.UTC().Format(time.RFC3339)}
	if err := mailer.Send(addr, email.TemplateProbe, data); err != nil {
		return 0, errs.Wrap(errs.Unavailable, "send probe", err)
	}
	fmt.Fprintf(out, "Sent probe to %s\n", addr)

	msgs, err := mail.Wait(ctx, addr, 1, timeout)
	if err != nil {
		fmt.Fprintln(out, runner.FailStyle.Render("✗ probe did not arrive"))
		return 0, err
	}
	elapsed := time.Since(start).Round(time.Millisecond)
	fmt.Fprintf(out, "%s %q after %s\n", runner.PassStyle.Render("✓ received"), msgs[0].Subject, elapsed)
	if err := mail.Delete(ctx, addr); err != nil {
		fmt.Fprintln(out, runner.DimStyle.Render("could not empty "+addr+": "+err.Error()))
	}
	return elapsed, nil
}
