package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/persona-e2e/internal/fakepersona"
	"github.com/kuitang/persona-e2e/internal/obs"
)

var (
	serveAddr          string
	serveRedirectDelay time.Duration
)

var serveFakeCmd = &cobra.Command{
	Use:   "serve-fake",
	Short: "Serve the fake identity provider until interrupted",
	Long: `Serve the in-process Persona fake, its two relying parties and a
restmail-compatible mailbox on one origin. Point a browser at it to
explore the flows the scenarios drive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := fakepersona.New(fakepersona.Options{RedirectDelay: serveRedirectDelay})
		if err != nil {
			return err
		}
		defer srv.Close()
		base, err := srv.Listen(serveAddr)
		if err != nil {
			return err
		}
		env := srv.Environment("fake", base)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Persona:        %s\n", env.Persona)
		fmt.Fprintf(out, "123done:        %s\n", env.OneTwoThree)
		fmt.Fprintf(out, "myfavoritebeer: %s\n", env.MyFavoriteBeer)
		fmt.Fprintf(out, "restmail:       %s/mail/<user>\n", env.Restmail)

		<-cmd.Context().Done()
		obs.Pkg("cli").Info("fake_stopping")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveFakeCmd)

	serveFakeCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:10001", "Listen address")
	serveFakeCmd.Flags().DurationVar(&serveRedirectDelay, "redirect-delay", 2*time.Second, "Pause on the verification page before redirecting")
}
