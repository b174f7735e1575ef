package main

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hamed0406/tlsprober/internal/probe"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "verify <site-url> [request-url]",
		Short: "Report whether calls to site-url should verify TLS certificates",
		Long: "Prints TRUE when the site's certificate is VALID right now and FALSE otherwise.\n" +
			"FALSE means a client would skip verification for that call.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			site := args[0]
			request := site
			if len(args) == 2 {
				request = args[1]
			}
			p := newCLIProber(g, timeout)
			pol := &probe.VerifyPolicy{Prober: p, SelfURL: site, Logger: p.Logger}
			if pol.Decide(cmd.Context(), request) {
				pterm.Success.Println("verify: TRUE")
				return nil
			}
			pterm.Warning.Println("verify: FALSE")
			return errNotValid
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", probe.DefaultTimeout, "dial and handshake timeout")
	return cmd
}
