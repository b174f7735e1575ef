package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// errNotValid makes the process exit 2 when a probed certificate is not VALID.
var errNotValid = errors.New("certificate not valid")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		if errors.Is(err, errNotValid) {
			os.Exit(2)
		}
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

type globalFlags struct {
	logLevel string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "tlsprobe",
		Short:         "Check TLS certificates of remote hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "console log level with --verbose")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "print prober status lines")

	cmd.AddCommand(
		newProbeCmd(g),
		newVerifyCmd(g),
		newAddCmd(),
		newPreflightCmd(),
	)
	return cmd
}
