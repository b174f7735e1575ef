package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/tlsprober/internal/logging"
	"github.com/hamed0406/tlsprober/internal/probe"
)

type probeOptions struct {
	timeout     time.Duration
	asJSON      bool
	concurrency int
	retries     int
}

func newProbeCmd(g *globalFlags) *cobra.Command {
	o := &probeOptions{}
	cmd := &cobra.Command{
		Use:   "probe <target> [target...]",
		Short: "Fetch and check the leaf certificate of one or more hosts",
		Long: "Targets may be URLs, host names or host:port. Exit status is 0 when every\n" +
			"certificate is VALID and 2 otherwise.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := probeAll(cmd.Context(), newCLIProber(g, o.timeout), args, o)
			if o.asJSON {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				renderResults(results)
			}
			for _, r := range results {
				if !r.IsValid() {
					return errNotValid
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&o.timeout, "timeout", "t", probe.DefaultTimeout, "dial and handshake timeout per target")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "print results as JSON")
	cmd.Flags().IntVarP(&o.concurrency, "concurrency", "c", 4, "targets probed in parallel")
	cmd.Flags().IntVar(&o.retries, "retries", 1, "attempts for targets that fail to connect")
	return cmd
}

func newCLIProber(g *globalFlags, timeout time.Duration) *probe.Prober {
	var l probe.Logger
	if g.verbose {
		l = logging.ProbeLogger{L: logging.NewConsole(g.logLevel)}
	}
	return probe.NewProber(timeout, l)
}

// probeAll keeps results in argument order.
func probeAll(ctx context.Context, p *probe.Prober, targets []string, o *probeOptions) []probe.Result {
	if ctx == nil {
		ctx = context.Background()
	}
	checker := &probe.RetryChecker{Inner: &probe.DiagnoseChecker{Inner: p}, Attempts: o.retries, Backoff: 300 * time.Millisecond}

	results := make([]probe.Result, len(targets))
	var eg errgroup.Group
	if o.concurrency > 0 {
		eg.SetLimit(o.concurrency)
	}
	for i, t := range targets {
		i, t := i, t
		eg.Go(func() error {
			results[i] = checker.Check(ctx, t)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderResults(results []probe.Result) {
	data := pterm.TableData{{"Host", "Port", "Status", "Expires (UTC)", "Latency", "Reason"}}
	for _, r := range results {
		port := "-"
		if r.Port != 0 {
			port = fmt.Sprint(r.Port)
		}
		data = append(data, []string{
			r.Host,
			port,
			statusStyle(r.Status).Sprint(r.Status),
			dash(r.Expiry()),
			fmt.Sprintf("%.0f ms", r.LatencyMS),
			dash(r.Reason),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func statusStyle(s probe.Status) *pterm.Style {
	switch s {
	case probe.StatusValid:
		return pterm.NewStyle(pterm.FgGreen, pterm.Bold)
	case probe.StatusInvalid:
		return pterm.NewStyle(pterm.FgRed, pterm.Bold)
	case probe.StatusSkipped:
		return pterm.NewStyle(pterm.FgGray)
	default:
		return pterm.NewStyle(pterm.FgYellow, pterm.Bold)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
