package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/hamed0406/tlsprober/internal/config"
)

type level int

const (
	levelOK level = iota
	levelWarn
	levelFail
)

type finding struct {
	level level
	msg   string
}

func newPreflightCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Sanity-check the API's environment before deploying",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(cfgFile)
			if err != nil {
				return err
			}
			failed := false
			for _, f := range preflight(cfg) {
				switch f.level {
				case levelOK:
					pterm.Success.Println(f.msg)
				case levelWarn:
					pterm.Warning.Println(f.msg)
				case levelFail:
					pterm.Error.Println(f.msg)
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("preflight failed")
			}
			pterm.Success.Println("preflight passed")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "YAML config file")
	return cmd
}

func preflight(cfg config.Config) []finding {
	var out []finding
	add := func(l level, format string, args ...any) {
		out = append(out, finding{level: l, msg: fmt.Sprintf(format, args...)})
	}

	for _, err := range multierr.Errors(cfg.Validate()) {
		add(levelFail, "%s", err.Error())
	}
	if len(cfg.AdminAPIKeys) == 0 {
		add(levelFail, "ADMIN_API_KEYS is empty (anyone can add targets).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		add(levelFail, "PUBLIC_API_KEYS is empty (read routes are open).")
	}

	add(levelOK, "ADDR=%s", cfg.Addr)

	if cfg.DatabaseURL == "" {
		add(levelWarn, "DATABASE_URL empty: targets and results are kept in memory only.")
	} else {
		add(levelOK, "DATABASE_URL present")
	}

	if len(cfg.AllowedOrigins) == 0 {
		add(levelWarn, "ALLOWED_ORIGINS empty: every origin is allowed by CORS.")
	} else {
		add(levelOK, "ALLOWED_ORIGINS=%s", strings.Join(cfg.AllowedOrigins, ","))
	}

	if len(cfg.TrustedProxies) == 0 {
		add(levelOK, "TRUSTED_PROXIES empty: X-Forwarded-For is ignored, rate limits key on the peer address.")
	} else {
		add(levelOK, "TRUSTED_PROXIES=%s", strings.Join(cfg.TrustedProxies, ","))
	}

	if cfg.SelfURL == "" {
		add(levelWarn, "SELF_URL empty: startup self check is disabled.")
	} else {
		add(levelOK, "SELF_URL=%s", cfg.SelfURL)
	}

	if cfg.SlackWebhookURL == "" {
		add(levelWarn, "SLACK_WEBHOOK_URL empty: certificate alerts go to the log only.")
	}
	if cfg.CheckInterval == 0 {
		add(levelWarn, "CHECK_INTERVAL_MS=0: periodic rechecks are disabled.")
	}
	return out
}
