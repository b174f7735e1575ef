package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hamed0406/tlsprober/internal/probe"
)

type addOptions struct {
	api    string
	apiKey string
}

func newAddCmd() *cobra.Command {
	o := &addOptions{}
	cmd := &cobra.Command{
		Use:   "add <target>",
		Short: "Register a target with a running tlsprober API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := probe.ParseTarget(args[0]); err != nil {
				return err
			}
			sum, err := addTarget(cmd.Context(), http.DefaultClient, o, args[0])
			if err != nil {
				return err
			}
			pterm.Success.Printfln("added %s (%s)", args[0], sum.Status)
			if sum.NotAfter != nil {
				pterm.Info.Printfln("expires %s UTC", sum.NotAfter.UTC().Format(probe.ExpiryLayout))
			}
			if sum.Reason != "" {
				pterm.Info.Println(sum.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&o.api, "api", envOr("API_BASE", "http://localhost:8080"), "API base URL")
	cmd.Flags().StringVar(&o.apiKey, "api-key", os.Getenv("TLSPROBER_API_KEY"), "admin API key")
	return cmd
}

type addSummary struct {
	Status   string     `json:"status"`
	NotAfter *time.Time `json:"not_after"`
	Reason   string     `json:"reason"`
}

func addTarget(ctx context.Context, client *http.Client, o *addOptions, target string) (*addSummary, error) {
	body, err := json.Marshal(map[string]string{"target": target})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(o.api, "/")+"/api/targets", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("X-API-Key", o.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("API returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Summary addSummary `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode API response: %w", err)
	}
	return &out.Summary, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
