package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"dealpipe/internal/api"
)

// newHealthCommand reports daemon health over its HTTP API.
func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			url := "http://" + cfg.Paths.APIBind + "/api/status"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			if cfg.Paths.APIToken != "" {
				req.Header.Set("Authorization", "Bearer "+cfg.Paths.APIToken)
			}
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("daemon unreachable at %s; start it with `dealpiped`: %w", cfg.Paths.APIBind, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon returned status %d", resp.StatusCode)
			}

			var status api.DaemonStatus
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			color := shouldColorize(out)
			state := colorize("running", ansiGreen, color)
			if !status.Running {
				state = colorize("stopped", ansiRed, color)
			}
			fmt.Fprintf(out, "Daemon:   %s\n", state)
			fmt.Fprintf(out, "Database: %s\n", status.DatabasePath)
			fmt.Fprintf(out, "Lock:     %s\n", status.LockFilePath)
			fmt.Fprintln(out, "Jobs:")
			for _, name := range []string{"pending", "running", "done", "failed"} {
				fmt.Fprintf(out, "  %-8s %d\n", name, status.JobCounts[name])
			}
			return nil
		},
	}
}
