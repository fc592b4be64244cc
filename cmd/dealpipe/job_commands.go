package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dealpipe/internal/api"
	"dealpipe/internal/store"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and retry background jobs",
	}

	var statusFilters []string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			var statuses []store.JobStatus
			for _, value := range statusFilters {
				trimmed := strings.TrimSpace(value)
				if trimmed == "" {
					continue
				}
				statuses = append(statuses, store.JobStatus(trimmed))
			}
			jobs, err := svc.Jobs(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				rows = append(rows, []string{
					strconv.FormatInt(j.ID, 10),
					j.Name,
					j.Status,
					strconv.Itoa(j.Attempts),
					j.RunAt,
					j.LastError,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Status", "Attempts", "Run At", "Last Error"},
				rows,
				0, 3,
			))
			return nil
		},
	}
	listCmd.Flags().StringArrayVar(&statusFilters, "status", nil, "Filter by status (repeatable)")

	retryCmd := &cobra.Command{
		Use:   "retry [JOB_ID...]",
		Short: "Retry failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
				if err != nil {
					return fmt.Errorf("invalid job id %q", arg)
				}
				ids = append(ids, id)
			}
			retried, err := svc.RetryJobs(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d jobs\n", retried)
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			stats, err := svc.JobStats(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, api.JobStatsResponse{Counts: stats})
			}
			for _, status := range []string{"pending", "running", "done", "failed"} {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %d\n", status, stats[status])
			}
			return nil
		},
	}

	jobsCmd.AddCommand(listCmd)
	jobsCmd.AddCommand(retryCmd)
	jobsCmd.AddCommand(statsCmd)
	return jobsCmd
}
